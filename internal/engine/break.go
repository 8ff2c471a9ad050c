package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CompletionType records how an evaluation answer was saved.
type CompletionType string

const (
	CompletionActive  CompletionType = "active"
	CompletionTimeout CompletionType = "timeout"
)

// BreakSnapshot is the client-facing view of a break.
type BreakSnapshot struct {
	Total      int               `json:"total"`
	Remaining  int               `json:"remaining"`
	Selections map[string]string `json:"selections"`
	Saved      bool              `json:"already_saved"`
}

// BreakRuntime holds the evaluation countdown and the selections made
// during a break. Selections map variable id to suggested answer id.
type BreakRuntime struct {
	mu         sync.Mutex
	countdown  Countdown
	options    map[string]map[string]bool
	selections map[string]string
	latch      Latch
	saved      bool
}

// NewBreakRuntime creates a break. options maps each evaluation variable to
// its allowed answer ids; a nil map accepts any selection.
func NewBreakRuntime(clock clockwork.Clock, total time.Duration, startedAt time.Time, options map[string][]string, selections map[string]string, saved bool) *BreakRuntime {
	b := &BreakRuntime{
		countdown:  NewCountdown(clock, total, startedAt),
		selections: make(map[string]string, len(selections)),
		saved:      saved,
	}
	if options != nil {
		b.options = make(map[string]map[string]bool, len(options))
		for v, answers := range options {
			set := make(map[string]bool, len(answers))
			for _, a := range answers {
				set[a] = true
			}
			b.options[v] = set
		}
	}
	for v, a := range selections {
		if b.allowed(v, a) {
			b.selections[v] = a
		}
	}
	if saved {
		b.latch.Complete()
	}
	return b
}

func (b *BreakRuntime) allowed(variableID, answerID string) bool {
	if b.options == nil {
		return true
	}
	set, ok := b.options[variableID]
	return ok && set[answerID]
}

// Select records one variable's answer. Selections close when the
// countdown runs out.
func (b *BreakRuntime) Select(variableID, answerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.saved || b.latch.Busy() || b.countdown.Expired() {
		return ErrFinished
	}
	if !b.allowed(variableID, answerID) {
		return ErrInvalidAnswer
	}
	b.selections[variableID] = answerID
	return nil
}

// Snapshot returns the current client view.
func (b *BreakRuntime) Snapshot() BreakSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakSnapshot{
		Total:      int(b.countdown.Total() / time.Second),
		Remaining:  b.countdown.RemainingSeconds(),
		Selections: b.copySelections(),
		Saved:      b.saved,
	}
}

func (b *BreakRuntime) copySelections() map[string]string {
	out := make(map[string]string, len(b.selections))
	for k, v := range b.selections {
		out[k] = v
	}
	return out
}

// BeginSave acquires the save latch and returns the selections to persist.
// extra selections are merged first, so an explicit Done can carry the
// final form state.
func (b *BreakRuntime) BeginSave(extra map[string]string) (map[string]string, error) {
	if !b.latch.TryAcquire() {
		if b.latch.Done() {
			return nil, ErrFinished
		}
		return nil, ErrSubmitInProgress
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for v, a := range extra {
		if !b.allowed(v, a) {
			b.latch.Release()
			return nil, ErrInvalidAnswer
		}
		b.selections[v] = a
	}
	return b.copySelections(), nil
}

// CompleteSave marks the evaluation answer as stored.
func (b *BreakRuntime) CompleteSave() {
	b.latch.Complete()
	b.mu.Lock()
	b.saved = true
	b.mu.Unlock()
}

// AbortSave reopens the latch after a failed write.
func (b *BreakRuntime) AbortSave() {
	b.latch.Release()
}

// Saved reports whether an evaluation answer was stored.
func (b *BreakRuntime) Saved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved
}

// Step implements Steppable.
func (b *BreakRuntime) Step() ([]Event, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saved {
		return nil, false, true
	}
	return nil, b.countdown.Expired(), false
}

// Until implements Steppable.
func (b *BreakRuntime) Until() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.countdown.Remaining()
}
