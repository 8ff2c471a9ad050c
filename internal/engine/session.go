package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runtime errors.
var (
	ErrFinished         = errors.New("attempt already finished")
	ErrUnknownQuestion  = errors.New("question is not part of this session")
	ErrInvalidAnswer    = errors.New("answer is not one of the question's choices")
	ErrPopupNotVisible  = errors.New("popup is not visible")
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// SessionConfig seeds a SessionRuntime. Answers, Shown and Dismissed carry
// state restored from a previous mount and may be empty.
type SessionConfig struct {
	Duration  time.Duration
	StartedAt time.Time
	Popups    []PopupWindow
	Questions []GradedQuestion
	Answers   map[string]string
	Shown     []int
	Dismissed []int
}

// SessionSnapshot is the client-facing view of a running attempt.
type SessionSnapshot struct {
	Total         int               `json:"total"`
	Elapsed       int               `json:"elapsed"`
	Remaining     int               `json:"remaining"`
	VisiblePopups []int             `json:"visible_popups"`
	Answers       map[string]string `json:"answers"`
	Finished      bool              `json:"finished"`
}

// Submission is everything needed to persist one finished attempt.
type Submission struct {
	Results    []AnswerResult
	Scores     []bool
	Correct    int
	Total      int
	TotalTime  int
	Unanswered []int
}

// SessionRuntime is the server-side state of one participant's session
// attempt. All methods are safe for concurrent use.
type SessionRuntime struct {
	mu        sync.Mutex
	countdown Countdown
	popups    *PopupSchedule
	questions []GradedQuestion
	byID      map[string]GradedQuestion
	answers   map[string]string
	latch     Latch
	finished  bool
	// claimed holds popups whose reaction is being written.
	claimed map[int]bool
}

// NewSessionRuntime creates a runtime and applies every popup transition due
// at mount time, so windows already in progress start visible.
func NewSessionRuntime(clock clockwork.Clock, cfg SessionConfig) *SessionRuntime {
	cd := NewCountdown(clock, cfg.Duration, cfg.StartedAt)
	rt := &SessionRuntime{
		countdown: cd,
		popups:    NewPopupSchedule(cfg.Popups, cd.Elapsed(), cfg.Shown, cfg.Dismissed),
		questions: cfg.Questions,
		byID:      make(map[string]GradedQuestion, len(cfg.Questions)),
		answers:   make(map[string]string, len(cfg.Answers)),
		claimed:   make(map[int]bool),
	}
	for _, q := range cfg.Questions {
		rt.byID[q.ID] = q
	}
	for qid, ans := range cfg.Answers {
		if _, ok := rt.byID[qid]; ok {
			rt.answers[qid] = ans
		}
	}
	rt.popups.Advance(cd.Elapsed())
	return rt
}

// Step implements Steppable.
func (r *SessionRuntime) Step() ([]Event, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return nil, false, true
	}

	elapsed := r.countdown.Elapsed()
	var events []Event
	for _, t := range r.popups.Advance(elapsed) {
		kind := EventPopupHide
		if t.Show {
			kind = EventPopupShow
		}
		events = append(events, Event{Kind: kind, PopupID: t.PopupID, Remaining: r.countdown.RemainingSeconds()})
	}
	return events, r.countdown.Expired(), false
}

// Until implements Steppable.
func (r *SessionRuntime) Until() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	wait := r.countdown.Remaining()
	if at, ok := r.popups.NextBoundary(); ok {
		if d := at - r.countdown.Elapsed(); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// Snapshot returns the current client view.
func (r *SessionRuntime) Snapshot() SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	answers := make(map[string]string, len(r.answers))
	for k, v := range r.answers {
		answers[k] = v
	}
	return SessionSnapshot{
		Total:         int(r.countdown.Total() / time.Second),
		Elapsed:       r.countdown.ElapsedSeconds(),
		Remaining:     r.countdown.RemainingSeconds(),
		VisiblePopups: r.popups.Visible(),
		Answers:       answers,
		Finished:      r.finished,
	}
}

// SetAnswer records the participant's choice for a question.
func (r *SessionRuntime) SetAnswer(questionID, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || r.latch.Busy() || r.countdown.Expired() {
		return ErrFinished
	}
	q, ok := r.byID[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if !q.ValidChoice(answer) {
		return ErrInvalidAnswer
	}
	r.answers[questionID] = answer
	return nil
}

// ClaimPopup reserves a visible popup for one reaction. A second claim on
// the same popup fails with ErrPopupNotVisible until ReleasePopup or
// Dismiss is called.
func (r *SessionRuntime) ClaimPopup(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return ErrFinished
	}
	if r.claimed[id] || !r.popups.IsVisible(id) {
		return ErrPopupNotVisible
	}
	r.claimed[id] = true
	return nil
}

// ReleasePopup drops a claim without dismissing the popup.
func (r *SessionRuntime) ReleasePopup(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, id)
}

// Dismiss hides a popup for the rest of the attempt.
func (r *SessionRuntime) Dismiss(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, id)
	r.popups.Dismiss(id)
}

// PopupState returns the shown and dismissed ids for persistence.
func (r *SessionRuntime) PopupState() (shown, dismissed []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.popups.Shown(), r.popups.Dismissed()
}

// BeginSubmit acquires the submit latch and grades the attempt. It returns
// ErrFinished once a submission completed, and ErrSubmitInProgress while
// another caller holds the latch.
func (r *SessionRuntime) BeginSubmit() (*Submission, error) {
	if !r.latch.TryAcquire() {
		if r.latch.Done() {
			return nil, ErrFinished
		}
		return nil, ErrSubmitInProgress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	results := Grade(r.questions, r.answers)
	scores := Scores(results)
	return &Submission{
		Results:    results,
		Scores:     scores,
		Correct:    CountCorrect(scores),
		Total:      len(scores),
		TotalTime:  r.countdown.ElapsedSeconds(),
		Unanswered: r.unanswered(),
	}, nil
}

// CompleteSubmit finishes the attempt after a submission was handled.
func (r *SessionRuntime) CompleteSubmit() {
	r.latch.Complete()
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}

// AbortSubmit releases the latch after a failed manual submission.
func (r *SessionRuntime) AbortSubmit() {
	r.latch.Release()
}

// Finished reports whether the attempt is over.
func (r *SessionRuntime) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// unanswered leaves out claimed popups; their reaction is already on its
// way to the store. Callers hold r.mu.
func (r *SessionRuntime) unanswered() []int {
	var out []int
	for _, id := range r.popups.Unanswered() {
		if !r.claimed[id] {
			out = append(out, id)
		}
	}
	return out
}
