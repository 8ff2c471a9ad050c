package engine

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleSessionConfig() SessionConfig {
	return SessionConfig{
		Duration:  sec(60),
		StartedAt: epoch,
		Popups:    tenForFive,
		Questions: []GradedQuestion{
			{ID: "q1", Choices: []string{"A", "B"}, CorrectAnswer: "A"},
			{ID: "q2", Choices: []string{"A", "B"}, CorrectAnswer: "B"},
		},
	}
}

func TestSessionRuntimeResumeRestoresState(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch.Add(sec(12)))
	cfg := sampleSessionConfig()
	cfg.Answers = map[string]string{"q1": "A", "ghost": "X"}

	rt := NewSessionRuntime(clock, cfg)
	snap := rt.Snapshot()

	if snap.Remaining != 48 || snap.Elapsed != 12 || snap.Total != 60 {
		t.Fatalf("unexpected timing %+v", snap)
	}
	if !reflect.DeepEqual(snap.VisiblePopups, []int{1}) {
		t.Fatalf("popup in progress should be visible on resume, got %v", snap.VisiblePopups)
	}
	if _, ok := snap.Answers["ghost"]; ok {
		t.Fatalf("answers for unknown questions must be dropped")
	}
}

func TestSessionRuntimeSetAnswer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	rt := NewSessionRuntime(clock, sampleSessionConfig())

	if err := rt.SetAnswer("q1", "B"); err != nil {
		t.Fatalf("set answer: %v", err)
	}
	if err := rt.SetAnswer("q1", "A"); err != nil {
		t.Fatalf("change answer: %v", err)
	}
	if err := rt.SetAnswer("nope", "A"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
	if err := rt.SetAnswer("q2", "Z"); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}

	clock.Advance(sec(61))
	if err := rt.SetAnswer("q2", "B"); !errors.Is(err, ErrFinished) {
		t.Fatalf("answers after expiry must be rejected, got %v", err)
	}
}

func TestSessionRuntimeSubmitOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	rt := NewSessionRuntime(clock, sampleSessionConfig())
	_ = rt.SetAnswer("q1", "A")
	_ = rt.SetAnswer("q2", "A")
	clock.Advance(sec(11))
	rt.Step()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		subs []*Submission
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := rt.BeginSubmit()
			if err == nil {
				mu.Lock()
				subs = append(subs, s)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(subs) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(subs))
	}
	s := subs[0]
	if !reflect.DeepEqual(s.Scores, []bool{true, false}) || s.Correct != 1 || s.Total != 2 {
		t.Fatalf("unexpected grading %+v", s)
	}
	if s.TotalTime != 11 {
		t.Fatalf("expected 11s spent, got %d", s.TotalTime)
	}
	if !reflect.DeepEqual(s.Unanswered, []int{1}) {
		t.Fatalf("visible undismissed popup should be unanswered, got %v", s.Unanswered)
	}

	rt.CompleteSubmit()
	if _, err := rt.BeginSubmit(); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished after completion, got %v", err)
	}
	if !rt.Snapshot().Finished {
		t.Fatalf("snapshot should report finished")
	}
}

func TestSessionRuntimeAbortAllowsRetry(t *testing.T) {
	rt := NewSessionRuntime(clockwork.NewFakeClockAt(epoch), sampleSessionConfig())

	if _, err := rt.BeginSubmit(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := rt.BeginSubmit(); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("expected in-progress, got %v", err)
	}
	rt.AbortSubmit()
	if _, err := rt.BeginSubmit(); err != nil {
		t.Fatalf("retry after abort should succeed: %v", err)
	}
}

func TestSessionRuntimePopupReaction(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	rt := NewSessionRuntime(clock, sampleSessionConfig())

	if err := rt.ClaimPopup(1); !errors.Is(err, ErrPopupNotVisible) {
		t.Fatalf("expected not visible before window, got %v", err)
	}
	clock.Advance(sec(10))
	events, _, _ := rt.Step()
	if len(events) != 1 || events[0].Kind != EventPopupShow {
		t.Fatalf("expected popup_show, got %v", events)
	}
	if err := rt.ClaimPopup(1); err != nil {
		t.Fatalf("popup should be visible: %v", err)
	}

	rt.Dismiss(1)
	shown, dismissed := rt.PopupState()
	if !reflect.DeepEqual(shown, []int{1}) || !reflect.DeepEqual(dismissed, []int{1}) {
		t.Fatalf("unexpected popup state %v %v", shown, dismissed)
	}
	clock.Advance(sec(5))
	if events, _, _ := rt.Step(); len(events) != 0 {
		t.Fatalf("dismissed popup must not emit hide, got %v", events)
	}
}

func TestSessionRuntimePopupClaim(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch.Add(sec(10)))
	rt := NewSessionRuntime(clock, sampleSessionConfig())

	if err := rt.ClaimPopup(1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := rt.ClaimPopup(1); !errors.Is(err, ErrPopupNotVisible) {
		t.Fatalf("a claimed popup cannot be claimed again, got %v", err)
	}

	sub, err := rt.BeginSubmit()
	if err != nil {
		t.Fatalf("begin submit: %v", err)
	}
	if len(sub.Unanswered) != 0 {
		t.Fatalf("a claimed popup is not unanswered, got %v", sub.Unanswered)
	}
	rt.AbortSubmit()

	rt.ReleasePopup(1)
	if err := rt.ClaimPopup(1); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	rt.Dismiss(1)
	if err := rt.ClaimPopup(1); !errors.Is(err, ErrPopupNotVisible) {
		t.Fatalf("a dismissed popup cannot be claimed, got %v", err)
	}
}

func TestSessionRuntimeUntil(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch.Add(sec(3)))
	rt := NewSessionRuntime(clock, sampleSessionConfig())
	if got := rt.Until(); got != sec(7) {
		t.Fatalf("expected to wake at the popup start, got %s", got)
	}
	rt.Dismiss(1)
	if got := rt.Until(); got != sec(57) {
		t.Fatalf("expected to wake at expiry, got %s", got)
	}
}
