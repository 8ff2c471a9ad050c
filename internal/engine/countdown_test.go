package engine

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestCountdownRemainingFollowsWallClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	cd := NewCountdown(clock, 7*time.Minute, start)

	if got := cd.RemainingSeconds(); got != 420 {
		t.Fatalf("expected 420s remaining at start, got %d", got)
	}

	clock.Advance(90*time.Second + 500*time.Millisecond)
	if got := cd.RemainingSeconds(); got != 330 {
		t.Fatalf("expected 330s remaining, got %d", got)
	}
	if got := cd.ElapsedSeconds(); got != 90 {
		t.Fatalf("expected 90s elapsed, got %d", got)
	}
	if cd.Expired() {
		t.Fatalf("countdown should not be expired yet")
	}
}

func TestCountdownNeverNegative(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	cd := NewCountdown(clock, time.Minute, start)

	// A suspended process resumes long after the deadline.
	clock.Advance(time.Hour)

	if got := cd.RemainingSeconds(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
	if got := cd.Remaining(); got != 0 {
		t.Fatalf("expected zero duration remaining, got %s", got)
	}
	if got := cd.Elapsed(); got != time.Minute {
		t.Fatalf("elapsed should clamp to total, got %s", got)
	}
	if !cd.Expired() {
		t.Fatalf("countdown should be expired")
	}
}

func TestCountdownStartInFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	cd := NewCountdown(clock, time.Minute, now.Add(5*time.Second))

	if got := cd.Elapsed(); got != 0 {
		t.Fatalf("elapsed should clamp at zero, got %s", got)
	}
	if got := cd.RemainingSeconds(); got != 60 {
		t.Fatalf("expected 60 remaining, got %d", got)
	}
}
