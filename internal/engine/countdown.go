// Package engine holds the timing and grading rules of a participant run:
// countdowns, popup windows, scoring, session ordering and the drivers that
// fire timed transitions. Nothing in here touches storage.
package engine

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown derives remaining time from the wall clock. It never counts
// ticks, so a stalled process catches up the moment it is read again.
type Countdown struct {
	clock     clockwork.Clock
	total     time.Duration
	startedAt time.Time
}

// NewCountdown creates a countdown of total length that began at startedAt.
func NewCountdown(clock clockwork.Clock, total time.Duration, startedAt time.Time) Countdown {
	if total < 0 {
		total = 0
	}
	return Countdown{clock: clock, total: total, startedAt: startedAt}
}

// Total returns the configured length.
func (c Countdown) Total() time.Duration { return c.total }

// StartedAt returns the instant the countdown began.
func (c Countdown) StartedAt() time.Time { return c.startedAt }

// ExpiresAt returns the instant the countdown reaches zero.
func (c Countdown) ExpiresAt() time.Time { return c.startedAt.Add(c.total) }

// Elapsed returns time since start, clamped to [0, Total].
func (c Countdown) Elapsed() time.Duration {
	e := c.clock.Since(c.startedAt)
	if e < 0 {
		return 0
	}
	if e > c.total {
		return c.total
	}
	return e
}

// Remaining returns Total minus Elapsed. It is never negative.
func (c Countdown) Remaining() time.Duration {
	return c.total - c.Elapsed()
}

// RemainingSeconds returns the remaining time in whole seconds, computed as
// total minus whole elapsed seconds.
func (c Countdown) RemainingSeconds() int {
	r := int(c.total/time.Second) - int(c.Elapsed()/time.Second)
	if r < 0 {
		return 0
	}
	return r
}

// ElapsedSeconds returns elapsed time in whole seconds.
func (c Countdown) ElapsedSeconds() int {
	return int(c.Elapsed() / time.Second)
}

// Expired reports whether the countdown has reached zero.
func (c Countdown) Expired() bool {
	return !c.clock.Now().Before(c.ExpiresAt())
}
