package engine

import "sync/atomic"

const (
	latchOpen int32 = iota
	latchHeld
	latchDone
)

// Latch lets exactly one caller run a submission. A holder either
// completes it, which closes the latch for good, or releases it so a
// later attempt can retry.
type Latch struct {
	state atomic.Int32
}

// TryAcquire returns true for the single caller that may submit.
func (l *Latch) TryAcquire() bool {
	return l.state.CompareAndSwap(latchOpen, latchHeld)
}

// Complete marks the submission as persisted.
func (l *Latch) Complete() {
	l.state.Store(latchDone)
}

// Release reopens a held latch after a failed write.
func (l *Latch) Release() {
	l.state.CompareAndSwap(latchHeld, latchOpen)
}

// Done reports whether a submission completed.
func (l *Latch) Done() bool {
	return l.state.Load() == latchDone
}

// Busy reports whether a submission is in flight or completed.
func (l *Latch) Busy() bool {
	return l.state.Load() != latchOpen
}
