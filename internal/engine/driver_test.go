package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func waitTimer(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("driver never armed its timer: %v", err)
	}
}

func TestDriverFiresPopupsAndExpiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := sampleSessionConfig()
	cfg.Duration = sec(30)
	rt := NewSessionRuntime(clock, cfg)

	var expired atomic.Int32
	d := NewDriver(clock, rt, func() {
		expired.Add(1)
		if _, err := rt.BeginSubmit(); err == nil {
			rt.CompleteSubmit()
		}
	})
	events, cancel := d.Subscribe()
	defer cancel()
	d.Start()

	waitTimer(t, clock)
	clock.Advance(sec(10))
	if ev := waitEvent(t, events); ev.Kind != EventPopupShow || ev.PopupID != 1 || ev.Remaining != 20 {
		t.Fatalf("expected popup_show for 1 with 20s left, got %+v", ev)
	}

	waitTimer(t, clock)
	clock.Advance(sec(5))
	if ev := waitEvent(t, events); ev.Kind != EventPopupHide {
		t.Fatalf("expected popup_hide, got %+v", ev)
	}

	waitTimer(t, clock)
	clock.Advance(sec(15))
	if ev := waitEvent(t, events); ev.Kind != EventTimeUp {
		t.Fatalf("expected time_up, got %+v", ev)
	}

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not exit after expiry")
	}
	if expired.Load() != 1 {
		t.Fatalf("expected a single auto-submit, got %d", expired.Load())
	}
	if !rt.Finished() {
		t.Fatalf("runtime should be finished after auto-submit")
	}
}

func TestDriverRescheduleAfterDismiss(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := sampleSessionConfig()
	cfg.Duration = sec(30)
	rt := NewSessionRuntime(clock, cfg)

	d := NewDriver(clock, rt, nil)
	events, cancel := d.Subscribe()
	defer cancel()
	d.Start()
	defer d.Stop()

	waitTimer(t, clock)
	clock.Advance(sec(10))
	waitEvent(t, events)

	// Dismissal at 12s cancels the pending hide at 15s.
	waitTimer(t, clock)
	clock.Advance(sec(2))
	rt.Dismiss(1)
	d.Reschedule()

	waitTimer(t, clock)
	clock.Advance(sec(3))
	select {
	case ev := <-events:
		t.Fatalf("no event expected after dismissal, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDriverStopsWhenFinished(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	rt := NewSessionRuntime(clock, sampleSessionConfig())
	d := NewDriver(clock, rt, func() { t.Errorf("expiry must not fire after a manual submit") })
	d.Start()

	waitTimer(t, clock)
	if _, err := rt.BeginSubmit(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	rt.CompleteSubmit()
	d.Reschedule()

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("driver kept running after the attempt finished")
	}
	clock.Advance(sec(120))
	d.Stop()
}

func TestDriverBreakTimeout(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	b := NewBreakRuntime(clock, sec(60), epoch, nil, nil, false)
	_ = b.Select("v1", "a1")

	saved := make(chan map[string]string, 1)
	d := NewDriver(clock, b, func() {
		sel, err := b.BeginSave(nil)
		if err != nil {
			return
		}
		b.CompleteSave()
		saved <- sel
	})
	d.Start()

	waitTimer(t, clock)
	clock.Advance(sec(60))

	select {
	case sel := <-saved:
		if sel["v1"] != "a1" {
			t.Fatalf("timeout save lost the autosaved selection: %v", sel)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("break never timed out")
	}
}
