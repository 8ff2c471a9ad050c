package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// EventKind names a runtime event pushed to subscribers.
type EventKind string

const (
	EventPopupShow EventKind = "popup_show"
	EventPopupHide EventKind = "popup_hide"
	EventTimeUp    EventKind = "time_up"
	EventSubmitted EventKind = "submitted"
	EventError     EventKind = "error"
)

// Event is one runtime notification.
type Event struct {
	Kind      EventKind `json:"event"`
	PopupID   int       `json:"popup_id,omitempty"`
	Remaining int       `json:"remaining"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Steppable is a timed state machine a Driver can run.
type Steppable interface {
	// Step applies every transition due now. expired reports that the
	// countdown reached zero; finished that there is nothing left to drive.
	Step() (events []Event, expired bool, finished bool)
	// Until returns how long to wait before the next transition is due.
	Until() time.Duration
}

const subscriberBuffer = 16

// Driver runs a Steppable on one goroutine with a single one-shot timer
// armed for the next boundary. onExpire runs once, on the driver goroutine,
// when the countdown reaches zero.
type Driver struct {
	clock    clockwork.Clock
	target   Steppable
	onExpire func()

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewDriver creates a driver. Call Start to run it.
func NewDriver(clock clockwork.Clock, target Steppable, onExpire func()) *Driver {
	return &Driver{
		clock:    clock,
		target:   target,
		onExpire: onExpire,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		subs:     make(map[int]chan Event),
	}
}

// Start launches the driver goroutine.
func (d *Driver) Start() {
	go d.run()
}

func (d *Driver) run() {
	defer close(d.done)

	for {
		events, expired, finished := d.target.Step()
		for _, ev := range events {
			d.Publish(ev)
		}
		if finished {
			return
		}
		if expired {
			d.Publish(Event{Kind: EventTimeUp})
			if d.onExpire != nil {
				d.onExpire()
			}
			return
		}

		timer := d.clock.NewTimer(d.target.Until())
		select {
		case <-timer.Chan():
		case <-d.wake:
			stopAndDrainTimer(timer)
		case <-d.stop:
			stopAndDrainTimer(timer)
			return
		}
	}
}

// Reschedule makes the driver re-read its target, for example after a
// popup was dismissed.
func (d *Driver) Reschedule() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop halts the driver and waits for its goroutine to exit. It must not be
// called from onExpire.
func (d *Driver) Stop() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

// Done is closed once the driver goroutine has exited.
func (d *Driver) Done() <-chan struct{} { return d.done }

// Subscribe returns a channel of events and a function that detaches it.
// Slow subscribers miss events rather than block the driver.
func (d *Driver) Subscribe() (<-chan Event, func()) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan Event, subscriberBuffer)
	d.subs[id] = ch

	return ch, func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if c, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(c)
		}
	}
}

// Publish fans ev out to every subscriber.
func (d *Driver) Publish(ev Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
