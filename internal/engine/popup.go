package engine

import (
	"container/heap"
	"sort"
	"time"
)

// PopupWindow is a popup's visibility window, relative to session start.
type PopupWindow struct {
	ID       int
	Start    time.Duration
	Duration time.Duration
}

// End returns the offset at which the window closes.
func (w PopupWindow) End() time.Duration { return w.Start + w.Duration }

// Contains reports whether elapsed falls inside the window.
func (w PopupWindow) Contains(elapsed time.Duration) bool {
	return w.Start <= elapsed && elapsed < w.End()
}

// PopupTransition is a single show or hide emitted by PopupSchedule.Advance.
type PopupTransition struct {
	PopupID int
	Show    bool
	At      time.Duration
}

type popupEvent struct {
	at      time.Duration
	popupID int
	show    bool
}

// eventQueue orders events by offset. At equal offsets hides come before
// shows, then lower popup ids first.
type eventQueue []popupEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	if q[i].show != q[j].show {
		return !q[i].show
	}
	return q[i].popupID < q[j].popupID
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(popupEvent)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}

// PopupSchedule tracks popup visibility for one session attempt. All show
// and hide boundaries sit in one priority queue so a single timer armed at
// NextBoundary is enough to drive it. It is not safe for concurrent use.
type PopupSchedule struct {
	windows   map[int]PopupWindow
	queue     eventQueue
	visible   map[int]bool
	shown     map[int]bool
	dismissed map[int]bool
}

// NewPopupSchedule builds a schedule for an attempt that is elapsed into
// the session. Windows that closed before elapsed are dropped. shown and
// dismissed restore state from an earlier mount; dismissed popups never
// appear again.
func NewPopupSchedule(windows []PopupWindow, elapsed time.Duration, shown, dismissed []int) *PopupSchedule {
	s := &PopupSchedule{
		windows:   make(map[int]PopupWindow, len(windows)),
		visible:   make(map[int]bool),
		shown:     make(map[int]bool),
		dismissed: make(map[int]bool),
	}
	for _, id := range shown {
		s.shown[id] = true
	}
	for _, id := range dismissed {
		s.dismissed[id] = true
	}

	for _, w := range windows {
		if w.Duration <= 0 {
			continue
		}
		s.windows[w.ID] = w
		if s.dismissed[w.ID] || w.End() <= elapsed {
			continue
		}
		s.queue = append(s.queue,
			popupEvent{at: w.Start, popupID: w.ID, show: true},
			popupEvent{at: w.End(), popupID: w.ID, show: false},
		)
	}
	heap.Init(&s.queue)
	return s
}

// Advance applies every event due at or before elapsed and returns the
// resulting transitions in order.
func (s *PopupSchedule) Advance(elapsed time.Duration) []PopupTransition {
	var out []PopupTransition
	for s.queue.Len() > 0 && s.queue[0].at <= elapsed {
		ev := heap.Pop(&s.queue).(popupEvent)
		if s.dismissed[ev.popupID] {
			continue
		}
		w := s.windows[ev.popupID]

		if ev.show {
			// A late driver can see a show after the window already closed.
			if s.visible[ev.popupID] || !w.Contains(elapsed) {
				continue
			}
			s.visible[ev.popupID] = true
			s.shown[ev.popupID] = true
			out = append(out, PopupTransition{PopupID: ev.popupID, Show: true, At: ev.at})
			continue
		}

		if s.visible[ev.popupID] {
			delete(s.visible, ev.popupID)
			out = append(out, PopupTransition{PopupID: ev.popupID, Show: false, At: ev.at})
		}
	}
	return out
}

// NextBoundary returns the offset of the next pending event.
func (s *PopupSchedule) NextBoundary() (time.Duration, bool) {
	for s.queue.Len() > 0 {
		if !s.dismissed[s.queue[0].popupID] {
			return s.queue[0].at, true
		}
		heap.Pop(&s.queue)
	}
	return 0, false
}

// Dismiss hides id and cancels its pending events for the rest of the attempt.
func (s *PopupSchedule) Dismiss(id int) {
	s.dismissed[id] = true
	delete(s.visible, id)
}

// IsVisible reports whether id is currently shown.
func (s *PopupSchedule) IsVisible(id int) bool { return s.visible[id] }

// Known reports whether id is one of the schedule's windows.
func (s *PopupSchedule) Known(id int) bool {
	_, ok := s.windows[id]
	return ok
}

// Visible returns the ids currently shown, ascending.
func (s *PopupSchedule) Visible() []int { return sortedKeys(s.visible, nil) }

// Shown returns every id that has been shown so far, ascending.
func (s *PopupSchedule) Shown() []int { return sortedKeys(s.shown, nil) }

// Dismissed returns the dismissed ids, ascending.
func (s *PopupSchedule) Dismissed() []int { return sortedKeys(s.dismissed, nil) }

// Unanswered returns ids that were shown but never dismissed.
func (s *PopupSchedule) Unanswered() []int { return sortedKeys(s.shown, s.dismissed) }

func sortedKeys(set map[int]bool, exclude map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for id, ok := range set {
		if ok && !exclude[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
