package service

import (
	"fmt"
	"sync"

	"github.com/stemsi/exlab-backend/internal/engine"
)

type runtimeKind int

const (
	kindSession runtimeKind = iota
	kindBreak
)

type runtimeKey struct {
	runID     string
	sessionID int
	kind      runtimeKind
}

func (k runtimeKey) String() string {
	kind := "session"
	if k.kind == kindBreak {
		kind = "break"
	}
	return fmt.Sprintf("%s/%s/%d", k.runID, kind, k.sessionID)
}

// driven is anything the registry keeps alive: a runtime plus its driver.
type driven interface {
	driver() *engine.Driver
}

// RuntimeRegistry owns the live session and break runtimes of this
// process. Each entry has exactly one driver goroutine.
type RuntimeRegistry struct {
	mu      sync.Mutex
	entries map[runtimeKey]driven
	closed  bool
}

// NewRuntimeRegistry creates an empty registry.
func NewRuntimeRegistry() *RuntimeRegistry {
	return &RuntimeRegistry{entries: make(map[runtimeKey]driven)}
}

func (r *RuntimeRegistry) get(key runtimeKey) driven {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[key]
}

// put stores e unless another entry won the race for key, in which case
// that entry is returned and stored is false. The caller starts the driver
// only when stored is true.
func (r *RuntimeRegistry) put(key runtimeKey, e driven) (actual driven, stored bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	if existing, ok := r.entries[key]; ok {
		return existing, false
	}
	r.entries[key] = e
	return e, true
}

// remove drops key if it still maps to e. It does not stop the driver, so
// it is safe to call from a driver's expiry callback.
func (r *RuntimeRegistry) remove(key runtimeKey, e driven) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[key]; ok && cur == e {
		delete(r.entries, key)
	}
}

// StopRun stops and forgets every runtime of a run.
func (r *RuntimeRegistry) StopRun(runID string) {
	r.mu.Lock()
	var stopping []driven
	for k, e := range r.entries {
		if k.runID == runID {
			stopping = append(stopping, e)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()

	for _, e := range stopping {
		e.driver().Stop()
	}
}

// Len returns the number of live runtimes.
func (r *RuntimeRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every driver and rejects new runtimes. Drivers in the middle
// of an expiry callback finish it first.
func (r *RuntimeRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	stopping := make([]driven, 0, len(r.entries))
	for k, e := range r.entries {
		stopping = append(stopping, e)
		delete(r.entries, k)
	}
	r.mu.Unlock()

	for _, e := range stopping {
		e.driver().Stop()
	}
}
