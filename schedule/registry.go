package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry is one running keyed unit of work.
type entry[Key comparable] struct {
	id        string
	key       Key
	cancel    context.CancelFunc
	startedAt time.Time
}

type admission uint8

const (
	admitted admission = iota
	droppedClosed
	droppedDuplicate
	droppedThrottled
)

func (a admission) String() string {
	switch a {
	case admitted:
		return "admitted"
	case droppedClosed:
		return "dropped_closed"
	case droppedDuplicate:
		return "dropped_duplicate"
	case droppedThrottled:
		return "dropped_throttled"
	default:
		return "unknown"
	}
}

// registry owns the cancel-key → running-unit map and the last-start
// timestamps used for throttling. Every mutation happens under one mutex;
// nothing here ever blocks while holding it.
type registry[Key comparable] struct {
	mu        sync.Mutex
	entries   map[Key]*entry[Key]
	lastStart map[Key]time.Time
	closed    bool
}

func newRegistry[Key comparable]() *registry[Key] {
	return &registry[Key]{
		entries:   make(map[Key]*entry[Key]),
		lastStart: make(map[Key]time.Time),
	}
}

// admit decides whether a keyed submission may start. On admission it
// registers a fresh entry and records the start time for throttling; a
// submission without a throttle window resets any stored timestamp so a
// stale one cannot leak into later throttled submissions.
func (r *registry[Key]) admit(
	key Key,
	cancelInFlight bool,
	throttle time.Duration,
	cancel context.CancelFunc,
) (*entry[Key], admission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, droppedClosed
	}

	if throttle > 0 {
		if last, ok := r.lastStart[key]; ok && time.Since(last) < throttle {
			return nil, droppedThrottled
		}
	}

	if running, ok := r.entries[key]; ok {
		if !cancelInFlight {
			return nil, droppedDuplicate
		}
		running.cancel()
		delete(r.entries, key)
	}

	now := time.Now()
	if throttle > 0 {
		r.lastStart[key] = now
	} else {
		delete(r.lastStart, key)
	}

	ent := &entry[Key]{
		id:        uuid.New().String(),
		key:       key,
		cancel:    cancel,
		startedAt: now,
	}
	r.entries[key] = ent
	return ent, admitted
}

// release removes ent on completion. A unit displaced by a cancel-in-flight
// replacement must not remove its successor, so removal is identity-guarded.
func (r *registry[Key]) release(ent *entry[Key]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[ent.key]; ok && current == ent {
		delete(r.entries, ent.key)
	}
}

// cancel stops and removes the unit under key, reporting whether one existed.
func (r *registry[Key]) cancel(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.entries[key]
	if !ok {
		return false
	}
	ent.cancel()
	delete(r.entries, key)
	return true
}

// cancelAll stops and removes every unit, reporting how many there were.
func (r *registry[Key]) cancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for key, ent := range r.entries {
		ent.cancel()
		delete(r.entries, key)
	}
	return n
}

// close stops accepting new submissions and cancels everything in flight.
func (r *registry[Key]) close() int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.cancelAll()
}

func (r *registry[Key]) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *registry[Key]) running(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

func (r *registry[Key]) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
