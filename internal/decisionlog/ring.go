package decisionlog

import (
	"context"
	"sync"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 1000

// Ring keeps the most recent events in memory. When full, the oldest event
// is dropped to make room.
//
// Thread Safety: all methods are safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []Event
	start int
	size  int
}

var _ Writer = (*Ring)(nil)

// NewRing creates a ring holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Event, capacity)}
}

// Write implements Writer. It never fails.
func (r *Ring) Write(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = e
	if r.size < len(r.buf) {
		r.size++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
	return nil
}

// Recent returns up to limit of the newest events, oldest first.
// A limit <= 0 returns everything held.
func (r *Ring) Recent(limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	skip := r.size - n
	for i := range n {
		out[i] = r.buf[(r.start+skip+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of events held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of events held.
func (r *Ring) Capacity() int {
	return len(r.buf)
}
