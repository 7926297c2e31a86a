package decisionlog

import (
	"context"
	"sync"
)

// Batch is a Sink that holds events until they are flushed. The scheduler
// collects a tick's events in a Batch while it holds the registry lock and
// hands them to the real sink afterwards.
type Batch struct {
	mu     sync.Mutex
	events []Event
}

// Append implements Sink.
func (b *Batch) Append(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Drain returns the held events in append order and empties the batch.
func (b *Batch) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// FlushTo appends every held event to sink and returns how many there were.
func (b *Batch) FlushTo(ctx context.Context, sink Sink) int {
	events := b.Drain()
	for _, e := range events {
		sink.Append(ctx, e)
	}
	return len(events)
}
