package observability

import (
	"context"
	"sync"
)

// BufferedEmitter stores every event in memory, keyed by job. Used by
// worker-protocol tests that need to assert on the exact sequence of
// events a run produced without wiring a real logging backend.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[int64][]Event
}

// NewBufferedEmitter constructs an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[int64][]Event)}
}

func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.Job] = append(b.events[event.Job], event)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		b.Emit(event)
	}
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of the events recorded for job, in emission
// order.
func (b *BufferedEmitter) History(job int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[job]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
