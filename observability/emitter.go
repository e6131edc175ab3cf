package observability

import "context"

// Emitter receives observability events raised by the job/attempt state
// machine and the worker protocol. Grounded on the teacher's
// graph/emit.Emitter: the same three-method shape (Emit, EmitBatch,
// Flush), re-pointed at Shepherd's own Event type.
//
// Implementations must not block the caller for long and must not
// panic; a misbehaving emitter should not take down a transfer worker.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events have been sent, or ctx
	// expires.
	Flush(ctx context.Context) error
}
