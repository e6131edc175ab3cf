package observability

import "context"

// MultiEmitter fans an event out to every wrapped Emitter, the "multi-emit"
// pattern the adapted emit package names but never implements. Shepherd's
// CLI currently wraps a single LogEmitter in it; further backends such as
// an OTelEmitter can be passed alongside to receive the same events.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter wraps zero or more Emitters.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

func (m *MultiEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range m.emitters {
		if err := e.EmitBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiEmitter) Flush(ctx context.Context) error {
	for _, e := range m.emitters {
		if err := e.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}
