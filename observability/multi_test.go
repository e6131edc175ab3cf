package observability

import (
	"context"
	"testing"
)

func TestMultiEmitterFansOutToEveryBackend(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := NewMultiEmitter(a, b)

	m.Emit(Event{Job: 1, Msg: "job_created"})

	if len(a.History(1)) != 1 || len(b.History(1)) != 1 {
		t.Fatalf("expected both backends to receive the event, got a=%v b=%v", a.History(1), b.History(1))
	}
}

func TestMultiEmitterEmitBatchPropagatesToAll(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := NewMultiEmitter(a, b)

	events := []Event{{Job: 1, Msg: "phase_started"}, {Job: 1, Msg: "phase_stopped"}}
	if err := m.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}

	if len(a.History(1)) != 2 || len(b.History(1)) != 2 {
		t.Fatalf("expected both backends to receive both events, got a=%v b=%v", a.History(1), b.History(1))
	}
}

func TestMultiEmitterWithNoBackendsIsSafe(t *testing.T) {
	m := NewMultiEmitter()
	m.Emit(Event{Job: 1, Msg: "job_created"})
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
