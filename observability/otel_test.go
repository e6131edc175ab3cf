package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelEmitterCreatesSpanPerEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(provider.Tracer("shepherd-test"))
	emitter.Emit(Event{Job: 9, Task: 3, Msg: "attempt_terminal", Meta: map[string]any{"exit_code": 0}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "attempt_terminal" {
		t.Fatalf("unexpected span name: %q", spans[0].Name)
	}
}

func TestOTelEmitterEmitBatch(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(provider.Tracer("shepherd-test"))
	err := emitter.EmitBatch(context.Background(), []Event{
		{Job: 1, Msg: "phase_started"},
		{Job: 1, Msg: "phase_stopped"},
	})
	if err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 2 {
		t.Fatalf("expected 2 spans, got %d", got)
	}
}
