package executor

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestFakeExecutorSubmitArray(t *testing.T) {
	e := NewFakeExecutor(time.Hour)
	ids, err := e.Submit(context.Background(), JobSpec{Command: []string{"shepherd", "__transfer", "1"}, Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 workers, got %d", len(ids))
	}
	for _, id := range ids {
		ctx, err := e.Worker(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if ctx.State != WorkerPending {
			t.Fatalf("expected pending, got %v", ctx.State)
		}
		if ctx.RuntimeLimit != time.Hour {
			t.Fatalf("expected runtime limit to be inherited, got %v", ctx.RuntimeLimit)
		}
	}
}

func TestFakeExecutorSignal(t *testing.T) {
	e := NewFakeExecutor(time.Hour)
	ids, err := e.Submit(context.Background(), JobSpec{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Signal(context.Background(), ids[0], syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	signals := e.Signals(ids[0])
	if len(signals) != 1 || signals[0] != syscall.SIGTERM {
		t.Fatalf("expected a recorded SIGTERM, got %v", signals)
	}
}

func TestFakeExecutorSpecificWorker(t *testing.T) {
	e := NewFakeExecutor(time.Hour)
	idx := 2
	ids, err := e.Submit(context.Background(), JobSpec{SpecificWorker: &idx})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one follow-on worker, got %d", len(ids))
	}
}
