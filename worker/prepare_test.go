package worker

import (
	"context"
	"testing"

	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/observability"
	"github.com/wtsi-hgi/shepherd/planner"
	"github.com/wtsi-hgi/shepherd/routing"
	"github.com/wtsi-hgi/shepherd/state"
	"github.com/wtsi-hgi/shepherd/store"
	"github.com/wtsi-hgi/shepherd/transform"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPrepareWorkerInsertsOneTaskPerFoFNLine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job, err := state.OpenJob(ctx, s, "alice", nil, false)
	if err != nil {
		t.Fatalf("OpenJob: %v", err)
	}

	lustre := filesystem.NewMemory("lustre", 4, map[string][]byte{
		"/lustre/a/b.dat": []byte("hello world"),
		"fofn":            []byte("/lustre/a/b.dat\n"),
	})
	irods := filesystem.NewMemory("irods", 4, nil)

	registry := filesystem.NewRegistry()
	registry.Register(lustre)
	registry.Register(irods)

	route := planner.New(lustre, irods, "cp {{source.address}} {{target.address}}", routing.O1)
	route.AddIO(transform.Prefix("/irods/base/coll"))

	pw := &PrepareWorker{
		Job:      job,
		Registry: registry,
		Emitter:  observability.NewBufferedEmitter(),
		FoFN:     "fofn",
	}

	if err := pw.Run(ctx, route); err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts, err := job.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Pending != 1 {
		t.Fatalf("expected 1 pending task, got %+v", counts)
	}

	ts, err := job.PhaseStatus(ctx, "prepare")
	if err != nil {
		t.Fatalf("PhaseStatus: %v", err)
	}
	if ts.Start == nil || ts.Finish == nil {
		t.Fatalf("expected prepare phase to be terminal, got %+v", ts)
	}
}

func TestPrepareWorkerEmptyFoFNYieldsZeroTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job, err := state.OpenJob(ctx, s, "alice", nil, false)
	if err != nil {
		t.Fatalf("OpenJob: %v", err)
	}

	lustre := filesystem.NewMemory("lustre", 4, map[string][]byte{"fofn": []byte("")})
	irods := filesystem.NewMemory("irods", 4, nil)
	registry := filesystem.NewRegistry()
	registry.Register(lustre)
	registry.Register(irods)

	route := planner.New(lustre, irods, "cp {{source.address}} {{target.address}}", routing.O1)

	pw := &PrepareWorker{Job: job, Registry: registry, FoFN: "fofn"}
	if err := pw.Run(ctx, route); err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts, err := job.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Pending != 0 || counts.Running != 0 {
		t.Fatalf("expected zero tasks, got %+v", counts)
	}
	if !counts.Complete() {
		t.Fatalf("expected empty job to be immediately complete")
	}
}
