package store

import (
	"context"
	"errors"
	"testing"

	"github.com/wtsi-hgi/shepherd/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHappyPathSingleFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	job, err := s.CreateJob(ctx, tx, "alice", 3)
	if err != nil {
		t.Fatal(err)
	}
	lustre, err := s.UpsertFilesystem(ctx, tx, job, "lustre", 4)
	if err != nil {
		t.Fatal(err)
	}
	irods, err := s.UpsertFilesystem(ctx, tx, job, "irods", 4)
	if err != nil {
		t.Fatal(err)
	}
	source, err := s.InsertData(ctx, tx, lustre, "/lustre/a/b.dat")
	if err != nil {
		t.Fatal(err)
	}
	target, err := s.InsertData(ctx, tx, irods, "/irods/base/coll/b.dat")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertTask(ctx, tx, job, source, target, "cp ...", nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err = s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	attempt, task, err := s.Attempt(ctx, tx, job, nil)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if task.Source != source || task.Target != target {
		t.Fatalf("unexpected task: %+v", task)
	}
	if err := s.FinishAttempt(ctx, tx, attempt.ID, 0); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	counts, err := s.JobCounts(ctx, job)
	if err != nil {
		t.Fatal(err)
	}
	if counts != (model.JobCounts{Succeeded: 1}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestSizeIsWriteOncePerData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, _ := s.Begin(ctx)
	job, _ := s.CreateJob(ctx, tx, "alice", 3)
	fs, _ := s.UpsertFilesystem(ctx, tx, job, "lustre", 4)
	data, _ := s.InsertData(ctx, tx, fs, "/x")

	got, err := s.SetSize(ctx, tx, data, 100)
	if err != nil || got != 100 {
		t.Fatalf("SetSize: %v %v", got, err)
	}
	got, err = s.SetSize(ctx, tx, data, 999)
	if err != nil || got != 100 {
		t.Fatalf("expected write-once semantics to keep 100, got %v %v", got, err)
	}
	_ = tx.Commit()
}

func TestAttemptNoTasksAvailable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, _ := s.Begin(ctx)
	job, _ := s.CreateJob(ctx, tx, "alice", 1)
	_ = tx.Commit()

	tx, _ = s.Begin(ctx)
	_, _, err := s.Attempt(ctx, tx, job, nil)
	if !errors.Is(err, errNoTasksAvailable) {
		t.Fatalf("expected ErrNoTasksAvailable, got %v", err)
	}
	_ = tx.Rollback()
}

func TestForciblyTerminateInFlight(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, _ := s.Begin(ctx)
	job, _ := s.CreateJob(ctx, tx, "alice", 3)
	fs, _ := s.UpsertFilesystem(ctx, tx, job, "lustre", 4)
	src, _ := s.InsertData(ctx, tx, fs, "/x")
	tgt, _ := s.InsertData(ctx, tx, fs, "/y")
	_, _ = s.InsertTask(ctx, tx, job, src, tgt, "cp", nil)
	_ = tx.Commit()

	tx, _ = s.Begin(ctx)
	attempt, _, err := s.Attempt(ctx, tx, job, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.StartAttempt(ctx, tx, attempt.ID)
	_ = tx.Commit()

	tx, _ = s.Begin(ctx)
	n, err := s.ForciblyTerminateInFlight(ctx, tx, job)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 attempt terminated, got %d", n)
	}
	_ = tx.Commit()

	code, err := s.GetExitCode(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if code == nil || *code != model.ForciblyTerminated {
		t.Fatalf("expected ForciblyTerminated exit code, got %v", code)
	}
}
