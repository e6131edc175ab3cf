package worker

import (
	"context"
	"testing"
	"time"

	"github.com/wtsi-hgi/shepherd/executor"
	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/observability"
	"github.com/wtsi-hgi/shepherd/state"
	"github.com/wtsi-hgi/shepherd/store"
	"github.com/wtsi-hgi/shepherd/verify"
)

func newTransferHarness(t *testing.T) (store.Store, *state.Job, *filesystem.Registry) {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()

	job, err := state.OpenJob(ctx, s, "alice", nil, false)
	if err != nil {
		t.Fatalf("OpenJob: %v", err)
	}

	reg := filesystem.NewRegistry()
	src := filesystem.NewMemory("src", 4, map[string][]byte{"/a": []byte("hello world")})
	dst := filesystem.NewMemory("dst", 4, nil)
	reg.Register(src)
	reg.Register(dst)
	// The script itself cannot reach into the in-memory filesystem double
	// from a real subprocess, so the test simulates the script's effect
	// directly: an identical copy already landed at the target address
	// before the (no-op, exit-0) script runs.
	dst.Write("/b", []byte("hello world"))

	if _, err := job.AddTaskTree(ctx, reg, []state.DependentTask{{
		SourceFilesystem: "src",
		SourceAddress:    "/a",
		TargetFilesystem: "dst",
		TargetAddress:    "/b",
		Script:           "#!/bin/sh\nexit 0\n",
	}}); err != nil {
		t.Fatalf("AddTaskTree: %v", err)
	}

	if err := job.InitPhase(ctx, "prepare"); err != nil {
		t.Fatalf("InitPhase(prepare): %v", err)
	}
	if err := job.StopPhase(ctx, "prepare"); err != nil {
		t.Fatalf("StopPhase(prepare): %v", err)
	}

	return s, job, reg
}

func TestTransferWorkerHappyPathCompletesAndStopsPhase(t *testing.T) {
	ctx := context.Background()
	s, job, reg := newTransferHarness(t)

	exec := executor.NewFakeExecutor(time.Hour)

	tw := &TransferWorker{
		Job:          job,
		Verifier:     verify.New(s, reg),
		Executor:     exec,
		Emitter:      observability.NewBufferedEmitter(),
		Self:         "fake-0",
		Index:        1,
		ProcessStart: time.Now(),
		RuntimeLimit: time.Hour,
		Sleep:        func(time.Duration) {},
	}

	if err := tw.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts, err := job.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if counts.Succeeded != 1 || !counts.Complete() {
		t.Fatalf("expected one succeeded task and completion, got %+v", counts)
	}

	ts, err := job.PhaseStatus(ctx, "transfer")
	if err != nil {
		t.Fatalf("PhaseStatus: %v", err)
	}
	if ts.Start == nil || ts.Finish == nil {
		t.Fatalf("expected transfer phase terminal, got %+v", ts)
	}
}

func TestTransferWorkerDaisyChainDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	s, job, reg := newTransferHarness(t)

	exec := executor.NewFakeExecutor(time.Hour)
	tw := &TransferWorker{
		Job:          job,
		Verifier:     verify.New(s, reg),
		Executor:     exec,
		Self:         "fake-0",
		Index:        1,
		ProcessStart: time.Now(),
		RuntimeLimit: time.Hour,
		Sleep:        func(time.Duration) {},
	}

	if err := tw.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// No follow-on should have been submitted, so the fake executor has no
	// registered workers to signal; Run completing without error confirms
	// the cancellation branch tolerated an empty follow-on identifier.
	if _, err := exec.Worker(ctx, "fake-1"); err == nil {
		t.Fatalf("expected no follow-on worker to be submitted without DAISYCHAIN")
	}
}

func TestTransferWorkerDaisyChainSubmitsAndCancelsFollowOn(t *testing.T) {
	ctx := context.Background()
	s, job, reg := newTransferHarness(t)

	if err := job.SetMetadata(ctx, "DAISYCHAIN", "Yes"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}

	exec := executor.NewFakeExecutor(time.Hour)
	tw := &TransferWorker{
		Job:          job,
		Verifier:     verify.New(s, reg),
		Executor:     exec,
		Self:         "fake-0",
		Index:        1,
		FollowOn:     executor.JobSpec{Command: []string{"shepherd", "__transfer", "1"}},
		ProcessStart: time.Now(),
		RuntimeLimit: time.Hour,
		Sleep:        func(time.Duration) {},
	}

	if err := tw.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	signals := exec.Signals("fake-1")
	if len(signals) != 1 {
		t.Fatalf("expected follow-on to receive exactly one signal, got %v", signals)
	}
}
