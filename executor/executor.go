// Package executor defines the batch-scheduler adapter contract: submit
// jobs, signal running workers, and query a worker's context (status,
// runtime limit). Grounded on original_source/lib/execution/cluster.py.
package executor

import (
	"context"
	"syscall"
	"time"
)

// WorkerIdentifier names one submitted unit of work on the cluster.
type WorkerIdentifier string

// WorkerState is the scheduler-reported lifecycle state of a worker.
type WorkerState string

const (
	WorkerPending WorkerState = "pending"
	WorkerRunning WorkerState = "running"
	WorkerDone    WorkerState = "done"
	WorkerFailed  WorkerState = "failed"
	WorkerUnknown WorkerState = "unknown"
)

// WorkerContext is what the scheduler knows about one worker.
type WorkerContext struct {
	ID           WorkerIdentifier
	State        WorkerState
	RuntimeLimit time.Duration
}

// Dependency is an "ended after" predicate: the submitted job may not
// start until the named worker has terminated (successfully or not).
type Dependency struct {
	Worker WorkerIdentifier
}

// JobSpec describes one unit of work to submit. Exactly one of Workers or
// SpecificWorker should be set: Workers requests a fresh array of that
// size, SpecificWorker re-submits a single named index of an existing
// array (the daisy-chain follow-on case).
type JobSpec struct {
	Command []string
	Stdout  string
	Stderr  string
	Env     map[string]string
	Queue   string

	Workers       int
	SpecificWorker *int

	Dependencies []Dependency
}

// Executor is the batch-scheduler adapter contract.
type Executor interface {
	// Submit enqueues spec and returns the identifiers of every worker it
	// spawned (one per element of Workers, or a single element for
	// SpecificWorker).
	Submit(ctx context.Context, spec JobSpec) ([]WorkerIdentifier, error)

	// Signal sends signum to worker.
	Signal(ctx context.Context, worker WorkerIdentifier, signum syscall.Signal) error

	// Worker reports the scheduler's current view of worker.
	Worker(ctx context.Context, worker WorkerIdentifier) (WorkerContext, error)
}
