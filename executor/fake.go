package executor

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"
)

// FakeExecutor is an in-memory Executor double for worker-protocol tests.
// It is not named by the external interfaces description, but every
// worker-loop test needs a scheduler double that does not shell out to a
// real cluster.
type FakeExecutor struct {
	mu      sync.Mutex
	next    int
	workers map[WorkerIdentifier]*fakeWorker

	// RuntimeLimit is copied into each worker when Submit creates it, and
	// Worker() reports that copy. SetState changes only a worker's state.
	RuntimeLimit time.Duration
}

type fakeWorker struct {
	state    WorkerState
	signals  []syscall.Signal
	limit    time.Duration
}

// NewFakeExecutor constructs an empty FakeExecutor with the given default
// runtime limit.
func NewFakeExecutor(runtimeLimit time.Duration) *FakeExecutor {
	return &FakeExecutor{
		workers:      make(map[WorkerIdentifier]*fakeWorker),
		RuntimeLimit: runtimeLimit,
	}
}

func (e *FakeExecutor) Submit(_ context.Context, spec JobSpec) ([]WorkerIdentifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if spec.SpecificWorker != nil {
		id := WorkerIdentifier(fmt.Sprintf("fake-%d", *spec.SpecificWorker))
		e.workers[id] = &fakeWorker{state: WorkerPending, limit: e.RuntimeLimit}
		return []WorkerIdentifier{id}, nil
	}

	n := spec.Workers
	if n < 1 {
		n = 1
	}
	ids := make([]WorkerIdentifier, n)
	for i := 0; i < n; i++ {
		e.next++
		id := WorkerIdentifier(fmt.Sprintf("fake-%d", e.next))
		e.workers[id] = &fakeWorker{state: WorkerPending, limit: e.RuntimeLimit}
		ids[i] = id
	}
	return ids, nil
}

func (e *FakeExecutor) Signal(_ context.Context, worker WorkerIdentifier, signum syscall.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[worker]
	if !ok {
		return fmt.Errorf("executor: unknown worker %q", worker)
	}
	w.signals = append(w.signals, signum)
	return nil
}

func (e *FakeExecutor) Worker(_ context.Context, worker WorkerIdentifier) (WorkerContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[worker]
	if !ok {
		return WorkerContext{}, fmt.Errorf("executor: unknown worker %q", worker)
	}
	return WorkerContext{ID: worker, State: w.state, RuntimeLimit: w.limit}, nil
}

// SetState lets a test drive a worker through its lifecycle.
func (e *FakeExecutor) SetState(worker WorkerIdentifier, state WorkerState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[worker]; ok {
		w.state = state
	}
}

// Signals returns the signals sent to worker, in order, for test
// assertions.
func (e *FakeExecutor) Signals(worker WorkerIdentifier) []syscall.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[worker]; ok {
		return append([]syscall.Signal(nil), w.signals...)
	}
	return nil
}
