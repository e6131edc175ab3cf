// Package stateerr defines the persisted-state error hierarchy: failures
// raised by the persistence protocol and the job/attempt state machine.
package stateerr

import "fmt"

// ErrState is the root of the state error hierarchy. Every error this
// package returns satisfies errors.Is(err, ErrState).
var ErrState = fmt.Errorf("state error")

// ErrBackend marks persistence or logic errors: schema failures, invalid
// job/client pairing, unresolved filesystem names.
var ErrBackend = fmt.Errorf("%w: backend error", ErrState)

// ErrData is the root of the transient/logical data-availability errors.
var ErrData = fmt.Errorf("%w: data error", ErrState)

// ErrDataNotReady marks a transient condition: the caller should sleep and
// retry rather than treat this as fatal.
var ErrDataNotReady = fmt.Errorf("%w: not ready", ErrData)

// ErrPeriodNotStarted is raised when a phase is queried before it starts.
var ErrPeriodNotStarted = fmt.Errorf("%w: period not started", ErrDataNotReady)

// ErrNoThroughputData is raised when the throughput view has no rows yet
// for the requested (source, target) pair.
var ErrNoThroughputData = fmt.Errorf("%w: no throughput data", ErrDataNotReady)

// ErrNoTasksAvailable is raised when the ready-to-attempt set is empty at
// the time of an attempt() call.
var ErrNoTasksAvailable = fmt.Errorf("%w: no tasks available", ErrDataNotReady)

// ErrWorkerRedundant marks a worker that has no assigned partition of
// work and should exit without error.
var ErrWorkerRedundant = fmt.Errorf("%w: worker redundant", ErrData)

// ErrNoCommonChecksumAlgorithm is raised by the verifier when source and
// target filesystems share no checksum algorithm.
var ErrNoCommonChecksumAlgorithm = fmt.Errorf("%w: no common checksum algorithm", ErrData)

// BackendError carries a message alongside the ErrBackend sentinel so
// callers get a specific diagnostic while errors.Is(err, ErrBackend)
// still holds.
type BackendError struct {
	Msg string
}

func (e *BackendError) Error() string { return "backend: " + e.Msg }

func (e *BackendError) Unwrap() error { return ErrBackend }

// NewBackend constructs a BackendError with the given message.
func NewBackend(msg string) error { return &BackendError{Msg: msg} }
