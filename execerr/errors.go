// Package execerr defines the executor-facing error hierarchy: failures
// submitting or addressing workers on the batch-scheduling cluster.
package execerr

import "fmt"

// ErrExecution is the root of the execution error hierarchy.
var ErrExecution = fmt.Errorf("execution error")

// ErrSubmission is the root of submission failures.
var ErrSubmission = fmt.Errorf("%w: submission error", ErrExecution)

// ErrCouldNotSubmit marks a failed attempt to submit a job to the cluster.
var ErrCouldNotSubmit = fmt.Errorf("%w: could not submit", ErrSubmission)

// ErrWorker is the root of worker-addressing failures.
var ErrWorker = fmt.Errorf("%w: worker error", ErrExecution)

// ErrNoSuchWorker marks a reference to a worker the executor has no
// record of.
var ErrNoSuchWorker = fmt.Errorf("%w: no such worker", ErrWorker)

// ErrCouldNotAddressWorker marks a general failure to reach a worker
// (status query, identification).
var ErrCouldNotAddressWorker = fmt.Errorf("%w: could not address worker", ErrWorker)

// ErrCouldNotSignalWorker marks specifically a failed signal() call. It
// wraps ErrCouldNotAddressWorker so existing errors.Is checks against the
// more general kind still match; this distinction is not named in the
// base error list but mirrors the original implementation's split between
// "can't reach the worker at all" and "reached it but signalling failed".
var ErrCouldNotSignalWorker = fmt.Errorf("%w: could not signal worker", ErrCouldNotAddressWorker)

// ErrNotAWorker marks a WorkerIdentifier that does not correspond to a
// worker process at all (e.g. a stale or malformed identifier).
var ErrNotAWorker = fmt.Errorf("%w: not a worker", ErrWorker)
