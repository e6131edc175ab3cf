package worker

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/wtsi-hgi/shepherd/executor"
	"github.com/wtsi-hgi/shepherd/model"
	"github.com/wtsi-hgi/shepherd/observability"
	"github.com/wtsi-hgi/shepherd/state"
	"github.com/wtsi-hgi/shepherd/stateerr"
	"github.com/wtsi-hgi/shepherd/verify"
)

// DefaultFudge is the safety margin subtracted from a worker's runtime
// limit to compute its deadline, and the sleep interval used while
// waiting for the preparation phase to start. Named "fudge(5min)" by the
// worker protocol component design.
const DefaultFudge = 5 * time.Minute

// TransferWorker drives one indexed slot of a job's transfer-worker
// array: it submits its own follow-on before doing any work, then loops
// claiming and verifying attempts until its deadline or the job
// completes.
type TransferWorker struct {
	Job      *state.Job
	Verifier *verify.Verifier
	Executor executor.Executor
	Emitter  observability.Emitter
	Metrics  *observability.Metrics

	// Self is this worker's own identifier, used as the daisy-chain
	// follow-on's dependency; Index is the slot the follow-on is
	// resubmitted to (its SpecificWorker).
	Self  executor.WorkerIdentifier
	Index int

	// FollowOn describes how to resubmit this same worker slot. Command
	// is the full re-exec command line (the binary's own path plus
	// "__transfer <job>"); Queue, Env, Stdout, Stderr mirror it onto the
	// cluster job spec.
	FollowOn executor.JobSpec

	// ProcessStart is when this process began; RuntimeLimit is the
	// scheduler-reported wall-clock budget for this worker slot. Fudge
	// defaults to DefaultFudge if zero.
	ProcessStart time.Time
	RuntimeLimit time.Duration
	Fudge        time.Duration

	// Sleep is overridable by tests to avoid real waits.
	Sleep func(time.Duration)
}

// Run executes the transfer-worker driver loop described by spec.md
// §4.8: submit the follow-on, compute the deadline, wait for
// preparation to start, enter the transfer phase, then loop claiming
// and verifying attempts until the deadline, job completion, or an
// unrecoverable error.
func (w *TransferWorker) Run(ctx context.Context) error {
	if w.Emitter == nil {
		w.Emitter = observability.NewNullEmitter()
	}
	if w.Fudge == 0 {
		w.Fudge = DefaultFudge
	}
	if w.Sleep == nil {
		w.Sleep = time.Sleep
	}

	followOnID, err := w.submitFollowOn(ctx)
	if err != nil {
		return fmt.Errorf("worker: transfer: submit follow-on: %w", err)
	}

	deadline := w.ProcessStart.Add(w.RuntimeLimit).Add(-w.Fudge)

	if err := w.waitForPreparation(ctx, deadline); err != nil {
		return err
	}

	if err := w.Job.InitPhase(ctx, model.PhaseTransfer); err != nil {
		return fmt.Errorf("worker: transfer: init phase: %w", err)
	}
	w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "phase_started", Meta: map[string]any{"phase": string(model.PhaseTransfer)}})

	return w.loop(ctx, deadline, followOnID)
}

// submitFollowOn resubmits this worker's own index, dependent on its own
// termination. It is skipped entirely when job metadata DAISYCHAIN is
// not set to "Yes".
func (w *TransferWorker) submitFollowOn(ctx context.Context) (executor.WorkerIdentifier, error) {
	enabled, _, err := w.Job.Metadata(ctx, "DAISYCHAIN")
	if err != nil {
		return "", err
	}
	if enabled != "Yes" {
		return "", nil
	}

	spec := w.FollowOn
	spec.SpecificWorker = &w.Index
	spec.Workers = 0
	spec.Dependencies = append(append([]executor.Dependency{}, spec.Dependencies...), executor.Dependency{Worker: w.Self})

	ids, err := w.Executor.Submit(ctx, spec)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("worker: transfer: follow-on submission returned no worker id")
	}
	w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "worker_followon_submitted", Meta: map[string]any{"worker": string(ids[0])}})
	return ids[0], nil
}

// waitForPreparation sleeps in Fudge-sized increments until the
// preparation phase has started, or returns an error once deadline is
// reached first.
func (w *TransferWorker) waitForPreparation(ctx context.Context, deadline time.Time) error {
	for {
		ts, err := w.Job.PhaseStatus(ctx, model.PhasePrepare)
		if err != nil {
			return fmt.Errorf("worker: transfer: phase status: %w", err)
		}
		if ts.Start != nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("worker: transfer: deadline reached waiting for preparation to start")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.Sleep(w.Fudge)
	}
}

// loop is the core claim/verify cycle.
func (w *TransferWorker) loop(ctx context.Context, deadline time.Time, followOnID executor.WorkerIdentifier) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "worker_exit", Meta: map[string]any{"reason": "deadline"}})
			return nil
		}

		attempt, task, err := w.Job.Attempt(ctx, &remaining)
		if err != nil {
			if errors.Is(err, stateerr.ErrNoTasksAvailable) {
				return w.handleNoTasksAvailable(ctx, followOnID)
			}
			return fmt.Errorf("worker: transfer: attempt: %w", err)
		}

		w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Task: task.ID, Msg: "attempt_start"})
		start := time.Now()
		verifyErr := w.Verifier.Run(ctx, attempt, task)
		if verifyErr != nil {
			return fmt.Errorf("worker: transfer: verify: %w", verifyErr)
		}

		exitCode, err := w.Job.ExitCode(ctx, attempt.ID)
		if err != nil {
			return fmt.Errorf("worker: transfer: read exit code: %w", err)
		}
		w.recordOutcome(task, start, exitCode)
	}
}

func (w *TransferWorker) recordOutcome(task model.Task, start time.Time, exitCode *int) {
	status := "success"
	if exitCode == nil || *exitCode != 0 {
		status = "failure"
		switch {
		case exitCode != nil && *exitCode == model.MismatchedSize:
			status = "size_mismatch"
			if w.Metrics != nil {
				w.Metrics.IncrementMismatch(fmt.Sprint(w.Job.ID()), "size")
			}
		case exitCode != nil && *exitCode == model.MismatchedChecksum:
			status = "checksum_mismatch"
			if w.Metrics != nil {
				w.Metrics.IncrementMismatch(fmt.Sprint(w.Job.ID()), "checksum")
			}
		}
	}
	if w.Metrics != nil {
		w.Metrics.ObserveAttempt(fmt.Sprint(w.Job.ID()), status, time.Since(start))
	}
	w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Task: task.ID, Msg: "attempt_terminal", Meta: map[string]any{
		"status": status,
	}})
}

// handleNoTasksAvailable implements the terminal branch of the loop: if
// there is still work pending or preparation has not finished, this
// worker simply cannot fit anything remaining and exits; otherwise it
// cancels its own follow-on and, if no attempt anywhere is still
// running, stops the transfer phase.
func (w *TransferWorker) handleNoTasksAvailable(ctx context.Context, followOnID executor.WorkerIdentifier) error {
	prepInProgress, err := w.Job.Phase(model.PhasePrepare).InProgress(ctx)
	if err != nil {
		return fmt.Errorf("worker: transfer: preparation phase status: %w", err)
	}

	counts, err := w.Job.Status(ctx)
	if err != nil {
		return fmt.Errorf("worker: transfer: job status: %w", err)
	}

	if prepInProgress || counts.Pending > 0 {
		w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "worker_exit", Meta: map[string]any{"reason": "no_fit"}})
		return nil
	}

	if followOnID != "" {
		if err := w.Executor.Signal(ctx, followOnID, syscall.SIGTERM); err != nil {
			return fmt.Errorf("worker: transfer: cancel follow-on: %w", err)
		}
	}

	if counts.Running == 0 {
		if err := w.Job.StopPhase(ctx, model.PhaseTransfer); err != nil {
			return fmt.Errorf("worker: transfer: stop phase: %w", err)
		}
		w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "phase_stopped", Meta: map[string]any{"phase": string(model.PhaseTransfer)}})
	}

	w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "worker_exit", Meta: map[string]any{"reason": "complete"}})
	return nil
}
