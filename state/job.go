// Package state implements the job/attempt state machine: job
// construction (including forcible-restart recovery), dependency-chained
// task insertion, attempt selection under deadlines, and the job-status
// aggregate. Grounded throughout on original_source/lib/state/postgresql/
// state.py (PGJob, PGAttempt, PGJobStatus).
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/model"
	"github.com/wtsi-hgi/shepherd/stateerr"
	"github.com/wtsi-hgi/shepherd/store"
)

const defaultMaxAttempts = 1

// Job wraps a persisted job row with the operations the state machine
// exposes over it: task-tree insertion, attempt selection, metadata, and
// phase access.
type Job struct {
	store store.Store
	id    int64
	client string
}

// OpenJob constructs or attaches to a job, per the job-construction
// semantics: if jobID is non-nil, it verifies the row belongs to client
// (failing with a BackendError otherwise); if forceRestart is set, it
// asserts both phases are terminal then reclaims every in-flight attempt
// with the ForciblyTerminated sentinel. If jobID is nil, a fresh job row
// is created with max_attempts=1.
func OpenJob(ctx context.Context, s store.Store, client string, jobID *int64, forceRestart bool) (*Job, error) {
	if jobID == nil {
		tx, err := s.Begin(ctx)
		if err != nil {
			return nil, err
		}
		id, err := s.CreateJob(ctx, tx, client, defaultMaxAttempts)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &Job{store: s, id: id, client: client}, nil
	}

	existing, err := s.GetJob(ctx, *jobID)
	if err != nil {
		return nil, stateerr.NewBackend(fmt.Sprintf("job %d not found: %v", *jobID, err))
	}
	if existing.Client != client {
		return nil, stateerr.NewBackend(fmt.Sprintf("job %d was not created by client %q", *jobID, client))
	}

	j := &Job{store: s, id: *jobID, client: client}

	if forceRestart {
		if err := j.forceRestart(ctx); err != nil {
			return nil, err
		}
	}

	return j, nil
}

// ID returns the persisted job id.
func (j *Job) ID() int64 { return j.id }

// forceRestart asserts both phases are terminal, then rewrites every
// in-flight attempt to (start=coalesce(start,now), finish=now,
// exit_code=ForciblyTerminated). It does not re-run them: the retry-count
// logic in the task_status view picks them up if max_attempts permits.
func (j *Job) forceRestart(ctx context.Context) error {
	for _, phase := range []model.Phase{model.PhasePrepare, model.PhaseTransfer} {
		ts, err := j.store.PhaseStatus(ctx, j.id, phase)
		if err != nil {
			return err
		}
		if ts.Finish == nil {
			return stateerr.NewBackend(fmt.Sprintf("force_restart requires phase %q to be terminal", phase))
		}
	}

	tx, err := j.store.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := j.store.ForciblyTerminateInFlight(ctx, tx, j.id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SetMaxAttempts updates the job's retry budget.
func (j *Job) SetMaxAttempts(ctx context.Context, n int) error {
	tx, err := j.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := j.store.SetMaxAttempts(ctx, tx, j.id, n); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SetMetadata upserts a job metadata key/value pair.
func (j *Job) SetMetadata(ctx context.Context, key, value string) error {
	tx, err := j.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := j.store.SetMetadata(ctx, tx, j.id, key, value); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Metadata reads a job metadata value, returning ok=false if unset.
func (j *Job) Metadata(ctx context.Context, key string) (string, bool, error) {
	return j.store.GetMetadata(ctx, j.id, key)
}

// Phase returns a scoped-acquisition handle for one of the job's phases.
func (j *Job) Phase(phase model.Phase) *PhaseHandle {
	return Phase(j.store, j.id, phase)
}

// InitPhase opens its own transaction and idempotently sets the named
// phase's start timestamp. Convenience wrapper over PhaseHandle.Init for
// callers (the worker protocol) that have no open transaction of their
// own to reuse.
func (j *Job) InitPhase(ctx context.Context, phase model.Phase) error {
	tx, err := j.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := j.Phase(phase).Init(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// StopPhase opens its own transaction and sets the named phase's finish
// timestamp (coalesced, so re-entry never moves it backward).
func (j *Job) StopPhase(ctx context.Context, phase model.Phase) error {
	tx, err := j.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := j.Phase(phase).Stop(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PhaseStatus reads the named phase's persisted timestamps.
func (j *Job) PhaseStatus(ctx context.Context, phase model.Phase) (model.JobTimestamp, error) {
	return j.Phase(phase).Status(ctx)
}

// DependentTask is one step of a dependency chain to insert, root first.
// Source is the root step's already-materialised source address (and its
// size, required by the throughput estimator — this is the only
// interface for recording a root source's size); every subsequent step's
// source is implicitly the previous step's target.
type DependentTask struct {
	SourceFilesystem string
	SourceAddress    string
	SourceSize       *int64

	TargetFilesystem string
	TargetAddress    string

	Script string
}

// AddTaskTree walks the dependency chain root-first, inserting one Task
// row per step. Each step's source is either a fresh Data row (the root,
// persisted together with its size if supplied) or the previous step's
// target Data row aliased as this step's source, so verification state
// is computed once per intermediate. Grounded on PGJob._add_task_tree.
func (j *Job) AddTaskTree(ctx context.Context, registry *filesystem.Registry, chain []DependentTask) (int64, error) {
	if len(chain) == 0 {
		return 0, fmt.Errorf("state: empty task chain")
	}

	tx, err := j.store.Begin(ctx)
	if err != nil {
		return 0, err
	}

	var previousTarget int64
	var lastTaskID int64
	var dependency *int64

	for i, step := range chain {
		var sourceData int64

		if i == 0 {
			srcFS, err := j.resolveFilesystem(ctx, tx, step.SourceFilesystem, registry)
			if err != nil {
				_ = tx.Rollback()
				return 0, err
			}
			sourceData, err = j.store.InsertData(ctx, tx, srcFS, step.SourceAddress)
			if err != nil {
				_ = tx.Rollback()
				return 0, err
			}
			if step.SourceSize != nil {
				if _, err := j.store.SetSize(ctx, tx, sourceData, *step.SourceSize); err != nil {
					_ = tx.Rollback()
					return 0, err
				}
			}
		} else {
			sourceData = previousTarget
		}

		tgtFS, err := j.resolveFilesystem(ctx, tx, step.TargetFilesystem, registry)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		targetData, err := j.store.InsertData(ctx, tx, tgtFS, step.TargetAddress)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}

		taskID, err := j.store.InsertTask(ctx, tx, j.id, sourceData, targetData, step.Script, dependency)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}

		previousTarget = targetData
		lastTaskID = taskID
		id := taskID
		dependency = &id
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return lastTaskID, nil
}

func (j *Job) resolveFilesystem(ctx context.Context, tx store.Tx, name string, registry *filesystem.Registry) (int64, error) {
	fs, err := registry.Resolve(name)
	if err != nil {
		return 0, stateerr.NewBackend(err.Error())
	}
	return j.store.UpsertFilesystem(ctx, tx, j.id, fs.Name(), fs.MaxConcurrency())
}

// Attempt atomically selects the first ready task (optionally bounded by
// timeLimit), inserts a sentinel attempt row, and returns it. It fails
// with stateerr.ErrNoTasksAvailable if the ready set is empty.
func (j *Job) Attempt(ctx context.Context, timeLimit *time.Duration) (model.Attempt, model.Task, error) {
	tx, err := j.store.Begin(ctx)
	if err != nil {
		return model.Attempt{}, model.Task{}, err
	}
	if err := tx.LockAttempts(ctx); err != nil {
		_ = tx.Rollback()
		return model.Attempt{}, model.Task{}, err
	}

	attempt, task, err := j.store.Attempt(ctx, tx, j.id, timeLimit)
	if err != nil {
		_ = tx.Rollback()
		return model.Attempt{}, model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Attempt{}, model.Task{}, err
	}
	return attempt, task, nil
}

// Next implements the no-limit iteration loop: repeatedly call Attempt
// until the job is complete and no work remains.
func (j *Job) Next(ctx context.Context) (*model.Attempt, *model.Task, error) {
	attempt, task, err := j.Attempt(ctx, nil)
	if err == nil {
		return &attempt, &task, nil
	}
	if errors.Is(err, stateerr.ErrNoTasksAvailable) {
		counts, statusErr := j.store.JobCounts(ctx, j.id)
		if statusErr != nil {
			return nil, nil, statusErr
		}
		if counts.Complete() {
			return nil, nil, nil
		}
	}
	return nil, nil, err
}

// Status returns the job's four derived task counters.
func (j *Job) Status(ctx context.Context) (model.JobCounts, error) {
	return j.store.JobCounts(ctx, j.id)
}

// Throughput reads the persisted job_throughput view for the given
// (source, target) filesystem pair, returning stateerr.ErrNoThroughputData
// when empty.
func (j *Job) Throughput(ctx context.Context, sourceFS, targetFS string) (bytesPerSecond, failureProbability float64, err error) {
	return j.store.Throughput(ctx, j.id, sourceFS, targetFS)
}

// ExitCode reads the recorded exit code of an attempt the verifier has
// already resolved (nil only while the attempt is still in flight).
func (j *Job) ExitCode(ctx context.Context, attemptID int64) (*int, error) {
	return j.store.GetExitCode(ctx, attemptID)
}

// Complete reports whether the transfer phase is terminal.
func (j *Job) Complete(ctx context.Context) (bool, error) {
	ts, err := j.store.PhaseStatus(ctx, j.id, model.PhaseTransfer)
	if err != nil {
		return false, err
	}
	return ts.Finish != nil, nil
}
