// Package worker implements the two driver loops of the worker
// protocol: the single preparation worker that plans and inserts a
// job's task tree, and the N transfer workers that claim, attempt,
// verify, and daisy-chain themselves until the job is complete.
// Grounded on the worker protocol component design (spec.md §4.8) and
// on original_source/lib/cli/prepare.py and
// original_source/lib/cli/transfer.py for the exact step ordering.
package worker

import (
	"context"
	"fmt"

	"github.com/wtsi-hgi/shepherd/filesystem"
	"github.com/wtsi-hgi/shepherd/model"
	"github.com/wtsi-hgi/shepherd/observability"
	"github.com/wtsi-hgi/shepherd/planner"
	"github.com/wtsi-hgi/shepherd/state"
)

// PrepareWorker enters the preparation phase, plans a job's task tree
// from a single route, and inserts every yielded task. One instance runs
// per job.
type PrepareWorker struct {
	Job      *state.Job
	Registry *filesystem.Registry
	Emitter  observability.Emitter

	// FoFN locates the source file-of-filenames to enumerate.
	FoFN       string
	Delimiter  byte
	Compressed bool
}

// Run executes the preparation worker's single pass: Init the prepare
// phase, plan the route over the configured FoFN, insert every task, and
// Stop the phase. The phase is stopped even if planning or insertion
// fails partway through, so a crashed preparation worker still leaves a
// terminal phase timestamp for force_restart to reason about; the first
// error encountered is the one returned.
func (w *PrepareWorker) Run(ctx context.Context, route *planner.TransferRoute) error {
	if w.Emitter == nil {
		w.Emitter = observability.NewNullEmitter()
	}
	if w.Delimiter == 0 {
		w.Delimiter = '\n'
	}

	if err := w.Job.InitPhase(ctx, model.PhasePrepare); err != nil {
		return fmt.Errorf("worker: prepare: init phase: %w", err)
	}
	w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "phase_started", Meta: map[string]any{"phase": string(model.PhasePrepare)}})

	runErr := w.plan(ctx, route)

	if stopErr := w.Job.StopPhase(ctx, model.PhasePrepare); stopErr != nil && runErr == nil {
		runErr = fmt.Errorf("worker: prepare: stop phase: %w", stopErr)
	} else if stopErr == nil {
		w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Msg: "phase_stopped", Meta: map[string]any{"phase": string(model.PhasePrepare)}})
	}
	return runErr
}

func (w *PrepareWorker) plan(ctx context.Context, route *planner.TransferRoute) error {
	return route.PlanByQuery(ctx, w.FoFN, w.Delimiter, w.Compressed, func(task planner.Task) error {
		size, err := route.Source.Size(ctx, task.Source.Address)
		if err != nil {
			return fmt.Errorf("worker: prepare: source size %s: %w", task.Source.Address, err)
		}

		chain := []state.DependentTask{{
			SourceFilesystem: task.Source.Filesystem,
			SourceAddress:    task.Source.Address,
			SourceSize:       &size,
			TargetFilesystem: task.Target.Filesystem,
			TargetAddress:    task.Target.Address,
			Script:           task.Script,
		}}

		taskID, err := w.Job.AddTaskTree(ctx, w.Registry, chain)
		if err != nil {
			return fmt.Errorf("worker: prepare: insert task: %w", err)
		}
		w.Emitter.Emit(observability.Event{Job: w.Job.ID(), Task: taskID, Msg: "task_inserted", Meta: map[string]any{
			"source": task.Source.Address,
			"target": task.Target.Address,
			"bytes":  size,
		}})
		return nil
	})
}
