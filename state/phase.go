package state

import (
	"context"

	"github.com/wtsi-hgi/shepherd/model"
	"github.com/wtsi-hgi/shepherd/store"
)

// PhaseHandle is a scoped-acquisition value over one phase of a job:
// entering (via Init) sets start idempotently, leaving (via Stop) sets
// finish unconditionally. This translates the original's
// "with job.status.phase(P):" context manager into an explicit guard,
// per the component design's phase translation note.
type PhaseHandle struct {
	store store.Store
	job   int64
	phase model.Phase
}

// Phase returns a handle for the named phase of job.
func Phase(s store.Store, job int64, phase model.Phase) *PhaseHandle {
	return &PhaseHandle{store: s, job: job, phase: phase}
}

// Init is idempotent: it sets start=now only if start is currently null.
func (p *PhaseHandle) Init(ctx context.Context, tx store.Tx) error {
	return p.store.PhaseInit(ctx, tx, p.job, p.phase)
}

// Stop requires the phase to have started; it sets
// finish=coalesce(finish,now) so re-entry never moves it backward.
func (p *PhaseHandle) Stop(ctx context.Context, tx store.Tx) error {
	return p.store.PhaseStop(ctx, tx, p.job, p.phase)
}

// Status reports the phase's persisted timestamps.
func (p *PhaseHandle) Status(ctx context.Context) (model.JobTimestamp, error) {
	return p.store.PhaseStatus(ctx, p.job, p.phase)
}

// InProgress reports whether the phase is truthy: started but not
// finished.
func (p *PhaseHandle) InProgress(ctx context.Context) (bool, error) {
	ts, err := p.Status(ctx)
	if err != nil {
		return false, err
	}
	return ts.Start != nil && ts.Finish == nil, nil
}

// Enter runs fn with the phase initialised, guaranteeing Stop runs on
// every exit path — the Go shape of the scoped-phase-acquisition
// translation.
func Enter(ctx context.Context, s store.Store, tx store.Tx, job int64, phase model.Phase, fn func() error) error {
	ph := Phase(s, job, phase)
	if err := ph.Init(ctx, tx); err != nil {
		return err
	}
	err := fn()
	if stopErr := ph.Stop(ctx, tx); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
