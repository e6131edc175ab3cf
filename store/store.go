// Package store implements the persistence protocol: a connection-pooled
// handle to the backing relational database exposing transactional
// scopes with row-level locking, idempotent schema bootstrap, and the
// data and filesystem row lookups the verifier uses to resolve a task's
// endpoints. Resolving a filesystem name to its live Capability is done
// by filesystem.Registry, not by this package.
//
// Two backends share this interface: an embedded SQLite store for
// development and tests (grounded on the teacher's
// graph/store/sqlite.go), and a Postgres store for production use
// (replacing the teacher's MySQL backend, since the external interface
// design names Postgres-specific environment variables explicitly).
package store

import (
	"context"
	"time"

	"github.com/wtsi-hgi/shepherd/model"
)

// Tx is a scoped unit of atomicity. All state mutations must occur
// inside one. LockAttempts takes the row-level lock attempt() needs to
// serialise task claims across concurrent workers.
type Tx interface {
	// LockAttempts takes an exclusive lock on the attempts table for the
	// remainder of the transaction.
	LockAttempts(ctx context.Context) error

	Commit() error
	Rollback() error
}

// Store is the persistence protocol every backend implements.
type Store interface {
	// Begin opens a new transactional scope.
	Begin(ctx context.Context) (Tx, error)

	// Bootstrap runs schema creation; it is idempotent and safe to call
	// on every process start.
	Bootstrap(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error

	// --- Jobs ---

	CreateJob(ctx context.Context, tx Tx, client string, maxAttempts int) (int64, error)
	GetJob(ctx context.Context, id int64) (model.Job, error)
	SetMaxAttempts(ctx context.Context, tx Tx, job int64, maxAttempts int) error

	SetMetadata(ctx context.Context, tx Tx, job int64, key, value string) error
	GetMetadata(ctx context.Context, job int64, key string) (string, bool, error)

	// --- Phases ---

	PhaseInit(ctx context.Context, tx Tx, job int64, phase model.Phase) error
	PhaseStop(ctx context.Context, tx Tx, job int64, phase model.Phase) error
	PhaseStatus(ctx context.Context, job int64, phase model.Phase) (model.JobTimestamp, error)

	// --- Filesystems & data ---

	UpsertFilesystem(ctx context.Context, tx Tx, job int64, name string, maxConcurrency int) (int64, error)
	InsertData(ctx context.Context, tx Tx, filesystem int64, address string) (int64, error)
	GetData(ctx context.Context, data int64) (model.Data, error)
	GetFilesystem(ctx context.Context, filesystem int64) (model.Filesystem, error)

	SetSize(ctx context.Context, tx Tx, data int64, bytes int64) (int64, error)
	SetChecksum(ctx context.Context, tx Tx, data int64, algorithm, value string) (string, error)
	GetExitCode(ctx context.Context, attempt int64) (*int, error)

	// --- Tasks & attempts ---

	InsertTask(ctx context.Context, tx Tx, job int64, source, target int64, script string, dependency *int64) (int64, error)
	Attempt(ctx context.Context, tx Tx, job int64, timeLimit *time.Duration) (model.Attempt, model.Task, error)
	StartAttempt(ctx context.Context, tx Tx, attempt int64) error
	FinishAttempt(ctx context.Context, tx Tx, attempt int64, exitCode int) error
	ForciblyTerminateInFlight(ctx context.Context, tx Tx, job int64) (int, error)

	// --- Aggregates ---

	JobCounts(ctx context.Context, job int64) (model.JobCounts, error)
	Throughput(ctx context.Context, job int64, sourceFS, targetFS string) (bytesPerSecond float64, failureProbability float64, err error)
}
