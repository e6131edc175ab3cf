// Package model defines the persisted entities of the job/task/attempt
// state machine described by the data model: filesystems, data
// addresses, jobs and their metadata and phase timestamps, tasks,
// attempts, and the write-once size/checksum rows attached to data.
package model

import "time"

// Phase names the two disjoint temporal regions of a job.
type Phase string

const (
	PhasePrepare  Phase = "prepare"
	PhaseTransfer Phase = "transfer"
)

// TaskStatus is the derived status of a task, computed from its attempts
// and its dependency's status. It is never stored directly.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// ForciblyTerminated is the sentinel exit code written to an attempt by
// force_restart when it reclaims an in-flight attempt left behind by a
// crashed worker.
const ForciblyTerminated = -3

// MismatchedSize is the sentinel exit code recorded by the verifier when
// source and target sizes differ after a zero-exit script run.
const MismatchedSize = -1

// MismatchedChecksum is the sentinel exit code recorded by the verifier
// when source and target checksums differ.
const MismatchedChecksum = -2

// Filesystem is a named, job-scoped concurrency bound over a registered
// filesystem.Capability instance.
type Filesystem struct {
	ID             int64
	Job            int64
	Name           string
	MaxConcurrency int
}

// Data is an opaque address keyed to a filesystem. Data rows are never
// deduplicated: every insertion yields a fresh ID even for an address
// that already appears elsewhere in the job.
type Data struct {
	ID         int64
	Filesystem int64
	Address    string
}

// Job identifies one run for a named client and owns every downstream
// row.
type Job struct {
	ID          int64
	Client      string
	MaxAttempts int
}

// JobMetadata is arbitrary string-keyed client metadata, unique per
// (job, key).
type JobMetadata struct {
	Job   int64
	Key   string
	Value string
}

// JobTimestamp records the start/finish of one phase of a job. Finish is
// nil while the phase is in progress.
type JobTimestamp struct {
	Job    int64
	Phase  Phase
	Start  *time.Time
	Finish *time.Time
}

// Task is one planned transfer step: a script to run between a source
// and a target Data row, optionally dependent on another task in the
// same job having already succeeded.
type Task struct {
	ID         int64
	Job        int64
	Source     int64
	Target     int64
	Script     string
	Dependency *int64
}

// Attempt is one execution of a task's script. ExitCode is nil while the
// attempt is in flight; Finish is nil under exactly the same condition.
type Attempt struct {
	ID       int64
	Task     int64
	Start    *time.Time
	Finish   *time.Time
	ExitCode *int
}

// InFlight reports whether the attempt has not yet terminated.
func (a Attempt) InFlight() bool { return a.ExitCode == nil }

// Size is a write-once-per-data byte count.
type Size struct {
	Data  int64
	Bytes int64
}

// Checksum is a write-once-per-(data, algorithm) digest.
type Checksum struct {
	Data      int64
	Algorithm string
	Value     string
}

// JobCounts are the four derived task-status counters used by status
// mode and by the worker loop's termination check.
type JobCounts struct {
	Pending   int
	Running   int
	Succeeded int
	Failed    int
}

// Complete reports whether every task has reached a terminal status.
func (c JobCounts) Complete() bool {
	return c.Pending == 0 && c.Running == 0
}
