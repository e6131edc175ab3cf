// Package observability adapts the teacher's event-emission and metrics
// shape (graph/emit, graph/metrics.go) to Shepherd's own domain
// vocabulary: job/phase/task/attempt/worker lifecycle events in place of
// the teacher's node/workflow events, and attempt/throughput/worker
// gauges in place of node-execution gauges.
package observability

// Event is one observability event emitted during job execution.
type Event struct {
	// Job identifies the job that produced this event.
	Job int64

	// Task identifies the task involved, zero for job- or
	// worker-level events with no single task in scope.
	Task int64

	// Msg names the event, drawn from Shepherd's own vocabulary:
	// job_created, phase_started, phase_stopped, task_inserted,
	// attempt_start, attempt_verify_mismatch, attempt_terminal,
	// worker_followon_submitted, worker_exit.
	Msg string

	// Meta carries event-specific structured data, e.g. "exit_code",
	// "bytes", "phase", "worker".
	Meta map[string]any
}
