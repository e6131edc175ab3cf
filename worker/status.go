package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/wtsi-hgi/shepherd/model"
	"github.com/wtsi-hgi/shepherd/state"
	"github.com/wtsi-hgi/shepherd/stateerr"
)

// Status is the human-facing report produced by status mode: the four
// derived task counters plus, when available, a throughput reading.
// Grounded on spec.md §7's "User-visible behaviour" paragraph: status
// mode reports "No data" placeholders rather than failing when the
// throughput view is empty.
type Status struct {
	Pending   int
	Running   int
	Succeeded int
	Failed    int

	ThroughputAvailable bool
	BytesPerSecond      float64
	FailureProbability  float64
}

// Report reads a job's status counters and, for the given (source,
// target) filesystem pair, its throughput reading.
func Report(ctx context.Context, job *state.Job, sourceFS, targetFS string) (Status, error) {
	counts, err := job.Status(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Pending:   counts.Pending,
		Running:   counts.Running,
		Succeeded: counts.Succeeded,
		Failed:    counts.Failed,
	}

	bps, failureProb, err := job.Throughput(ctx, sourceFS, targetFS)
	switch {
	case err == nil:
		st.ThroughputAvailable = true
		st.BytesPerSecond = bps
		st.FailureProbability = failureProb
	case errors.Is(err, stateerr.ErrNoThroughputData):
		// Leave ThroughputAvailable false; not a failure.
	default:
		return Status{}, err
	}

	return st, nil
}

// String formats a Status the way the original CLI's status command
// does: counters always, throughput as a human-readable rate, or "No
// data" when unavailable.
func (s Status) String() string {
	rate := "No data"
	failure := "No data"
	if s.ThroughputAvailable {
		rate = fmt.Sprintf("%.2f MB/s", s.BytesPerSecond/1e6)
		failure = fmt.Sprintf("%.1f%%", s.FailureProbability*100)
	}
	return fmt.Sprintf(
		"pending=%d running=%d succeeded=%d failed=%d throughput=%s failure_rate=%s",
		s.Pending, s.Running, s.Succeeded, s.Failed, rate, failure,
	)
}

// Counts exposes the raw derived counters as a model.JobCounts, useful
// for callers that want to reuse Complete().
func (s Status) Counts() model.JobCounts {
	return model.JobCounts{Pending: s.Pending, Running: s.Running, Succeeded: s.Succeeded, Failed: s.Failed}
}
