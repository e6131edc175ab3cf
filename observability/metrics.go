package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instrumentation for the worker protocol and
// the verifier, namespaced "shepherd_". Grounded on the teacher's
// graph/metrics.go (PrometheusMetrics): same promauto-factory
// construction and gauge/histogram/counter split, re-labelled for
// job/task/attempt concepts instead of node execution.
//
//  1. inflight_workers (gauge, labels: job) — transfer workers currently
//     looping against a job.
//  2. attempt_latency_seconds (histogram, labels: job, status) — wall
//     time of one verifier Run, status in {success, failure,
//     size_mismatch, checksum_mismatch}.
//  3. attempts_total (counter, labels: job, status) — cumulative attempt
//     outcomes.
//  4. verification_mismatches_total (counter, labels: job, kind) — kind
//     in {size, checksum}.
//  5. throughput_bytes_per_second (gauge, labels: job, source, target) —
//     last-observed value of the job_throughput view.
type Metrics struct {
	inflightWorkers *prometheus.GaugeVec
	attemptLatency  *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	mismatches      *prometheus.CounterVec
	throughput      *prometheus.GaugeVec
}

// NewMetrics constructs and registers Shepherd's metrics against
// registry. A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightWorkers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shepherd",
			Name:      "inflight_workers",
			Help:      "Number of transfer workers currently looping against a job",
		}, []string{"job"}),
		attemptLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shepherd",
			Name:      "attempt_latency_seconds",
			Help:      "Wall time of one verifier run, from attempt start to terminal exit code",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"job", "status"}),
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shepherd",
			Name:      "attempts_total",
			Help:      "Cumulative attempt outcomes",
		}, []string{"job", "status"}),
		mismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shepherd",
			Name:      "verification_mismatches_total",
			Help:      "Size or checksum mismatches detected by the verifier",
		}, []string{"job", "kind"}),
		throughput: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shepherd",
			Name:      "throughput_bytes_per_second",
			Help:      "Last-observed bytes/second from the job_throughput view",
		}, []string{"job", "source", "target"}),
	}
}

// SetInflightWorkers records the current worker count for a job.
func (m *Metrics) SetInflightWorkers(job string, n int) {
	m.inflightWorkers.WithLabelValues(job).Set(float64(n))
}

// ObserveAttempt records one attempt's latency and outcome.
func (m *Metrics) ObserveAttempt(job, status string, latency time.Duration) {
	m.attemptLatency.WithLabelValues(job, status).Observe(latency.Seconds())
	m.attemptsTotal.WithLabelValues(job, status).Inc()
}

// IncrementMismatch records one verification mismatch of the given kind
// ("size" or "checksum").
func (m *Metrics) IncrementMismatch(job, kind string) {
	m.mismatches.WithLabelValues(job, kind).Inc()
}

// SetThroughput records the last-observed job_throughput reading for a
// (source, target) filesystem pair.
func (m *Metrics) SetThroughput(job, source, target string, bytesPerSecond float64) {
	m.throughput.WithLabelValues(job, source, target).Set(bytesPerSecond)
}
