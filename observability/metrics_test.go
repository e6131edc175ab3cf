package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsObserveAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveAttempt("1", "success", 250*time.Millisecond)
	m.ObserveAttempt("1", "success", 500*time.Millisecond)
	m.ObserveAttempt("1", "size_mismatch", time.Second)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var counterTotal float64
	var histogramSamples uint64
	for _, family := range families {
		switch family.GetName() {
		case "shepherd_attempts_total":
			for _, metric := range family.Metric {
				counterTotal += metric.GetCounter().GetValue()
			}
		case "shepherd_attempt_latency_seconds":
			for _, metric := range family.Metric {
				histogramSamples += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	if counterTotal != 3 {
		t.Fatalf("expected 3 attempts recorded, got %v", counterTotal)
	}
	if histogramSamples != 3 {
		t.Fatalf("expected 3 histogram samples, got %v", histogramSamples)
	}
}

func TestMetricsSetThroughputAndInflight(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.SetInflightWorkers("7", 4)
	m.SetThroughput("7", "lustre", "irods", 1234.5)
	m.IncrementMismatch("7", "checksum")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := map[string]*dto.MetricFamily{}
	for _, f := range families {
		found[f.GetName()] = f
	}

	inflight := found["shepherd_inflight_workers"]
	if inflight == nil || len(inflight.Metric) != 1 || inflight.Metric[0].GetGauge().GetValue() != 4 {
		t.Fatalf("unexpected inflight_workers metric: %+v", inflight)
	}

	throughput := found["shepherd_throughput_bytes_per_second"]
	if throughput == nil || len(throughput.Metric) != 1 || throughput.Metric[0].GetGauge().GetValue() != 1234.5 {
		t.Fatalf("unexpected throughput metric: %+v", throughput)
	}

	mismatches := found["shepherd_verification_mismatches_total"]
	if mismatches == nil || len(mismatches.Metric) != 1 || mismatches.Metric[0].GetCounter().GetValue() != 1 {
		t.Fatalf("unexpected mismatches metric: %+v", mismatches)
	}
}
