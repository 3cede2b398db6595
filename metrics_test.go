package cryptosync

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricRefreshSuccess)
	m.Observe(MetricRefreshLatency, 10*time.Millisecond)

	if got := m.Value(MetricRefreshSuccess); got != 0 {
		t.Fatalf("disabled metrics recorded %d", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snap)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricRefreshSuccess)
	m.Observe(MetricRefreshLatency, time.Millisecond)
	if m.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if got := m.Value(MetricRefreshSuccess); got != 0 {
		t.Fatalf("nil metrics returned %d", got)
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 16
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricUpdateApplied)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricUpdateApplied); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}

func TestHistogramBucketing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	samples := []struct {
		d      time.Duration
		bucket int
	}{
		{time.Millisecond, 0},
		{8 * time.Millisecond, 1},
		{20 * time.Millisecond, 2},
		{40 * time.Millisecond, 3},
		{80 * time.Millisecond, 4},
		{200 * time.Millisecond, 5},
		{400 * time.Millisecond, 6},
		{2 * time.Second, 7},
	}
	for _, s := range samples {
		if got := bucketIndex(s.d); got != s.bucket {
			t.Fatalf("bucketIndex(%v) = %d, want %d", s.d, got, s.bucket)
		}
		m.Observe(MetricRefreshLatency, s.d)
	}

	buckets := m.Snapshot().Histograms[MetricRefreshLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, count := range buckets {
		if count != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, count)
		}
	}
}

func TestObserveIgnoredWithoutLatencyHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricRefreshLatency, 10*time.Millisecond)

	if buckets, ok := m.Snapshot().Histograms[MetricRefreshLatency]; ok {
		t.Fatalf("expected no histogram data, got %v", buckets)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRefreshSuccess)

	snap := m.Snapshot()
	snap.Counters[MetricRefreshSuccess] = 999

	if got := m.Value(MetricRefreshSuccess); got != 1 {
		t.Fatalf("snapshot mutation leaked into live metrics: %d", got)
	}
}
