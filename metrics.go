package cryptosync

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram bucket in the
// in-process metrics system.
type MetricID uint16

const (
	// MetricRefreshSuccess counts refreshes that resolved a balance.
	MetricRefreshSuccess MetricID = iota
	// MetricRefreshFailure counts refreshes that kept the last-known-good
	// value after a failure.
	MetricRefreshFailure
	// MetricRefreshDeduped counts Refresh calls coalesced onto an in-flight
	// refresh.
	MetricRefreshDeduped
	// MetricUpdateApplied counts balance mutations accepted by the engine.
	MetricUpdateApplied
	// MetricUpdateNoop counts mutations whose value matched the current
	// balance (timestamp refresh only).
	MetricUpdateNoop
	// MetricUpdateRejected counts mutations refused without an error
	// (authenticated mode with no usable credential, or persistence
	// failure).
	MetricUpdateRejected
	// MetricUpdateClamped counts negative or non-numeric inputs coerced
	// to zero.
	MetricUpdateClamped
	// MetricProbeOffline counts auth probes that fell back to the cached
	// token heuristic because the status endpoint was unreachable.
	MetricProbeOffline
	// MetricGuestDefaultServed counts guest sessions built from the
	// server's guest-defaults endpoint.
	MetricGuestDefaultServed
	// MetricGuestHardcoded counts guest sessions built from the hardcoded
	// fallback identity.
	MetricGuestHardcoded
	// MetricAuthExpired counts 401 responses that forced a guest
	// transition.
	MetricAuthExpired
	// MetricCircuitOpen counts reads served the safe constant because the
	// error threshold was crossed.
	MetricCircuitOpen
	// MetricStoreWriteFailure counts swallowed local persistence failures.
	MetricStoreWriteFailure
	// MetricCrossTabApplied counts balance values folded in from another
	// engine instance via the store watch channel.
	MetricCrossTabApplied
	// MetricTokenExpired counts tokens discarded by expire-on-read.
	MetricTokenExpired
	// MetricCookieFallback counts balances resolved from the demo cookie.
	MetricCookieFallback
	// MetricLoginSuccess counts successful logins and registrations.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins and registrations.
	MetricLoginFailure
	// MetricLogout counts logout operations.
	MetricLogout
	// MetricHeartbeatTick counts heartbeat loop iterations.
	MetricHeartbeatTick
	// MetricAutoSaveTick counts auto-save loop iterations.
	MetricAutoSaveTick
	// MetricRefreshLatency is the refresh latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional refresh latency histogram.
// All operations are no-ops when disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a refresh latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRefreshLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot deep-copies all counters and histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
