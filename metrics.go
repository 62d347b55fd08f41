package userauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLockedRejected
	MetricAccountLocked
	MetricAccountDisabled
	MetricPasswordHashUpgraded
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricRateLimitHit
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricAccountDeleted

	// Latency histograms; every id from here on has no counter.
	MetricValidateLatency
	MetricLoginLatency

	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the latency buckets. A last
// bucket past the final bound catches everything slower, so there are
// LatencyBuckets buckets in total. Token validation lands in the low buckets and
// a login, dominated by the password KDF, in the upper ones.
var LatencyBounds = [...]time.Duration{
	100 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	time.Second,
}

// LatencyBuckets is len(LatencyBounds) plus the overflow bucket.
const LatencyBuckets = len(LatencyBounds) + 1

const cacheLineSize = 64

// counter sits alone on a cache line; login and refresh bump neighbouring ids
// from many goroutines.
type counter struct {
	n atomic.Uint64
	_ [cacheLineSize - 8]byte
}

type latencyHistogram struct {
	buckets [LatencyBuckets]atomic.Uint64
	sum     atomic.Int64
}

func (h *latencyHistogram) observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.buckets[bucketFor(d)].Add(1)
	h.sum.Add(int64(d))
}

func (h *latencyHistogram) snapshot() HistogramSnapshot {
	var s HistogramSnapshot
	for i := range h.buckets {
		s.Buckets[i] = h.buckets[i].Load()
	}
	s.Sum = time.Duration(h.sum.Load())
	return s
}

// Metrics holds the engine counters and latency histograms. A nil or disabled
// Metrics ignores every update; histograms also need EnableLatencyHistograms.
type Metrics struct {
	enabled    bool
	latency    bool
	counters   [metricIDCount]counter
	histograms map[MetricID]*latencyHistogram
}

// HistogramSnapshot is one histogram at a point in time. Buckets are per-bucket
// counts, not cumulative.
type HistogramSnapshot struct {
	Buckets [LatencyBuckets]uint64
	Sum     time.Duration
}

// Count returns the number of observations.
func (h HistogramSnapshot) Count() uint64 {
	var n uint64
	for _, b := range h.Buckets {
		n += b
	}
	return n
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID]HistogramSnapshot
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID]HistogramSnapshot{},
	}
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
	if m.latency {
		// Read-only after construction.
		m.histograms = map[MetricID]*latencyHistogram{
			MetricValidateLatency: {},
			MetricLoginLatency:    {},
		}
	}
	return m
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d in the histogram id. Ids without a histogram are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	if h := m.histograms[id]; h != nil {
		h.observe(d)
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies every counter, and the histograms when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(MetricValidateLatency)),
		Histograms: make(map[MetricID]HistogramSnapshot, len(m.histograms)),
	}
	for id := MetricID(0); id < MetricValidateLatency; id++ {
		s.Counters[id] = m.counters[id].n.Load()
	}
	for id, h := range m.histograms {
		s.Histograms[id] = h.snapshot()
	}
	return s
}

func bucketFor(d time.Duration) int {
	for i, bound := range LatencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBounds)
}
