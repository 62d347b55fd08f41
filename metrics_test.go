package userauth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)

	assert.Zero(t, m.Value(MetricLoginSuccess))
	assert.Empty(t, m.Snapshot().Counters)
	assert.Empty(t, m.Snapshot().Histograms)
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(goroutines*perG), m.Value(MetricRefreshSuccess))
}

func TestBucketForBoundaries(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{40 * time.Microsecond, 0},
		{100 * time.Microsecond, 0},
		{101 * time.Microsecond, 1},
		{time.Millisecond, 1},
		{3 * time.Millisecond, 2},
		{25 * time.Millisecond, 3},
		{60 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{time.Second, 6},
		{3 * time.Second, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bucketFor(tt.d), "duration %s", tt.d)
	}
}

func TestMetricsHistogramBucketsAndSum(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricValidateLatency, 50*time.Microsecond)
	m.Observe(MetricValidateLatency, 50*time.Microsecond)
	m.Observe(MetricLoginLatency, 80*time.Millisecond)
	m.Observe(MetricLoginLatency, 2*time.Second)
	m.Observe(MetricLoginLatency, -time.Millisecond)

	snap := m.Snapshot()

	validate := snap.Histograms[MetricValidateLatency]
	assert.Equal(t, uint64(2), validate.Buckets[0])
	assert.Equal(t, uint64(2), validate.Count())
	assert.Equal(t, 100*time.Microsecond, validate.Sum)

	login := snap.Histograms[MetricLoginLatency]
	assert.Equal(t, uint64(1), login.Buckets[0], "negative durations clamp to zero")
	assert.Equal(t, uint64(1), login.Buckets[4])
	assert.Equal(t, uint64(1), login.Buckets[LatencyBuckets-1])
	assert.Equal(t, 2*time.Second+80*time.Millisecond, login.Sum)
}

func TestMetricsSnapshotExcludesHistogramIDsFromCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricLoginSuccess])
	assert.Equal(t, uint64(2), snap.Counters[MetricLoginFailure])
	assert.Len(t, snap.Counters, int(MetricValidateLatency))
	assert.NotContains(t, snap.Counters, MetricValidateLatency)
	assert.Len(t, snap.Histograms, 2)
}

func TestMetricsLatencyRequiresOptIn(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)

	require.False(t, m.LatencyEnabled())
	assert.Empty(t, m.Snapshot().Histograms)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricValidateLatency, time.Millisecond)

	assert.False(t, m.Enabled())
	assert.Zero(t, m.Value(MetricLogout))
	assert.Empty(t, m.Snapshot().Counters)
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricLoginSuccess, time.Millisecond)

	for id, h := range m.Snapshot().Histograms {
		assert.Zero(t, h.Count(), "histogram %d", id)
	}
}

func TestLoginRecordsLatency(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}))
	env.register(t, "a@x.com", "a", "correct-password")

	_, err := env.engine.Login(t.Context(), "a@x.com", "correct-password")
	require.NoError(t, err)

	snap := env.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Histograms[MetricLoginLatency].Count())
	assert.Positive(t, snap.Histograms[MetricLoginLatency].Sum)
}
