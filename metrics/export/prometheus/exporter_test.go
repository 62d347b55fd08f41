package prometheus

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/userauth"
)

type fakeSource struct {
	snapshot userauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() userauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: userauth.MetricsSnapshot{
			Counters:   map[userauth.MetricID]uint64{},
			Histograms: map[userauth.MetricID]userauth.HistogramSnapshot{},
		},
	})
	assert.Empty(t, exp.Render())

	var nilExp *Exporter
	assert.Empty(t, nilExp.Render())
	assert.Empty(t, NewExporter(nil).Render())
}

func TestRenderIncludesCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: userauth.MetricsSnapshot{
			Counters: map[userauth.MetricID]uint64{
				userauth.MetricLoginSuccess:  7,
				userauth.MetricAccountLocked: 2,
				userauth.MetricRateLimitHit:  4,
			},
			Histograms: map[userauth.MetricID]userauth.HistogramSnapshot{
				userauth.MetricValidateLatency: {
					Buckets: [userauth.LatencyBuckets]uint64{1, 2, 3, 4, 5, 6, 7, 8},
					Sum:     1500 * time.Millisecond,
				},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, line := range []string{
		"# TYPE userauth_login_success_total counter",
		"userauth_login_success_total 7",
		"userauth_account_locked_total 2",
		"userauth_rate_limit_hit_total 4",
		"userauth_refresh_success_total 0",
		"# TYPE userauth_validate_latency_seconds histogram",
		`userauth_validate_latency_seconds_bucket{le="0.0001"} 1`,
		`userauth_validate_latency_seconds_bucket{le="0.005"} 6`,
		`userauth_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"userauth_validate_latency_seconds_sum 1.5",
		"userauth_validate_latency_seconds_count 36",
		"userauth_audit_dropped_total 2",
	} {
		assert.Contains(t, out, line+"\n")
	}
	assert.NotContains(t, out, "userauth_login_latency_seconds", "histograms absent from the snapshot are skipped")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteToReportsWriterError(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: userauth.MetricsSnapshot{
		Counters: map[userauth.MetricID]uint64{userauth.MetricLogout: 1},
	}})

	_, err := exp.WriteTo(failingWriter{})
	require.Error(t, err)

	var b strings.Builder
	n, err := exp.WriteTo(&b)
	require.NoError(t, err)
	assert.Equal(t, int64(b.Len()), n)
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: userauth.MetricsSnapshot{
		Counters: map[userauth.MetricID]uint64{userauth.MetricLogout: 1, userauth.MetricLoginFailure: 3},
	}})
	assert.Equal(t, exp.Render(), exp.Render())
	assert.Less(t, strings.Index(exp.Render(), "userauth_login_failure_total"), strings.Index(exp.Render(), "userauth_logout_total"))
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: userauth.MetricsSnapshot{
			Counters: map[userauth.MetricID]uint64{userauth.MetricLoginSuccess: 1},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "userauth_login_success_total 1")
}

func TestEscapeHelp(t *testing.T) {
	assert.Equal(t, `a\\b\nc`, escapeHelp("a\\b\nc"))
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: userauth.MetricsSnapshot{
			Counters: map[userauth.MetricID]uint64{
				userauth.MetricLoginSuccess:         1000,
				userauth.MetricLoginFailure:         40,
				userauth.MetricRefreshSuccess:       800,
				userauth.MetricRefreshFailure:       10,
				userauth.MetricPasswordResetFailure: 3,
			},
			Histograms: map[userauth.MetricID]userauth.HistogramSnapshot{
				userauth.MetricValidateLatency: {Buckets: [userauth.LatencyBuckets]uint64{10, 20, 30, 40, 50, 60, 70, 80}},
				userauth.MetricLoginLatency:    {Buckets: [userauth.LatencyBuckets]uint64{0, 0, 0, 4, 90, 6}, Sum: 9 * time.Second},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		_, _ = exp.WriteTo(io.Discard)
	}
}
