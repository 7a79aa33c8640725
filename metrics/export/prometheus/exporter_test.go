package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goGuard.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                     { return f.dropped }

func newFake() *fakeSource {
	return &fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricLoginSuccess:   3,
				goGuard.MetricReplayDetected: 1,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricValidateLatency: {2, 1, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 4,
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollectorFromSource(newFake())

	expected := `
# HELP goguard_login_success_total Successful logins.
# TYPE goguard_login_success_total counter
goguard_login_success_total 3
# HELP goguard_refresh_replay_detected_total Refresh token replays that revoked every session of a user.
# TYPE goguard_refresh_replay_detected_total counter
goguard_refresh_replay_detected_total 1
# HELP goguard_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE goguard_audit_dropped_total counter
goguard_audit_dropped_total 4
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"goguard_login_success_total",
		"goguard_refresh_replay_detected_total",
		internaldefs.AuditDroppedName,
	)
	require.NoError(t, err)
}

func TestCollectorExportsEveryCounter(t *testing.T) {
	c := NewCollectorFromSource(newFake())
	assert.Equal(t, len(internaldefs.CounterDefs)+2, testutil.CollectAndCount(c))
}

func TestCollectorHistogramIsCumulative(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollectorFromSource(newFake())))

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `goguard_verify_latency_seconds_bucket{le="0.005"} 2`)
	assert.Contains(t, body, `goguard_verify_latency_seconds_bucket{le="0.01"} 3`)
	assert.Contains(t, body, `goguard_verify_latency_seconds_bucket{le="+Inf"} 4`)
	assert.Contains(t, body, `goguard_verify_latency_seconds_count 4`)
}

func TestCollectorSkipsDisabledHistogram(t *testing.T) {
	src := newFake()
	src.snapshot.Histograms = map[goGuard.MetricID][]uint64{}

	c := NewCollectorFromSource(src)
	assert.Equal(t, len(internaldefs.CounterDefs)+1, testutil.CollectAndCount(c))
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollectorFromSource(newFake()))
	require.NoError(t, err)
	assert.Empty(t, problems)
}
