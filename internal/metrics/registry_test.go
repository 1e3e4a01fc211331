package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/jobs"
	"github.com/sawpanic/cryptovat/internal/providers"
)

// value returns the counter or gauge value of the series matching labels.
func value(t *testing.T, r *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveProvider(t *testing.T) {
	r := NewRegistry()

	r.ObserveProvider("CG", 120, 2*time.Second, nil)
	r.ObserveProvider("CMC", 0, time.Second, &providers.DegradedError{
		Provider: market.SourceCoinMarketCap,
		Reason:   providers.ReasonRateLimited,
		Err:      errors.New("429"),
	})
	r.ObserveProvider("LCW", 0, time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, value(t, r, "cryptovat_provider_fetches_total", map[string]string{"provider": "CG", "result": "ok"}))
	assert.Equal(t, 1.0, value(t, r, "cryptovat_provider_fetches_total", map[string]string{"provider": "CMC", "result": "rate_limited"}))
	assert.Equal(t, 1.0, value(t, r, "cryptovat_provider_fetches_total", map[string]string{"provider": "LCW", "result": "error"}))
	assert.Equal(t, 120.0, value(t, r, "cryptovat_provider_snapshots_total", map[string]string{"provider": "CG"}))
	assert.Equal(t, 1.0, value(t, r, "cryptovat_provider_fetch_seconds", map[string]string{"provider": "CG"}))
	assert.Greater(t, value(t, r, "cryptovat_provider_last_success_timestamp_seconds", map[string]string{"provider": "CG"}), 0.0)

	// only successful fetches count towards freshness
	rep := r.Freshness()
	require.Len(t, rep.Feeds, 1)
	assert.Equal(t, "CG", rep.Feeds[0].Source)
	assert.Equal(t, FeedFresh, rep.Status)
}

func TestCacheLookup(t *testing.T) {
	r := NewRegistry()
	r.CacheLookup(true)
	r.CacheLookup(false)
	r.CacheLookup(false)

	assert.Equal(t, 1.0, value(t, r, "cryptovat_cache_lookups_total", map[string]string{"result": "hit"}))
	assert.Equal(t, 2.0, value(t, r, "cryptovat_cache_lookups_total", map[string]string{"result": "miss"}))
}

func TestObserveResults(t *testing.T) {
	r := NewRegistry()
	r.ObserveSpot(market.Summary{Total: 7, PeakVTMR: 4.2})
	r.ObservePartition(market.Partition{
		BothMarkets: make([]market.MatchedRow, 2),
		FuturesOnly: make([]market.FuturesRow, 1),
	})

	assert.Equal(t, 7.0, value(t, r, "cryptovat_verified_tokens", nil))
	assert.Equal(t, 4.2, value(t, r, "cryptovat_peak_vtmr", nil))
	assert.Equal(t, 2.0, value(t, r, "cryptovat_partition_rows", map[string]string{"table": "both_markets"}))
	assert.Equal(t, 1.0, value(t, r, "cryptovat_partition_rows", map[string]string{"table": "futures_only"}))
	assert.Equal(t, 0.0, value(t, r, "cryptovat_partition_rows", map[string]string{"table": "spot_only"}))
}

func TestJobObserver(t *testing.T) {
	r := NewRegistry()
	r.SetLifetimeScans(10)

	r.JobStarted("spot")
	r.JobStarted("analyze")
	assert.Equal(t, 2.0, value(t, r, "cryptovat_active_jobs", nil))

	r.JobFinished(jobs.Progress{Kind: "spot", Status: jobs.StatusSuccess})
	r.JobFinished(jobs.Progress{Kind: "analyze", Status: jobs.StatusError})

	assert.Equal(t, 0.0, value(t, r, "cryptovat_active_jobs", nil))
	assert.Equal(t, 11.0, value(t, r, "cryptovat_lifetime_scans", nil))
	assert.Equal(t, 1.0, value(t, r, "cryptovat_jobs_finished_total", map[string]string{"kind": "analyze", "status": "error"}))
}

func TestStepTimer(t *testing.T) {
	r := NewRegistry()
	r.StartStepTimer("verify").Stop("ok")
	assert.Equal(t, 1.0, value(t, r, "cryptovat_step_duration_seconds", map[string]string{"step": "verify", "result": "ok"}))

	var nilTimer *StepTimer
	assert.NotPanics(t, func() { nilTimer.Stop("ok") })
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.CacheLookup(true)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `cryptovat_cache_lookups_total{result="hit"} 1`)
}
