// Package metrics exposes scanner counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/jobs"
	"github.com/sawpanic/cryptovat/internal/providers"
)

// Registry holds all scanner metrics
type Registry struct {
	reg *prometheus.Registry

	// Provider fan-out
	ProviderFetches    *prometheus.CounterVec
	ProviderSnapshots  *prometheus.CounterVec
	ProviderDuration   *prometheus.HistogramVec
	ProviderLastUpdate *prometheus.GaugeVec

	// Pipeline steps
	StepDuration *prometheus.HistogramVec

	// Cache performance
	CacheLookups *prometheus.CounterVec

	// Results
	VerifiedTokens prometheus.Gauge
	PeakVTMR       prometheus.Gauge
	PartitionRows  *prometheus.GaugeVec

	// Jobs
	ActiveJobs    prometheus.Gauge
	JobsFinished  *prometheus.CounterVec
	LifetimeScans prometheus.Gauge

	freshness *Freshness
}

// NewRegistry creates and registers every metric.
func NewRegistry() *Registry {
	r := &Registry{
		reg:       prometheus.NewRegistry(),
		freshness: NewFreshness(DefaultFreshAge, DefaultMaxAge),

		ProviderFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptovat_provider_fetches_total",
				Help: "Provider listing fetches by outcome",
			},
			[]string{"provider", "result"},
		),

		ProviderSnapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptovat_provider_snapshots_total",
				Help: "Snapshots kept after the provider pre-filter",
			},
			[]string{"provider"},
		),

		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptovat_provider_fetch_seconds",
				Help:    "Wall time of one provider listing fetch",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"provider"},
		),

		ProviderLastUpdate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptovat_provider_last_success_timestamp_seconds",
				Help: "Unix time of the last successful listing per provider",
			},
			[]string{"provider"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptovat_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"step", "result"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptovat_cache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),

		VerifiedTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptovat_verified_tokens",
				Help: "Tokens in the last spot scan",
			},
		),

		PeakVTMR: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptovat_peak_vtmr",
				Help: "Highest VTMR in the last spot scan",
			},
		),

		PartitionRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptovat_partition_rows",
				Help: "Rows per table in the last cross-market report",
			},
			[]string{"table"},
		),

		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptovat_active_jobs",
				Help: "Number of currently running jobs",
			},
		),

		JobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptovat_jobs_finished_total",
				Help: "Finished jobs by kind and status",
			},
			[]string{"kind", "status"},
		),

		LifetimeScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptovat_lifetime_scans",
				Help: "Successful scans since the history began",
			},
		),
	}

	r.reg.MustRegister(
		r.ProviderFetches,
		r.ProviderSnapshots,
		r.ProviderDuration,
		r.ProviderLastUpdate,
		r.StepDuration,
		r.CacheLookups,
		r.VerifiedTokens,
		r.PeakVTMR,
		r.PartitionRows,
		r.ActiveJobs,
		r.JobsFinished,
		r.LifetimeScans,
	)
	return r
}

// Gatherer exposes the underlying registry for readback.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveProvider records one provider's contribution to a round.
func (r *Registry) ObserveProvider(source string, snapshots int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = providers.Reason(err)
		if result == "" {
			result = "error"
		}
	}
	r.ProviderFetches.WithLabelValues(source, result).Inc()
	r.ProviderSnapshots.WithLabelValues(source).Add(float64(snapshots))
	r.ProviderDuration.WithLabelValues(source).Observe(took.Seconds())

	if err == nil {
		now := time.Now()
		r.freshness.Mark(source, now)
		r.ProviderLastUpdate.WithLabelValues(source).Set(float64(now.Unix()))
	}
}

// Freshness reports how long ago each provider last succeeded.
func (r *Registry) Freshness() FreshnessReport {
	return r.freshness.Report()
}

// CacheLookup records a cache hit or miss.
func (r *Registry) CacheLookup(hit bool) {
	if hit {
		r.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.CacheLookups.WithLabelValues("miss").Inc()
}

// ObserveSpot records the headline figures of a spot scan.
func (r *Registry) ObserveSpot(s market.Summary) {
	r.VerifiedTokens.Set(float64(s.Total))
	r.PeakVTMR.Set(s.PeakVTMR)
}

// ObservePartition records the table sizes of a cross-market report.
func (r *Registry) ObservePartition(p market.Partition) {
	r.PartitionRows.WithLabelValues("both_markets").Set(float64(len(p.BothMarkets)))
	r.PartitionRows.WithLabelValues("futures_only").Set(float64(len(p.FuturesOnly)))
	r.PartitionRows.WithLabelValues("spot_only").Set(float64(len(p.SpotOnly)))
}

// SetLifetimeScans seeds the lifetime counter, e.g. from the database.
func (r *Registry) SetLifetimeScans(n int64) {
	r.LifetimeScans.Set(float64(n))
}

// JobStarted implements jobs.Observer.
func (r *Registry) JobStarted(string) {
	r.ActiveJobs.Inc()
}

// JobFinished implements jobs.Observer.
func (r *Registry) JobFinished(p jobs.Progress) {
	r.ActiveJobs.Dec()
	r.JobsFinished.WithLabelValues(p.Kind, string(p.Status)).Inc()
	if p.Status == jobs.StatusSuccess {
		r.LifetimeScans.Inc()
	}
}

// StepTimer tracks execution time for pipeline steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (r *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: r,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	if st == nil || st.metrics == nil {
		return
	}
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Pipeline step completed")
}
