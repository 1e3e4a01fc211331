// Package pipeline runs the spot scan and the cross-market analysis end to
// end, reporting progress, metrics and history along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/aggregator"
	"github.com/sawpanic/cryptovat/internal/cache"
	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/futures"
	"github.com/sawpanic/cryptovat/internal/infrastructure/httpclient"
	"github.com/sawpanic/cryptovat/internal/metrics"
	"github.com/sawpanic/cryptovat/internal/net/ratelimit"
	"github.com/sawpanic/cryptovat/internal/persistence"
	"github.com/sawpanic/cryptovat/internal/providers"
	"github.com/sawpanic/cryptovat/internal/reconcile"
	"github.com/sawpanic/cryptovat/internal/spotinput"
	"github.com/sawpanic/cryptovat/internal/verify"
)

// ErrNoSpotInput is returned by Analyze when neither a spot file nor spot
// tokens were given.
var ErrNoSpotInput = errors.New("no spot input")

// ErrUnknownSovereign is returned by ScanSpot when the configured sovereign
// source names no provider.
var ErrUnknownSovereign = errors.New("unknown sovereign source")

// Progress receives step updates; *jobs.Reporter implements it.
type Progress interface {
	Update(percent int, text string)
	Logf(format string, args ...interface{})
}

type noProgress struct{}

func (noProgress) Update(int, string)          {}
func (noProgress) Logf(string, ...interface{}) {}

// NewDeps builds the shared transport, throttle and pre-filter.
func NewDeps(cfg *config.Config) providers.Deps {
	return providers.Deps{
		Client: httpclient.NewClientPool(httpclient.ClientConfig{
			MaxConcurrency: cfg.HTTP.MaxConcurrency,
			RequestTimeout: cfg.HTTP.Timeout(),
			JitterRange:    [2]int{0, 50},
			MaxRetries:     cfg.HTTP.MaxRetries,
			BackoffBase:    cfg.HTTP.BackoffBase(),
			BackoffMax:     cfg.HTTP.BackoffMax(),
			UserAgent:      cfg.HTTP.UserAgent,
		}),
		Limiter: ratelimit.NewLimiter(),
		Filter: providers.Filter{
			MinVTMR:     cfg.Aggregator.PrefilterVTMR,
			Stablecoins: cfg.StablecoinSet(),
		},
	}
}

// Pipeline holds the configured components. It is safe for concurrent use.
type Pipeline struct {
	cfg      *config.Config
	fetchers []providers.Fetcher
	cache    cache.Cache
	metrics  *metrics.Registry
	runs     persistence.ScanRepo

	readPages func(path string) ([][]string, error)
}

type Option func(*Pipeline)

// WithCache reuses provider listings for the configured snapshot TTL.
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRuns records every finished scan.
func WithRuns(r persistence.ScanRepo) Option {
	return func(p *Pipeline) { p.runs = r }
}

func New(cfg *config.Config, fetchers []providers.Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, fetchers: fetchers, readPages: futures.ReadPDFFile}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SpotResult is the outcome of one spot scan.
type SpotResult struct {
	RunID      string                 `json:"run_id"`
	Tokens     []market.VerifiedToken `json:"tokens"`
	Summary    market.Summary         `json:"summary"`
	Stats      verify.Stats           `json:"stats"`
	Outcomes   []aggregator.Outcome   `json:"providers"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// ScanSpot aggregates every provider, verifies the result and applies the
// threshold bands. It fails only on an unknown sovereign source or when ctx
// is cancelled.
func (p *Pipeline) ScanSpot(ctx context.Context, userID string, prog Progress) (*SpotResult, error) {
	if prog == nil {
		prog = noProgress{}
	}
	sovereign, ok := market.ParseSource(p.cfg.Aggregator.Sovereign)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSovereign, p.cfg.Aggregator.Sovereign)
	}
	res := &SpotResult{RunID: uuid.NewString(), StartedAt: time.Now()}

	prog.Update(10, "Fetching provider listings...")
	done := 0
	opts := []aggregator.Option{
		aggregator.OnProviderDone(func(o aggregator.Outcome) {
			done++
			switch {
			case o.TimedOut:
				prog.Logf("%s: timed out, results dropped", o.Source.Name())
			case o.Err != nil:
				prog.Logf("%s: failed: %v", o.Source.Name(), o.Err)
			default:
				prog.Logf("%s: %d tokens", o.Source.Name(), o.Snapshots)
			}
			prog.Update(10+60*done/len(p.fetchers), fmt.Sprintf("Providers %d/%d", done, len(p.fetchers)))
		}),
	}
	if p.cache != nil {
		opts = append(opts, aggregator.WithCache(p.cache, p.cfg.Cache.SnapshotTTL()))
	}
	if p.metrics != nil {
		opts = append(opts, aggregator.WithRecorder(p.metrics))
	}

	timer := p.timer("aggregate")
	snapshots, outcomes := aggregator.New(p.fetchers, p.cfg.Aggregator.Wait(), opts...).Aggregate(ctx)
	timer.Stop("ok")
	res.Outcomes = outcomes

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prog.Update(75, "Verifying volume...")
	timer = p.timer("verify")
	res.Tokens, res.Stats = verify.New(p.cfg.Thresholds, sovereign).Verify(snapshots)
	timer.Stop("ok")

	res.Summary = market.Summarize(res.Tokens)
	res.FinishedAt = time.Now()
	prog.Logf("%d verified tokens, peak VTMR %.2fx", res.Summary.Total, res.Summary.PeakVTMR)
	prog.Update(95, "Spot scan complete")

	if p.metrics != nil {
		p.metrics.ObserveSpot(res.Summary)
	}

	sources := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil && !o.TimedOut {
			sources = append(sources, o.Source.String())
		}
	}
	p.record(ctx, &persistence.ScanRun{
		ID:         res.RunID,
		Kind:       persistence.KindSpot,
		UserID:     userID,
		Status:     "success",
		Providers:  sources,
		Tokens:     res.Summary.Total,
		PeakVTMR:   res.Summary.PeakVTMR,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})

	log.Info().
		Str("run", res.RunID).
		Int("snapshots", len(snapshots)).
		Int("verified", res.Summary.Total).
		Int("uncorroborated", res.Stats.Uncorroborated).
		Int("out_of_band", res.Stats.OutOfBand).
		Msg("Spot scan complete")
	return res, nil
}

// AnalyzeRequest names the inputs of a cross-market analysis. Spot tokens
// take precedence over SpotPath.
type AnalyzeRequest struct {
	FuturesPath string
	SpotPath    string
	Spot        []market.VerifiedToken
	Cleanup     bool
}

// AnalyzeResult is the outcome of one cross-market analysis. OK is false
// when either side had no rows and no report was produced.
type AnalyzeResult struct {
	RunID       string           `json:"run_id"`
	OK          bool             `json:"ok"`
	Partition   market.Partition `json:"partition"`
	FuturesRows int              `json:"futures_rows"`
	SpotTokens  int              `json:"spot_tokens"`
	Removed     int              `json:"removed_inputs"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// Analyze extracts the futures table, loads the spot side and partitions
// the tickers. Input files are removed afterwards when Cleanup is set and a
// report was produced.
func (p *Pipeline) Analyze(ctx context.Context, userID string, req AnalyzeRequest, prog Progress) (*AnalyzeResult, error) {
	if prog == nil {
		prog = noProgress{}
	}
	res := &AnalyzeResult{RunID: uuid.NewString(), StartedAt: time.Now()}

	prog.Update(10, "Reading futures report...")
	timer := p.timer("extract")
	pages, err := p.readPages(req.FuturesPath)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	rows := futures.Extract(pages)
	timer.Stop("ok")
	res.FuturesRows = len(rows)
	prog.Logf("Extracted %d futures rows from %d pages", len(rows), len(pages))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prog.Update(50, "Loading spot data...")
	spot := req.Spot
	if spot == nil {
		if req.SpotPath == "" {
			return nil, ErrNoSpotInput
		}
		loader := spotinput.Loader{LargeCapUSD: p.cfg.Thresholds.LargeCapUSD}
		if spot, err = loader.LoadFile(req.SpotPath); err != nil {
			return nil, err
		}
	}
	res.SpotTokens = len(spot)
	prog.Logf("Loaded %d spot tokens", len(spot))

	prog.Update(80, "Reconciling markets...")
	timer = p.timer("reconcile")
	res.Partition, res.OK = reconcile.New(p.cfg.Reconcile.FuturesMinVTMR, p.cfg.Reconcile.SpotOnlyMinVTMR).Reconcile(spot, rows)
	timer.Stop("ok")
	res.FinishedAt = time.Now()

	if !res.OK {
		prog.Logf("No report: %d futures rows, %d spot tokens", res.FuturesRows, res.SpotTokens)
		log.Warn().Int("futures", res.FuturesRows).Int("spot", res.SpotTokens).Msg("Cross-market report skipped")
		return res, nil
	}

	prog.Logf("Both markets %d, futures only %d, spot only %d",
		len(res.Partition.BothMarkets), len(res.Partition.FuturesOnly), len(res.Partition.SpotOnly))
	if p.metrics != nil {
		p.metrics.ObservePartition(res.Partition)
	}

	if req.Cleanup {
		paths := []string{req.FuturesPath}
		if req.Spot == nil {
			paths = append(paths, req.SpotPath)
		}
		res.Removed = Cleanup(paths...)
		prog.Logf("Removed %d input files", res.Removed)
	}

	p.record(ctx, &persistence.ScanRun{
		ID:          res.RunID,
		Kind:        persistence.KindAnalyze,
		UserID:      userID,
		Status:      "success",
		Tokens:      res.SpotTokens,
		BothMarkets: len(res.Partition.BothMarkets),
		FuturesOnly: len(res.Partition.FuturesOnly),
		SpotOnly:    len(res.Partition.SpotOnly),
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	})
	prog.Update(95, "Analysis complete")
	return res, nil
}

// Cleanup deletes the given files and returns how many were removed.
// Missing files are ignored.
func Cleanup(paths ...string) int {
	removed := 0
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("path", path).Msg("Failed to remove input file")
			}
			continue
		}
		removed++
	}
	return removed
}

// Lifetime returns the number of successful runs on record, or zero
// without a history store.
func (p *Pipeline) Lifetime(ctx context.Context) int64 {
	if p.runs == nil {
		return 0
	}
	n, err := p.runs.CountRuns(ctx, "success")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count scan history")
		return 0
	}
	return n
}

func (p *Pipeline) record(ctx context.Context, run *persistence.ScanRun) {
	if p.runs == nil {
		return
	}
	if err := p.runs.InsertRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run", run.ID).Msg("Failed to record scan run")
	}
}

func (p *Pipeline) timer(step string) *metrics.StepTimer {
	if p.metrics == nil {
		return nil
	}
	return p.metrics.StartStepTimer(step)
}
