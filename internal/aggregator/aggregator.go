// Package aggregator fans a listing round out to every provider and
// concatenates whatever comes back in time.
package aggregator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/cache"
	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/providers"
)

// Recorder receives per-provider fetch results.
type Recorder interface {
	ObserveProvider(source string, snapshots int, took time.Duration, err error)
}

// Outcome describes one provider's contribution to a round.
type Outcome struct {
	Source    market.Source `json:"source"`
	Snapshots int           `json:"snapshots"`
	Took      time.Duration `json:"took"`
	TimedOut  bool          `json:"timed_out"`
	Err       error         `json:"-"`
}

// Aggregator runs one worker per provider with a shared deadline.
type Aggregator struct {
	fetchers    []providers.Fetcher
	wait        time.Duration
	cache       cache.Cache
	snapshotTTL time.Duration
	recorder    Recorder
	onDone      func(Outcome)
}

type Option func(*Aggregator)

// WithCache reuses provider listings for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Aggregator) {
		a.cache = c
		a.snapshotTTL = ttl
	}
}

func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// OnProviderDone is called from the collecting goroutine as each provider
// finishes or is abandoned.
func OnProviderDone(fn func(Outcome)) Option {
	return func(a *Aggregator) { a.onDone = fn }
}

func New(fetchers []providers.Fetcher, wait time.Duration, opts ...Option) *Aggregator {
	a := &Aggregator{fetchers: fetchers, wait: wait}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type result struct {
	snapshots []market.Snapshot
	took      time.Duration
	err       error
}

// Aggregate never fails. Providers that error contribute nothing; providers
// still running at the deadline are abandoned and their results dropped.
// Snapshots are concatenated in provider order.
func (a *Aggregator) Aggregate(ctx context.Context) ([]market.Snapshot, []Outcome) {
	if len(a.fetchers) == 0 {
		log.Warn().Msg("No providers configured")
		return nil, nil
	}

	roundCtx, cancel := context.WithTimeout(ctx, a.wait)
	defer cancel()

	chans := make([]chan result, len(a.fetchers))
	for i, f := range a.fetchers {
		ch := make(chan result, 1)
		chans[i] = ch
		go func(f providers.Fetcher) {
			start := time.Now()
			snaps, err := a.fetch(roundCtx, f)
			ch <- result{snapshots: snaps, took: time.Since(start), err: err}
		}(f)
	}

	var (
		all      []market.Snapshot
		outcomes = make([]Outcome, len(a.fetchers))
	)
	for i, f := range a.fetchers {
		out := Outcome{Source: f.Source()}

		res, ok := a.collect(roundCtx, chans[i])
		if ok {
			out.Took = res.took
			out.Err = res.err
			if res.err != nil {
				log.Warn().
					Err(res.err).
					Str("provider", f.Source().String()).
					Str("reason", providers.Reason(res.err)).
					Msg("Provider failed, continuing without it")
			} else {
				out.Snapshots = len(res.snapshots)
				all = append(all, res.snapshots...)
				log.Info().
					Str("provider", f.Source().String()).
					Int("snapshots", len(res.snapshots)).
					Dur("took", res.took).
					Msg("Provider fetched")
			}
		} else {
			out.TimedOut = true
			out.Took = a.wait
			out.Err = roundCtx.Err()
			log.Warn().
				Str("provider", f.Source().String()).
				Dur("wait", a.wait).
				Msg("Provider overran the round deadline, dropping its results")
		}

		if a.recorder != nil {
			a.recorder.ObserveProvider(f.Source().String(), out.Snapshots, out.Took, out.Err)
		}
		if a.onDone != nil {
			a.onDone(out)
		}
		outcomes[i] = out
	}

	log.Info().Int("snapshots", len(all)).Int("providers", len(a.fetchers)).Msg("Aggregation round complete")
	return all, outcomes
}

// collect prefers a result that is already waiting over an expired deadline.
func (a *Aggregator) collect(ctx context.Context, ch <-chan result) (result, bool) {
	select {
	case res := <-ch:
		return res, true
	default:
	}
	select {
	case res := <-ch:
		return res, true
	case <-ctx.Done():
		return result{}, false
	}
}

func (a *Aggregator) fetch(ctx context.Context, f providers.Fetcher) ([]market.Snapshot, error) {
	return cache.GetOrCompute(ctx, a.cache, "snapshots:"+f.Source().String(), a.snapshotTTL, f.Fetch)
}
