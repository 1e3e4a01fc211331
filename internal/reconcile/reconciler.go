// Package reconcile joins verified spot tokens with futures rows and splits
// them into both-markets, futures-only and spot-only tables.
package reconcile

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/domain/market"
)

// DefaultMinVTMR is the inclusion threshold for futures rows and for
// spot-only tokens.
const DefaultMinVTMR = 0.50

type Reconciler struct {
	FuturesMinVTMR  float64
	SpotOnlyMinVTMR float64
}

func New(futuresMin, spotOnlyMin float64) *Reconciler {
	return &Reconciler{FuturesMinVTMR: futuresMin, SpotOnlyMinVTMR: spotOnlyMin}
}

// Reconcile returns ok=false when either input is empty; no report is
// produced in that case. Futures rows repeating a ticker keep their first
// occurrence.
func (r *Reconciler) Reconcile(spot []market.VerifiedToken, futures []market.FuturesRow) (market.Partition, bool) {
	if len(spot) == 0 || len(futures) == 0 {
		log.Info().
			Int("spot", len(spot)).
			Int("futures", len(futures)).
			Msg("Missing input, no cross-market report")
		return market.Partition{}, false
	}

	var (
		filtered    []market.FuturesRow
		seenFutures = make(map[string]struct{})
	)
	for _, f := range futures {
		if f.VTMR < r.FuturesMinVTMR {
			continue
		}
		if _, dup := seenFutures[f.Ticker]; dup {
			continue
		}
		seenFutures[f.Ticker] = struct{}{}
		filtered = append(filtered, f)
	}

	spotByTicker := make(map[string]market.VerifiedToken, len(spot))
	for _, s := range spot {
		if _, dup := spotByTicker[s.Symbol]; !dup {
			spotByTicker[s.Symbol] = s
		}
	}

	p := market.Partition{
		BothMarkets: []market.MatchedRow{},
		FuturesOnly: []market.FuturesRow{},
		SpotOnly:    []market.VerifiedToken{},
	}
	matched := make(map[string]struct{})
	for _, f := range filtered {
		if s, ok := spotByTicker[f.Ticker]; ok {
			p.BothMarkets = append(p.BothMarkets, market.MatchedRow{Ticker: f.Ticker, Spot: s, Futures: f})
			matched[f.Ticker] = struct{}{}
			continue
		}
		p.FuturesOnly = append(p.FuturesOnly, f)
	}

	emitted := make(map[string]struct{})
	for _, s := range spot {
		if _, ok := matched[s.Symbol]; ok {
			continue
		}
		if _, dup := emitted[s.Symbol]; dup {
			continue
		}
		if s.VTMR < r.SpotOnlyMinVTMR {
			continue
		}
		emitted[s.Symbol] = struct{}{}
		p.SpotOnly = append(p.SpotOnly, s)
	}

	sort.SliceStable(p.BothMarkets, func(i, j int) bool {
		return p.BothMarkets[i].Futures.VTMR > p.BothMarkets[j].Futures.VTMR
	})
	sort.SliceStable(p.FuturesOnly, func(i, j int) bool {
		return p.FuturesOnly[i].VTMR > p.FuturesOnly[j].VTMR
	})
	sort.SliceStable(p.SpotOnly, func(i, j int) bool {
		return p.SpotOnly[i].VTMR > p.SpotOnly[j].VTMR
	})

	log.Info().
		Int("both_markets", len(p.BothMarkets)).
		Int("futures_only", len(p.FuturesOnly)).
		Int("spot_only", len(p.SpotOnly)).
		Msg("Cross-market reconciliation complete")
	return p, true
}
