// Package verify reconciles same-symbol snapshots from several providers
// into verified tokens and applies the VTMR band filters.
package verify

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
)

// MinCorroboration is the number of distinct sources a token needs when the
// sovereign source did not report it.
const MinCorroboration = 2

// Verifier applies the sovereign/fallback consensus rule.
type Verifier struct {
	thresholds config.Thresholds
	sovereign  market.Source
}

func New(thresholds config.Thresholds, sovereign market.Source) *Verifier {
	return &Verifier{thresholds: thresholds, sovereign: sovereign}
}

// Stats counts why groups were rejected during one Verify call.
type Stats struct {
	Groups         int `json:"groups"`
	Sovereign      int `json:"sovereign"`
	Corroborated   int `json:"corroborated"`
	Uncorroborated int `json:"uncorroborated"`
	OutOfBand      int `json:"out_of_band"`
}

// Verify groups snapshots by symbol and returns the tokens passing the
// threshold filter, sorted by VTMR descending with symbol as tie-break.
func (v *Verifier) Verify(snapshots []market.Snapshot) ([]market.VerifiedToken, Stats) {
	var (
		order  []string
		groups = make(map[string][]market.Snapshot)
		stats  Stats
	)
	for _, s := range snapshots {
		if _, seen := groups[s.Symbol]; !seen {
			order = append(order, s.Symbol)
		}
		groups[s.Symbol] = append(groups[s.Symbol], s)
	}
	stats.Groups = len(order)

	tokens := make([]market.VerifiedToken, 0, len(order))
	for _, symbol := range order {
		token, ok := v.consensus(symbol, groups[symbol], &stats)
		if !ok {
			continue
		}
		if !v.passes(token) {
			stats.OutOfBand++
			continue
		}
		tokens = append(tokens, token)
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].VTMR != tokens[j].VTMR {
			return tokens[i].VTMR > tokens[j].VTMR
		}
		return tokens[i].Symbol < tokens[j].Symbol
	})

	log.Debug().
		Int("groups", stats.Groups).
		Int("sovereign", stats.Sovereign).
		Int("corroborated", stats.Corroborated).
		Int("uncorroborated", stats.Uncorroborated).
		Int("out_of_band", stats.OutOfBand).
		Int("verified", len(tokens)).
		Msg("Verification complete")

	return tokens, stats
}

func (v *Verifier) consensus(symbol string, group []market.Snapshot, stats *Stats) (market.VerifiedToken, bool) {
	for _, s := range group {
		if s.Source == v.sovereign {
			stats.Sovereign++
			return market.NewVerifiedToken(symbol, s.MarketCap, s.Volume24h, len(group), v.thresholds.LargeCapUSD), true
		}
	}

	sources := make(map[market.Source]struct{}, len(group))
	for _, s := range group {
		sources[s.Source] = struct{}{}
	}
	if len(sources) < MinCorroboration {
		stats.Uncorroborated++
		return market.VerifiedToken{}, false
	}

	var mc, vol float64
	for _, s := range group {
		mc += s.MarketCap
		vol += s.Volume24h
	}
	n := float64(len(group))
	stats.Corroborated++
	return market.NewVerifiedToken(symbol, mc/n, vol/n, len(group), v.thresholds.LargeCapUSD), true
}

func (v *Verifier) passes(t market.VerifiedToken) bool {
	if t.MarketCap <= 0 {
		return false
	}
	floor := v.thresholds.MinVTMR
	if t.IsLargeCap {
		floor = v.thresholds.MinLargeCapVTMR
	}
	return t.VTMR >= floor && t.VTMR <= v.thresholds.MaxVTMR
}
