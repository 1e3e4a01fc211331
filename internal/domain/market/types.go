// Package market holds the records that flow between the aggregation,
// verification, extraction and reconciliation stages.
package market

import "strings"

// Source identifies the provider a snapshot came from.
type Source string

const (
	SourceCoinGecko     Source = "CG"
	SourceCoinMarketCap Source = "CMC"
	SourceLiveCoinWatch Source = "LCW"
	SourceCoinRanking   Source = "CR"
	SourceFile          Source = "FILE"
)

// String returns the short provider code.
func (s Source) String() string {
	return string(s)
}

// Name returns the human readable provider name.
func (s Source) Name() string {
	switch s {
	case SourceCoinGecko:
		return "CoinGecko"
	case SourceCoinMarketCap:
		return "CoinMarketCap"
	case SourceLiveCoinWatch:
		return "LiveCoinWatch"
	case SourceCoinRanking:
		return "CoinRanking"
	case SourceFile:
		return "File"
	default:
		return string(s)
	}
}

// ParseSource maps a provider code or name onto a Source.
func ParseSource(s string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cg", "coingecko":
		return SourceCoinGecko, true
	case "cmc", "coinmarketcap":
		return SourceCoinMarketCap, true
	case "lcw", "livecoinwatch":
		return SourceLiveCoinWatch, true
	case "cr", "coinranking", "coinrankings":
		return SourceCoinRanking, true
	}
	return "", false
}

// Snapshot is one token as reported by one provider during a fetch cycle.
type Snapshot struct {
	Symbol    string  `json:"symbol"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
	Source    Source  `json:"source"`
}

// VTMR returns volume over market cap, or zero when market cap is unknown.
func (s Snapshot) VTMR() float64 {
	if s.MarketCap <= 0 {
		return 0
	}
	return s.Volume24h / s.MarketCap
}

// VerifiedToken is a token after cross-source reconciliation.
// VTMR is always derived from the stored MarketCap and Volume24h pair.
type VerifiedToken struct {
	Symbol      string  `json:"symbol"`
	MarketCap   float64 `json:"market_cap"`
	Volume24h   float64 `json:"volume_24h"`
	VTMR        float64 `json:"vtmr"`
	SourceCount int     `json:"source_count"`
	IsLargeCap  bool    `json:"is_large_cap"`
}

// NewVerifiedToken builds a token from a consensus pair.
func NewVerifiedToken(symbol string, marketCap, volume float64, sources int, largeCapUSD float64) VerifiedToken {
	var vtmr float64
	if marketCap > 0 {
		vtmr = volume / marketCap
	}
	return VerifiedToken{
		Symbol:      symbol,
		MarketCap:   marketCap,
		Volume24h:   volume,
		VTMR:        vtmr,
		SourceCount: sources,
		IsLargeCap:  marketCap > largeCapUSD,
	}
}

// FuturesRow is one token reconstructed from the futures PDF table.
// MarketCapRaw and VolumeRaw keep their magnitude suffixes; use ParseAmount
// to normalise them.
type FuturesRow struct {
	Ticker             string  `json:"ticker"`
	Name               string  `json:"name"`
	MarketCapRaw       string  `json:"market_cap_raw"`
	VolumeRaw          string  `json:"volume_raw"`
	VTMR               float64 `json:"vtmr"`
	OpenInterestChange string  `json:"open_interest_change,omitempty"`
	FundingRate        string  `json:"funding_rate,omitempty"`
	OISS               string  `json:"oiss"`
	Funding            string  `json:"funding"`
}

// MatchedRow joins a spot token with the futures row sharing its ticker.
type MatchedRow struct {
	Ticker  string        `json:"ticker"`
	Spot    VerifiedToken `json:"spot"`
	Futures FuturesRow    `json:"futures"`
}

// Partition is the three-way split produced by cross-market reconciliation.
// A ticker appears in at most one of the three tables.
type Partition struct {
	BothMarkets []MatchedRow    `json:"both_markets"`
	FuturesOnly []FuturesRow    `json:"futures_only"`
	SpotOnly    []VerifiedToken `json:"spot_only"`
}

// Summary carries the headline figures of a spot scan.
type Summary struct {
	Total      int     `json:"total"`
	PeakVTMR   float64 `json:"peak_vtmr"`
	HighVolume int     `json:"high_volume"`
	LargeCaps  int     `json:"large_caps"`
}

// HighVolumeVTMR marks tokens trading at least twice their market cap.
const HighVolumeVTMR = 2.0

// Summarize computes the headline figures for a verified token list.
func Summarize(tokens []VerifiedToken) Summary {
	s := Summary{Total: len(tokens)}
	for _, t := range tokens {
		if t.VTMR > s.PeakVTMR {
			s.PeakVTMR = t.VTMR
		}
		if t.VTMR >= HighVolumeVTMR {
			s.HighVolume++
		}
		if t.IsLargeCap {
			s.LargeCaps++
		}
	}
	return s
}
