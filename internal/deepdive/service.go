// Package deepdive builds the single-coin vitals report from CoinGecko
// market data.
package deepdive

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptovat/internal/cache"
	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/providers"
)

// DefaultTTL is how long a report is served from cache.
const DefaultTTL = 120 * time.Second

// DetailFetcher loads raw coin data.
type DetailFetcher interface {
	CoinDetail(ctx context.Context, coinID string) (*providers.CoinDetail, error)
}

type Vitals struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	MarketCap string `json:"mcap"`
	Volume24h string `json:"vol24h"`
}

type Ratios struct {
	VTMR string `json:"vtmr"`
	VTPC string `json:"vtpc"`
}

type Velocity struct {
	H1  string `json:"h1"`
	H24 string `json:"h24"`
	D7  string `json:"d7"`
	M1  string `json:"m1"`
	Y1  string `json:"y1"`
}

type Links struct {
	CoinGecko   string `json:"cg"`
	TradingView string `json:"tv"`
}

// Report is the rendered deep dive; Raw keeps the numbers behind it.
type Report struct {
	CoinID      string   `json:"coin_id"`
	Vitals      Vitals   `json:"vitals"`
	Ratios      Ratios   `json:"ratios"`
	Velocity    Velocity `json:"velocity"`
	TotalSupply string   `json:"total_supply"`
	Links       Links    `json:"links"`
	Raw         Raw      `json:"raw"`
}

type Raw struct {
	Price     float64         `json:"price"`
	MarketCap float64         `json:"market_cap"`
	Volume24h float64         `json:"volume_24h"`
	VTMR      decimal.Decimal `json:"vtmr"`
	VTPC      float64         `json:"vtpc"`
}

type Service struct {
	fetcher  DetailFetcher
	cache    cache.Cache
	ttl      time.Duration
	observer cache.Observer
}

// New creates a service; a nil cache disables caching.
func New(fetcher DetailFetcher, c cache.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{fetcher: fetcher, cache: c, ttl: ttl}
}

// WithObserver reports cache hits and misses to obs.
func (s *Service) WithObserver(obs cache.Observer) *Service {
	s.observer = obs
	return s
}

// Lookup returns the report for coinID, computing it at most once per TTL.
func (s *Service) Lookup(ctx context.Context, coinID string) (Report, error) {
	coinID = strings.ToLower(strings.TrimSpace(coinID))
	if coinID == "" {
		return Report{}, fmt.Errorf("coin id cannot be empty")
	}

	return cache.GetOrComputeObserved(ctx, s.cache, s.observer, "deepdive:"+coinID, s.ttl, func(ctx context.Context) (Report, error) {
		detail, err := s.fetcher.CoinDetail(ctx, coinID)
		if err != nil {
			return Report{}, err
		}
		log.Debug().Str("coin", coinID).Msg("Deep dive computed")
		return Build(coinID, detail), nil
	})
}

// Build derives the report from raw coin data.
func Build(coinID string, d *providers.CoinDetail) Report {
	md := d.MarketData
	mcap := md.MarketCap.USD()
	vol := md.TotalVolume.USD()
	price := md.CurrentPrice.USD()
	ch24 := md.PriceChange24h.Float64()
	symbol := strings.ToUpper(d.Symbol)

	name := d.Name
	if name == "" {
		name = "Unknown"
	}

	vtmr := decimal.Zero
	vtmrDisplay := "0x"
	if mcap > 0 {
		vtmr = decimal.NewFromFloat(vol).Div(decimal.NewFromFloat(mcap)).Round(2)
		vtmrDisplay = vtmr.StringFixed(2) + "x"
	}

	var vtpc float64
	if ch24 != 0 {
		vtpc = vol / math.Abs(ch24)
	}

	return Report{
		CoinID: coinID,
		Vitals: Vitals{
			Name:      name,
			Symbol:    symbol,
			Price:     formatPrice(price),
			MarketCap: "$" + market.Compact(mcap),
			Volume24h: "$" + market.Compact(vol),
		},
		Ratios: Ratios{
			VTMR: vtmrDisplay,
			VTPC: "$" + market.Compact(vtpc),
		},
		Velocity: Velocity{
			H1:  signedPercent(md.PriceChange1hInCy.USD()),
			H24: signedPercent(ch24),
			D7:  signedPercent(md.PriceChange7d.Float64()),
			M1:  signedPercent(md.PriceChange30d.Float64()),
			Y1:  signedPercent(md.PriceChange1y.Float64()),
		},
		TotalSupply: market.Compact(md.TotalSupply.Float64()),
		Links: Links{
			CoinGecko:   "https://www.coingecko.com/en/coins/" + coinID,
			TradingView: "https://www.tradingview.com/chart/?symbol=" + symbol + "USDT",
		},
		Raw: Raw{Price: price, MarketCap: mcap, Volume24h: vol, VTMR: vtmr, VTPC: vtpc},
	}
}

func signedPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// formatPrice keeps eight decimals below one dollar and groups thousands.
func formatPrice(p float64) string {
	if p < 1 {
		return "$" + groupThousands(fmt.Sprintf("%.8f", p))
	}
	return "$" + groupThousands(fmt.Sprintf("%.2f", p))
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}
