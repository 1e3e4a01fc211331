package deepdive

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptovat/internal/cache"
	"github.com/sawpanic/cryptovat/internal/providers"
)

type fakeDetailer struct {
	calls  int
	detail *providers.CoinDetail
	err    error
}

func (f *fakeDetailer) CoinDetail(_ context.Context, _ string) (*providers.CoinDetail, error) {
	f.calls++
	return f.detail, f.err
}

func sampleDetail(t *testing.T) *providers.CoinDetail {
	t.Helper()
	raw := `{
		"id": "solana",
		"symbol": "sol",
		"name": "Solana",
		"market_data": {
			"current_price": {"usd": 1234.5},
			"market_cap": {"usd": 2000000000},
			"total_volume": {"usd": 1100000000},
			"total_supply": 580000000,
			"price_change_percentage_24h": -4,
			"price_change_percentage_7d": 10.126,
			"price_change_percentage_30d": "2.5",
			"price_change_percentage_1y": null,
			"price_change_percentage_1h_in_currency": {"usd": 0.333}
		}
	}`
	var d providers.CoinDetail
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return &d
}

func TestBuild(t *testing.T) {
	r := Build("solana", sampleDetail(t))

	assert.Equal(t, "Solana", r.Vitals.Name)
	assert.Equal(t, "SOL", r.Vitals.Symbol)
	assert.Equal(t, "$1,234.50", r.Vitals.Price)
	assert.Equal(t, "$2B", r.Vitals.MarketCap)
	assert.Equal(t, "$1.10B", r.Vitals.Volume24h)

	assert.Equal(t, "0.55x", r.Ratios.VTMR)
	assert.Equal(t, "$275M", r.Ratios.VTPC)
	assert.Equal(t, 275e6, r.Raw.VTPC)

	assert.Equal(t, "+0.33%", r.Velocity.H1)
	assert.Equal(t, "-4.00%", r.Velocity.H24)
	assert.Equal(t, "+10.13%", r.Velocity.D7)
	assert.Equal(t, "+2.50%", r.Velocity.M1)
	assert.Equal(t, "+0.00%", r.Velocity.Y1)

	assert.Equal(t, "580M", r.TotalSupply)
	assert.Equal(t, "https://www.coingecko.com/en/coins/solana", r.Links.CoinGecko)
	assert.Equal(t, "https://www.tradingview.com/chart/?symbol=SOLUSDT", r.Links.TradingView)
}

func TestBuild_RoundsHalfUp(t *testing.T) {
	d := &providers.CoinDetail{Symbol: "x"}
	d.MarketData.MarketCap = providers.Amounts{"usd": 200}
	d.MarketData.TotalVolume = providers.Amounts{"usd": 249}

	r := Build("x", d)
	assert.Equal(t, "1.25x", r.Ratios.VTMR)

	d.MarketData.TotalVolume = providers.Amounts{"usd": 1}
	d.MarketData.MarketCap = providers.Amounts{"usd": 8}
	assert.Equal(t, "0.13x", Build("x", d).Ratios.VTMR)
}

func TestBuild_ZeroGuards(t *testing.T) {
	d := &providers.CoinDetail{Symbol: "dust"}
	d.MarketData.TotalVolume = providers.Amounts{"usd": 50}
	d.MarketData.CurrentPrice = providers.Amounts{"usd": 0.00001234567}

	r := Build("dust", d)
	assert.Equal(t, "Unknown", r.Vitals.Name)
	assert.Equal(t, "0x", r.Ratios.VTMR)
	assert.Equal(t, "$0", r.Ratios.VTPC)
	assert.Equal(t, "$0.00001235", r.Vitals.Price)
}

func TestGroupThousands(t *testing.T) {
	tests := map[string]string{
		"0.50":       "0.50",
		"999.99":     "999.99",
		"1000.00":    "1,000.00",
		"65432.10":   "65,432.10",
		"1234567.00": "1,234,567.00",
		"-1234.5":    "-1,234.5",
	}
	for in, want := range tests {
		assert.Equal(t, want, groupThousands(in), in)
	}
}

func TestLookup_CachesReport(t *testing.T) {
	f := &fakeDetailer{detail: sampleDetail(t)}
	svc := New(f, cache.NewMemory(16), time.Minute)

	first, err := svc.Lookup(context.Background(), "Solana")
	require.NoError(t, err)
	second, err := svc.Lookup(context.Background(), "solana ")
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, first.Vitals, second.Vitals)
	assert.True(t, first.Raw.VTMR.Equal(second.Raw.VTMR))
}

func TestLookup_ErrorsAreNotCached(t *testing.T) {
	f := &fakeDetailer{err: providers.ErrRateLimited}
	svc := New(f, cache.NewMemory(16), time.Minute)

	_, err := svc.Lookup(context.Background(), "bitcoin")
	assert.True(t, errors.Is(err, providers.ErrRateLimited))

	f.err = nil
	f.detail = sampleDetail(t)
	_, err = svc.Lookup(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestLookup_EmptyID(t *testing.T) {
	svc := New(&fakeDetailer{}, nil, 0)
	_, err := svc.Lookup(context.Background(), "  ")
	assert.Error(t, err)
}
