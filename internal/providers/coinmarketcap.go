package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
)

type CoinMarketCap struct {
	base
	apiKey string
}

func NewCoinMarketCap(cfg config.ProviderConfig, deps Deps) (*CoinMarketCap, error) {
	if !cfg.HasKey() {
		return nil, fmt.Errorf("coinmarketcap: %w", ErrMissingAPIKey)
	}
	return &CoinMarketCap{
		base:   newBase(market.SourceCoinMarketCap, cfg, deps),
		apiKey: strings.TrimSpace(cfg.APIKey),
	}, nil
}

type cmcListing struct {
	Data []struct {
		Symbol string `json:"symbol"`
		Quote  struct {
			USD struct {
				Volume24h Number `json:"volume_24h"`
				MarketCap Number `json:"market_cap"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// Fetch walks listings/latest in PerPage steps starting at rank 1.
func (c *CoinMarketCap) Fetch(ctx context.Context) ([]market.Snapshot, error) {
	return c.paginate(ctx, func(ctx context.Context, n int) ([]market.Snapshot, int, error) {
		q := url.Values{}
		q.Set("start", fmt.Sprint(1+n*c.cfg.PerPage))
		q.Set("limit", fmt.Sprint(c.cfg.PerPage))
		q.Set("convert", "USD")

		req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"/v1/cryptocurrency/listings/latest?"+q.Encode(), nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

		var listing cmcListing
		if err := c.doJSON(ctx, req, &listing); err != nil {
			return nil, 0, err
		}

		kept := make([]market.Snapshot, 0, len(listing.Data))
		for _, d := range listing.Data {
			usd := d.Quote.USD
			if s, ok := c.filter.Keep(d.Symbol, usd.MarketCap.Float64(), usd.Volume24h.Float64(), c.source); ok {
				kept = append(kept, s)
			}
		}
		return kept, len(listing.Data), nil
	})
}
