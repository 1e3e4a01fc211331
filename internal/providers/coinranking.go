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

type CoinRanking struct {
	base
	apiKey string
}

func NewCoinRanking(cfg config.ProviderConfig, deps Deps) (*CoinRanking, error) {
	if !cfg.HasKey() {
		return nil, fmt.Errorf("coinranking: %w", ErrMissingAPIKey)
	}
	return &CoinRanking{
		base:   newBase(market.SourceCoinRanking, cfg, deps),
		apiKey: strings.TrimSpace(cfg.APIKey),
	}, nil
}

// CoinRanking reports amounts as JSON strings.
type crCoins struct {
	Data struct {
		Coins []struct {
			Symbol    string `json:"symbol"`
			Volume24h Number `json:"24hVolume"`
			MarketCap Number `json:"marketCap"`
		} `json:"coins"`
	} `json:"data"`
}

// Fetch walks /v2/coins ordered by market cap.
func (c *CoinRanking) Fetch(ctx context.Context) ([]market.Snapshot, error) {
	return c.paginate(ctx, func(ctx context.Context, n int) ([]market.Snapshot, int, error) {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(c.cfg.PerPage))
		q.Set("offset", fmt.Sprint(n*c.cfg.PerPage))
		q.Set("orderBy", "marketCap")
		q.Set("orderDirection", "desc")

		req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"/v2/coins?"+q.Encode(), nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("x-access-token", c.apiKey)

		var resp crCoins
		if err := c.doJSON(ctx, req, &resp); err != nil {
			return nil, 0, err
		}

		coins := resp.Data.Coins
		kept := make([]market.Snapshot, 0, len(coins))
		for _, coin := range coins {
			if s, ok := c.filter.Keep(coin.Symbol, coin.MarketCap.Float64(), coin.Volume24h.Float64(), c.source); ok {
				kept = append(kept, s)
			}
		}
		return kept, len(coins), nil
	})
}
