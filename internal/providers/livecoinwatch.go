package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
)

type LiveCoinWatch struct {
	base
	apiKey string
}

func NewLiveCoinWatch(cfg config.ProviderConfig, deps Deps) (*LiveCoinWatch, error) {
	if !cfg.HasKey() {
		return nil, fmt.Errorf("livecoinwatch: %w", ErrMissingAPIKey)
	}
	return &LiveCoinWatch{
		base:   newBase(market.SourceLiveCoinWatch, cfg, deps),
		apiKey: strings.TrimSpace(cfg.APIKey),
	}, nil
}

type lcwRequest struct {
	Currency string `json:"currency"`
	Sort     string `json:"sort"`
	Order    string `json:"order"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	Meta     bool   `json:"meta"`
}

type lcwCoin struct {
	Code   string `json:"code"`
	Volume Number `json:"volume"`
	Cap    Number `json:"cap"`
}

// Fetch posts /coins/list queries ordered by rank.
func (c *LiveCoinWatch) Fetch(ctx context.Context) ([]market.Snapshot, error) {
	return c.paginate(ctx, func(ctx context.Context, n int) ([]market.Snapshot, int, error) {
		body, err := json.Marshal(lcwRequest{
			Currency: "USD",
			Sort:     "rank",
			Order:    "ascending",
			Offset:   n * c.cfg.PerPage,
			Limit:    c.cfg.PerPage,
			Meta:     true,
		})
		if err != nil {
			return nil, 0, err
		}

		req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/coins/list", bytes.NewReader(body))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		var coins []lcwCoin
		if err := c.doJSON(ctx, req, &coins); err != nil {
			return nil, 0, err
		}

		kept := make([]market.Snapshot, 0, len(coins))
		for _, coin := range coins {
			if s, ok := c.filter.Keep(coin.Code, coin.Cap.Float64(), coin.Volume.Float64(), c.source); ok {
				kept = append(kept, s)
			}
		}
		return kept, len(coins), nil
	})
}
