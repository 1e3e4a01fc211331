package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
)

// ErrRateLimited is returned by CoinDetail when CoinGecko answers 429.
var ErrRateLimited = errors.New("coingecko rate limit reached")

// CoinGecko is the sovereign listing source. It works without a key; a
// configured key that gets rejected is dropped for the rest of the fetch.
type CoinGecko struct {
	base
	apiKey string
}

func NewCoinGecko(cfg config.ProviderConfig, deps Deps) *CoinGecko {
	cg := &CoinGecko{base: newBase(market.SourceCoinGecko, cfg, deps)}
	if cfg.HasKey() {
		cg.apiKey = strings.TrimSpace(cfg.APIKey)
	}
	return cg
}

type cgMarket struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	MarketCap   Number `json:"market_cap"`
	TotalVolume Number `json:"total_volume"`
}

// Fetch walks the /coins/markets listing ordered by market cap.
func (c *CoinGecko) Fetch(ctx context.Context) ([]market.Snapshot, error) {
	key := c.apiKey
	if key == "" {
		c.limiter.SetInterval(c.source.String(), c.cfg.PublicDelay())
	} else {
		c.limiter.SetInterval(c.source.String(), c.cfg.PageDelay())
	}

	return c.paginate(ctx, func(ctx context.Context, n int) ([]market.Snapshot, int, error) {
		rows, err := c.marketsPage(ctx, n+1, key)
		if err != nil && key != "" && keyRejected(err) {
			log.Warn().
				Str("provider", c.source.String()).
				Err(err).
				Msg("API key rejected, falling back to public access")
			key = ""
			c.limiter.SetInterval(c.source.String(), c.cfg.PublicDelay())
			rows, err = c.marketsPage(ctx, n+1, "")
		}
		if err != nil {
			return nil, 0, err
		}

		kept := make([]market.Snapshot, 0, len(rows))
		for _, r := range rows {
			if s, ok := c.filter.Keep(r.Symbol, r.MarketCap.Float64(), r.TotalVolume.Float64(), c.source); ok {
				kept = append(kept, s)
			}
		}
		return kept, len(rows), nil
	})
}

func (c *CoinGecko) marketsPage(ctx context.Context, page int, key string) ([]cgMarket, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", fmt.Sprint(c.cfg.PerPage))
	q.Set("page", fmt.Sprint(page))
	q.Set("sparkline", "false")

	req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	setKeyHeader(req, key)

	var rows []cgMarket
	if err := c.doJSON(ctx, req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CoinDetail is the subset of /coins/{id} used by the deep dive.
type CoinDetail struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData struct {
		CurrentPrice      Amounts `json:"current_price"`
		MarketCap         Amounts `json:"market_cap"`
		TotalVolume       Amounts `json:"total_volume"`
		TotalSupply       Number  `json:"total_supply"`
		PriceChange24h    Number  `json:"price_change_percentage_24h"`
		PriceChange7d     Number  `json:"price_change_percentage_7d"`
		PriceChange30d    Number  `json:"price_change_percentage_30d"`
		PriceChange1y     Number  `json:"price_change_percentage_1y"`
		PriceChange1hInCy Amounts `json:"price_change_percentage_1h_in_currency"`
	} `json:"market_data"`
}

// Amounts is a per-currency value map.
type Amounts map[string]Number

// USD returns the USD entry, or zero.
func (a Amounts) USD() float64 {
	return float64(a["usd"])
}

// CoinDetail fetches one coin's market data. It bypasses pagination but
// shares the breaker and throttle with the listing.
func (c *CoinGecko) CoinDetail(ctx context.Context, coinID string) (*CoinDetail, error) {
	coinID = strings.ToLower(strings.TrimSpace(coinID))
	if coinID == "" {
		return nil, fmt.Errorf("coin id cannot be empty")
	}

	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("market_data", "true")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "1h")

	req, err := http.NewRequest(http.MethodGet, c.cfg.BaseURL+"/coins/"+url.PathEscape(coinID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	setKeyHeader(req, c.apiKey)

	var detail CoinDetail
	if err := c.doJSON(ctx, req, &detail); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("coin detail %s: %w", coinID, err)
	}
	return &detail, nil
}

// setKeyHeader picks the demo or pro header from the key prefix.
func setKeyHeader(req *http.Request, key string) {
	if key == "" {
		return
	}
	if strings.HasPrefix(key, "CG-") {
		req.Header.Set("x-cg-demo-api-key", key)
		return
	}
	req.Header.Set("x-cg-pro-api-key", key)
}

func keyRejected(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}
