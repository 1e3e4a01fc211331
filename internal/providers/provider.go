// Package providers implements the listing clients that turn provider JSON
// into market snapshots. Raw provider payloads never leave this package.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/domain/market"
	"github.com/sawpanic/cryptovat/internal/infrastructure/httpclient"
	"github.com/sawpanic/cryptovat/internal/net/ratelimit"
)

var (
	// ErrMissingAPIKey is returned when a provider that requires a key has none.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrProviderDegraded wraps every fetch failure; see DegradedError.Reason.
	ErrProviderDegraded = errors.New("provider degraded")
)

// Degradation reasons
const (
	ReasonRateLimited = "rate_limited"
	ReasonHTTPError   = "http_error"
	ReasonAPIError    = "api_error"
	ReasonDecodeError = "decode_error"
	ReasonBreakerOpen = "breaker_open"
)

// Fetcher lists one provider's tokens for a single aggregation round.
type Fetcher interface {
	Source() market.Source
	Fetch(ctx context.Context) ([]market.Snapshot, error)
}

// DegradedError describes why a provider request failed.
type DegradedError struct {
	Provider market.Source
	Reason   string
	Err      error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, ErrProviderDegraded, e.Reason, e.Err)
}

func (e *DegradedError) Unwrap() error { return e.Err }

func (e *DegradedError) Is(target error) bool { return target == ErrProviderDegraded }

// Reason extracts the degradation reason from err, or "" if err is not a
// DegradedError.
func Reason(err error) string {
	var de *DegradedError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// Filter applies the stablecoin exclusion and the VTMR pre-filter.
type Filter struct {
	MinVTMR     float64
	Stablecoins map[string]struct{}
}

// Keep builds a snapshot from raw provider values, reporting false when the
// token must be skipped. Tokens with no market cap are always skipped.
func (f Filter) Keep(rawSymbol string, marketCap, volume float64, source market.Source) (market.Snapshot, bool) {
	upper := strings.ToUpper(strings.TrimSpace(rawSymbol))
	if _, stable := f.Stablecoins[upper]; stable {
		return market.Snapshot{}, false
	}
	symbol := market.CleanSymbol(upper)
	if symbol == "" {
		return market.Snapshot{}, false
	}
	if _, stable := f.Stablecoins[symbol]; stable {
		return market.Snapshot{}, false
	}
	if marketCap <= 0 || volume < 0 {
		return market.Snapshot{}, false
	}
	if volume/marketCap < f.MinVTMR {
		return market.Snapshot{}, false
	}
	return market.Snapshot{Symbol: symbol, MarketCap: marketCap, Volume24h: volume, Source: source}, true
}

// Deps are the shared collaborators handed to every client.
type Deps struct {
	Client  *httpclient.ClientPool
	Limiter *ratelimit.Limiter
	Filter  Filter
}

// FromConfig builds one fetcher per enabled provider, in a fixed order.
// Providers that need a key and have none are skipped with a warning.
func FromConfig(cfg *config.Config, deps Deps) []Fetcher {
	var fetchers []Fetcher
	for _, name := range []string{
		config.ProviderCoinGecko,
		config.ProviderCoinMarketCap,
		config.ProviderLiveCoinWatch,
		config.ProviderCoinRanking,
	} {
		pc, ok := cfg.Providers[name]
		if !ok || !pc.Enabled {
			continue
		}

		var (
			f   Fetcher
			err error
		)
		switch name {
		case config.ProviderCoinGecko:
			f = NewCoinGecko(pc, deps)
		case config.ProviderCoinMarketCap:
			f, err = NewCoinMarketCap(pc, deps)
		case config.ProviderLiveCoinWatch:
			f, err = NewLiveCoinWatch(pc, deps)
		case config.ProviderCoinRanking:
			f, err = NewCoinRanking(pc, deps)
		}
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("Skipping provider")
			continue
		}
		fetchers = append(fetchers, f)
	}
	return fetchers
}

// base carries the plumbing shared by the listing clients.
type base struct {
	source  market.Source
	cfg     config.ProviderConfig
	client  *httpclient.ClientPool
	limiter *ratelimit.Limiter
	filter  Filter
	breaker *gobreaker.CircuitBreaker
}

func newBase(source market.Source, cfg config.ProviderConfig, deps Deps) base {
	b := base{
		source:  source,
		cfg:     cfg,
		client:  deps.Client,
		limiter: deps.Limiter,
		filter:  deps.Filter,
	}
	if b.limiter == nil {
		b.limiter = ratelimit.NewLimiter()
	}
	b.limiter.SetInterval(source.String(), cfg.PageDelay())

	if cfg.BreakerFails > 0 {
		fails := uint32(cfg.BreakerFails)
		b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        source.Name(),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= fails
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Provider circuit breaker state change")
			},
		})
	}
	return b
}

func (b *base) Source() market.Source { return b.source }

// doJSON sends req through the breaker and the shared pool and decodes a 2xx
// body into out.
func (b *base) doJSON(ctx context.Context, req *http.Request, out interface{}) error {
	call := func() (interface{}, error) {
		return nil, b.roundTrip(ctx, req, out)
	}
	if b.breaker == nil {
		_, err := call()
		return err
	}

	_, err := b.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return b.degraded(ReasonBreakerOpen, err)
	}
	return err
}

func (b *base) roundTrip(ctx context.Context, req *http.Request, out interface{}) error {
	if err := b.limiter.Wait(ctx, b.source.String()); err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(ctx, req)
	if err != nil {
		return b.degraded(ReasonAPIError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode == http.StatusTooManyRequests {
			return b.degraded(ReasonRateLimited, statusErr)
		}
		return b.degraded(ReasonHTTPError, statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return b.degraded(ReasonDecodeError, err)
	}
	return nil
}

func (b *base) degraded(reason string, err error) error {
	return &DegradedError{Provider: b.source, Reason: reason, Err: err}
}

// paginate calls page for 0..MaxPages-1, skipping failed pages. It stops
// early when a page returns no raw items. An error is returned only if no
// page succeeded.
func (b *base) paginate(ctx context.Context, page func(ctx context.Context, n int) (kept []market.Snapshot, raw int, err error)) ([]market.Snapshot, error) {
	var (
		out      []market.Snapshot
		lastErr  error
		okPages  int
		failures int
	)
	for n := 0; n < b.cfg.MaxPages; n++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		kept, raw, err := page(ctx, n)
		if err != nil {
			failures++
			lastErr = err
			log.Warn().
				Err(err).
				Str("provider", b.source.String()).
				Str("reason", Reason(err)).
				Int("page", n+1).
				Msg("Skipping provider page")
			continue
		}

		okPages++
		out = append(out, kept...)
		log.Debug().
			Str("provider", b.source.String()).
			Int("page", n+1).
			Int("items", raw).
			Int("kept", len(kept)).
			Msg("Provider page fetched")

		if raw == 0 {
			break
		}
	}

	if okPages == 0 && lastErr != nil {
		return nil, fmt.Errorf("%s: all %d pages failed: %w", b.source, failures, lastErr)
	}
	return out, nil
}

// Number decodes JSON numbers, numeric strings and null.
type Number float64

// Float64 returns the decoded value.
func (f Number) Float64() float64 { return float64(f) }

func (f *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = Number(v)
	return nil
}
