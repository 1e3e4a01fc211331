// Package config loads and validates the scanner configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/cryptovat/internal/domain/market"
)

// Provider keys used in the providers map
const (
	ProviderCoinGecko     = "coingecko"
	ProviderCoinMarketCap = "coinmarketcap"
	ProviderLiveCoinWatch = "livecoinwatch"
	ProviderCoinRanking   = "coinranking"
)

// envKeys maps provider names to the environment variable holding their key
var envKeys = map[string]string{
	ProviderCoinGecko:     "COINGECKO_API_KEY",
	ProviderCoinMarketCap: "CMC_API_KEY",
	ProviderLiveCoinWatch: "LIVECOINWATCH_API_KEY",
	ProviderCoinRanking:   "COINRANKINGS_API_KEY",
}

// DefaultStablecoins are excluded from every listing
var DefaultStablecoins = []string{
	"USDT", "USDC", "BUSD", "DAI", "BSC-USD", "USD1", "CBBTC", "WBNB", "WETH",
	"UST", "SBUSDT", "TUSD", "USDP", "USDD", "FRAX", "GUSD", "LUSD", "FDUSD",
}

// Config is the complete scanner configuration
type Config struct {
	Thresholds  Thresholds                `yaml:"thresholds"`
	Reconcile   ReconcileConfig           `yaml:"reconcile"`
	Aggregator  AggregatorConfig          `yaml:"aggregator"`
	Stablecoins []string                  `yaml:"stablecoins"`
	HTTP        HTTPConfig                `yaml:"http"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Cache       CacheConfig               `yaml:"cache"`
	Database    DatabaseConfig            `yaml:"database"`
	Server      ServerConfig              `yaml:"server"`
}

// Thresholds are the per-user VTMR filter bounds
type Thresholds struct {
	MinVTMR         float64 `yaml:"min_vtmr"`
	MaxVTMR         float64 `yaml:"max_vtmr"`
	MinLargeCapVTMR float64 `yaml:"min_largecap_vtmr"`
	LargeCapUSD     float64 `yaml:"large_cap_usd"`
}

// ReconcileConfig holds the cross-market inclusion thresholds
type ReconcileConfig struct {
	FuturesMinVTMR  float64 `yaml:"futures_min_vtmr"`
	SpotOnlyMinVTMR float64 `yaml:"spot_only_min_vtmr"`
}

// AggregatorConfig controls the provider fan-out
type AggregatorConfig struct {
	PrefilterVTMR float64 `yaml:"prefilter_vtmr"`
	WaitSeconds   int     `yaml:"wait_seconds"`
	Sovereign     string  `yaml:"sovereign"`
}

// CacheConfig selects the cache backend
type CacheConfig struct {
	Backend            string `yaml:"backend"` // memory | redis
	RedisAddr          string `yaml:"redis_addr"`
	RedisPassword      string `yaml:"redis_password"`
	RedisDB            int    `yaml:"redis_db"`
	MaxEntries         int64  `yaml:"max_entries"`
	DeepDiveTTLSeconds int    `yaml:"deep_dive_ttl_seconds"`
	SnapshotTTLSeconds int    `yaml:"snapshot_ttl_seconds"`
}

// DatabaseConfig enables the optional scan history store
type DatabaseConfig struct {
	Enabled             bool   `yaml:"enabled"`
	DSN                 string `yaml:"dsn"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	MaxIdleConns        int    `yaml:"max_idle_conns"`
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
}

// ServerConfig configures the monitor HTTP server
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// InputDir bounds the files an analyze request may read and clean up
	InputDir string `yaml:"input_dir"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Thresholds: Thresholds{
			MinVTMR:         0.5,
			MaxVTMR:         199.0,
			MinLargeCapVTMR: 0.5,
			LargeCapUSD:     1_000_000_000,
		},
		Reconcile: ReconcileConfig{
			FuturesMinVTMR:  0.5,
			SpotOnlyMinVTMR: 0.5,
		},
		Aggregator: AggregatorConfig{
			PrefilterVTMR: 0.5,
			WaitSeconds:   60,
			Sovereign:     "CG",
		},
		Stablecoins: append([]string(nil), DefaultStablecoins...),
		HTTP: HTTPConfig{
			MaxConcurrency: 4,
			TimeoutSeconds: 15,
			MaxRetries:     3,
			BackoffBaseMS:  500,
			BackoffMaxMS:   8000,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Providers: map[string]ProviderConfig{
			ProviderCoinGecko: {
				Enabled: true, BaseURL: "https://api.coingecko.com/api/v3",
				MaxPages: 4, PerPage: 250, PageDelayMS: 50, PublicDelayMS: 200, BreakerFails: 3,
			},
			ProviderCoinMarketCap: {
				Enabled: true, BaseURL: "https://pro-api.coinmarketcap.com",
				MaxPages: 10, PerPage: 100, PageDelayMS: 200, BreakerFails: 3,
			},
			ProviderLiveCoinWatch: {
				Enabled: true, BaseURL: "https://api.livecoinwatch.com",
				MaxPages: 1, PerPage: 1000, BreakerFails: 2,
			},
			ProviderCoinRanking: {
				Enabled: true, BaseURL: "https://api.coinranking.com",
				MaxPages: 10, PerPage: 100, PageDelayMS: 200, BreakerFails: 3,
			},
		},
		Cache: CacheConfig{
			Backend:            "memory",
			MaxEntries:         1024,
			DeepDiveTTLSeconds: 120,
		},
		Database: DatabaseConfig{
			MaxOpenConns:        10,
			MaxIdleConns:        5,
			QueryTimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8080,
			InputDir: "inputs",
		},
	}
}

// Load reads the YAML file at path on top of Default, loads an optional
// .env file and applies API keys from the environment. An empty path skips
// the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv fills provider API keys and the database DSN from the environment.
// Keys already present in the file win.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for name, envKey := range envKeys {
		p, ok := c.Providers[name]
		if !ok {
			continue
		}
		if p.APIKey == "" {
			p.APIKey = strings.TrimSpace(getenv(envKey))
		}
		c.Providers[name] = p
	}
	if dsn := getenv("PG_DSN"); dsn != "" && c.Database.DSN == "" {
		c.Database.DSN = dsn
	}
	if addr := getenv("REDIS_ADDR"); addr != "" && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = addr
	}
}

// Validate ensures the configuration is valid and consistent
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if c.Reconcile.FuturesMinVTMR < 0 || c.Reconcile.SpotOnlyMinVTMR < 0 {
		return fmt.Errorf("reconcile thresholds cannot be negative")
	}
	if c.Aggregator.PrefilterVTMR < 0 {
		return fmt.Errorf("aggregator prefilter_vtmr cannot be negative")
	}
	if _, ok := market.ParseSource(c.Aggregator.Sovereign); !ok {
		return fmt.Errorf("aggregator sovereign %q is not a known provider", c.Aggregator.Sovereign)
	}
	if c.Aggregator.WaitSeconds <= 0 {
		return fmt.Errorf("aggregator wait_seconds must be positive, got %d", c.Aggregator.WaitSeconds)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	for name, p := range c.Providers {
		if err := p.Validate(name); err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
	}
	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache: redis_addr required for redis backend")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database: dsn required when enabled")
	}

	for i, s := range c.Stablecoins {
		c.Stablecoins[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return nil
}

// Validate checks the threshold ordering
func (t *Thresholds) Validate() error {
	if t.MinVTMR < 0 || t.MinLargeCapVTMR < 0 {
		return fmt.Errorf("minimum VTMR cannot be negative")
	}
	if t.MinVTMR > t.MaxVTMR {
		return fmt.Errorf("min_vtmr (%g) must be <= max_vtmr (%g)", t.MinVTMR, t.MaxVTMR)
	}
	if t.MinLargeCapVTMR > t.MaxVTMR {
		return fmt.Errorf("min_largecap_vtmr (%g) must be <= max_vtmr (%g)", t.MinLargeCapVTMR, t.MaxVTMR)
	}
	if t.LargeCapUSD <= 0 {
		return fmt.Errorf("large_cap_usd must be positive, got %g", t.LargeCapUSD)
	}
	return nil
}

// StablecoinSet returns the exclusion list as a lookup set
func (c *Config) StablecoinSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Stablecoins))
	for _, s := range c.Stablecoins {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return set
}

// Wait returns the bounded wait for one aggregation round
func (a AggregatorConfig) Wait() time.Duration {
	return time.Duration(a.WaitSeconds) * time.Second
}

// DeepDiveTTL returns the deep-dive cache lifetime
func (c CacheConfig) DeepDiveTTL() time.Duration {
	return time.Duration(c.DeepDiveTTLSeconds) * time.Second
}

// SnapshotTTL returns how long provider listings are reused; zero disables it
func (c CacheConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

// QueryTimeout returns the per-query database timeout
func (d DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutSeconds) * time.Second
}
