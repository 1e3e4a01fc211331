package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Thresholds.MinVTMR)
	assert.Equal(t, 199.0, cfg.Thresholds.MaxVTMR)
	assert.Equal(t, 0.5, cfg.Thresholds.MinLargeCapVTMR)
	assert.Equal(t, 1e9, cfg.Thresholds.LargeCapUSD)
	assert.Contains(t, cfg.StablecoinSet(), "USDT")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cryptovat.yaml")
	content := `
thresholds:
  min_vtmr: 0.8
  max_vtmr: 50
  min_largecap_vtmr: 0.3
  large_cap_usd: 500000000
stablecoins: [usdt, dai]
aggregator:
  prefilter_vtmr: 0.4
  wait_seconds: 30
  sovereign: CG
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Thresholds.MinVTMR)
	assert.Equal(t, 50.0, cfg.Thresholds.MaxVTMR)
	assert.Equal(t, 5e8, cfg.Thresholds.LargeCapUSD)
	assert.Equal(t, []string{"USDT", "DAI"}, cfg.Stablecoins)
	assert.Equal(t, 30, cfg.Aggregator.WaitSeconds)
	// untouched sections keep their defaults
	assert.Equal(t, 4, cfg.HTTP.MaxConcurrency)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"min above max", func(c *Config) { c.Thresholds.MinVTMR = 300 }, "min_vtmr"},
		{"largecap above max", func(c *Config) { c.Thresholds.MinLargeCapVTMR = 300 }, "min_largecap_vtmr"},
		{"zero large cap", func(c *Config) { c.Thresholds.LargeCapUSD = 0 }, "large_cap_usd"},
		{"unknown sovereign", func(c *Config) { c.Aggregator.Sovereign = "coingeko" }, "sovereign"},
		{"zero wait", func(c *Config) { c.Aggregator.WaitSeconds = 0 }, "wait_seconds"},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "unknown backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "redis_addr"},
		{"db without dsn", func(c *Config) { c.Database.Enabled = true }, "dsn"},
		{"provider without pages", func(c *Config) {
			p := c.Providers[ProviderCoinGecko]
			p.MaxPages = 0
			c.Providers[ProviderCoinGecko] = p
		}, "max_pages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"CMC_API_KEY":           "cmc-key",
		"LIVECOINWATCH_API_KEY": "CONFIG_REQUIRED_LCW",
		"PG_DSN":                "postgres://localhost/cryptovat",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.True(t, cfg.Providers[ProviderCoinMarketCap].HasKey())
	assert.False(t, cfg.Providers[ProviderLiveCoinWatch].HasKey(), "placeholder keys count as missing")
	assert.False(t, cfg.Providers[ProviderCoinRanking].HasKey())
	assert.Equal(t, "postgres://localhost/cryptovat", cfg.Database.DSN)
}

func TestBindThresholdFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindThresholdFlags(fs, &cfg.Thresholds)
	BindReconcileFlags(fs, &cfg.Reconcile)

	require.NoError(t, fs.Parse([]string{"--min-vtmr=1.2", "--large-cap=2e9", "--spot-only-min-vtmr=0.9"}))

	assert.Equal(t, 1.2, cfg.Thresholds.MinVTMR)
	assert.Equal(t, 2e9, cfg.Thresholds.LargeCapUSD)
	assert.Equal(t, 199.0, cfg.Thresholds.MaxVTMR)
	assert.Equal(t, 0.9, cfg.Reconcile.SpotOnlyMinVTMR)
}
