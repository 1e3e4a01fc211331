package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptovat/internal/domain/market"
)

func TestConfigPathFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, defaultConfigPath},
		{[]string{"spot", "--config", "alt.yaml"}, "alt.yaml"},
		{[]string{"--config=other.yaml", "monitor"}, "other.yaml"},
		{[]string{"spot", "--config"}, defaultConfigPath},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, configPathFromArgs(tt.args), "args %v", tt.args)
	}
}

func TestOptionalPath(t *testing.T) {
	assert.Equal(t, "custom.yaml", optionalPath("custom.yaml"))
	// tests run from the package directory, where the default path does not exist
	assert.Equal(t, "", optionalPath(defaultConfigPath))
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, setupLogging("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Error(t, setupLogging("loud"))
}

func TestPrintSpotTable(t *testing.T) {
	tokens := []market.VerifiedToken{
		{Symbol: "ABC", MarketCap: 2_500_000_000, Volume24h: 5_000_000_000, VTMR: 2, SourceCount: 3, IsLargeCap: true},
		{Symbol: "XYZ", MarketCap: 10_000_000, Volume24h: 6_000_000, VTMR: 0.6, SourceCount: 2},
	}
	var buf bytes.Buffer
	printSpotTable(&buf, tokens, market.Summarize(tokens))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[0], "TICKER")
	assert.Contains(t, lines[1], "ABC")
	assert.Contains(t, lines[1], "2.0x")
	assert.Contains(t, lines[1], "Yes")
	assert.Contains(t, lines[2], "XYZ")
	assert.Contains(t, lines[len(lines)-1], "2 tokens")
}

func TestPrintPartition(t *testing.T) {
	p := market.Partition{
		BothMarkets: []market.MatchedRow{{Ticker: "WIF", Spot: market.VerifiedToken{Symbol: "WIF", VTMR: 0.8}, Futures: market.FuturesRow{Ticker: "WIF", VTMR: 0.79, OISS: "-", Funding: "-"}}},
		FuturesOnly: []market.FuturesRow{{Ticker: "1000PEPE", VTMR: 0.63}},
	}
	var buf bytes.Buffer
	printPartition(&buf, p)

	out := buf.String()
	assert.Contains(t, out, "MATCHED (1)")
	assert.Contains(t, out, "FUTURES ONLY (1)")
	assert.Contains(t, out, "SPOT ONLY (0)")
	assert.Contains(t, out, "1000PEPE")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"spot", "analyze", "deepdive", "monitor"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	spot, _, _ := root.Find([]string{"spot"})
	assert.NotNil(t, spot.Flags().Lookup("min-vtmr"))
	analyze, _, _ := root.Find([]string{"analyze"})
	assert.NotNil(t, analyze.Flags().Lookup("futures-min-vtmr"))
	assert.NotNil(t, analyze.Flags().Lookup("cleanup"))
}
