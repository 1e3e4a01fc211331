package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1200000", 1200000},
		{"$1,200,000", 1200000},
		{"900k", 900000},
		{"12.5M", 12500000},
		{"$3.2B", 3.2e9},
		{"1t", 1e12},
		{" 42 ", 42},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "$", "1.2.3M"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestParseRatio(t *testing.T) {
	v, err := ParseRatio("1.5x")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = ParseRatio("0.75")
	require.NoError(t, err)
	assert.Equal(t, 0.75, v)

	_, err = ParseRatio("n/a")
	assert.Error(t, err)
}

func TestCleanSymbol(t *testing.T) {
	assert.Equal(t, "BTC", CleanSymbol(" btc "))
	assert.Equal(t, "BSCUSD", CleanSymbol("BSC-USD"))
	assert.Equal(t, "1000SATS", CleanSymbol("1000sats!"))
	assert.Equal(t, "", CleanSymbol("--"))
}

func TestShortNum(t *testing.T) {
	assert.Equal(t, "2.00B", ShortNum(2e9))
	assert.Equal(t, "1.50M", ShortNum(1.5e6))
	assert.Equal(t, "12.50K", ShortNum(12500))
	assert.Equal(t, "999", ShortNum(999.4))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "0", Compact(0))
	assert.Equal(t, "1.50M", Compact(1.5e6))
	assert.Equal(t, "2B", Compact(2e9))
	assert.Equal(t, "950", Compact(950))
	assert.Equal(t, "12.34K", Compact(12340))
}

func TestNewVerifiedToken(t *testing.T) {
	tok := NewVerifiedToken("ABC", 2e9, 1.1e9, 1, 1e9)
	assert.True(t, tok.IsLargeCap)
	assert.Equal(t, 1.1e9/2e9, tok.VTMR)

	zero := NewVerifiedToken("ZERO", 0, 10, 1, 1e9)
	assert.Equal(t, 0.0, zero.VTMR)
	assert.False(t, zero.IsLargeCap)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]VerifiedToken{
		{Symbol: "A", VTMR: 3.1, IsLargeCap: true},
		{Symbol: "B", VTMR: 2.0},
		{Symbol: "C", VTMR: 0.6},
	})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3.1, s.PeakVTMR)
	assert.Equal(t, 2, s.HighVolume)
	assert.Equal(t, 1, s.LargeCaps)
}
