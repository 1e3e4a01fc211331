package futures

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOIScore(t *testing.T) {
	tests := []struct {
		change float64
		score  int
		signal string
	}{
		{0.25, 5, "Strong"},
		{0.20, 4, "Bullish"},
		{0.15, 4, "Bullish"},
		{0.10, 3, "Build-Up"},
		{0.01, 3, "Build-Up"},
		{0.00, 2, "Weakening"},
		{-0.05, 2, "Weakening"},
		{-0.10, 1, "Exiting"},
		{-0.20, 0, "Exiting"},
		{-0.50, 0, "Exiting"},
	}

	for _, tt := range tests {
		score, signal := OIScore(tt.change)
		assert.Equal(t, tt.score, score, "change %v", tt.change)
		assert.Equal(t, tt.signal, signal, "change %v", tt.change)
	}
}

func TestFundingSignal(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0.10, "Greed"},
		{0.05, "Greed"},
		{0.01, "Bullish"},
		{0, "Neutral"},
		{-0.01, "Bearish"},
		{-0.05, "Extreme Fear"},
		{-0.30, "Extreme Fear"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FundingSignal(tt.value), "value %v", tt.value)
	}
}

func TestOISSLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"+15%", "+15% Bullish"},
		{"25%", "+25% Strong"},
		{"-12%", "-12% Exiting"},
		{"0%", "0% Weakening"},
		{"", "-"},
		{"-", "-"},
		{"N/A", "-"},
		{"—", "-"},
		{"abc", "-"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, OISSLabel(tt.raw), "raw %q", tt.raw)
	}
}

func TestFundingLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"+2%", "2.0% Greed"},
		{"0.01%", "0.01% Bullish"},
		{"-0.005%", "-0.005% Bearish"},
		{"-0.1%", "-0.1% Extreme Fear"},
		{"0%", "0.0% Neutral"},
		{"N/A", "-"},
		{"", "-"},
		{"1.2.3%", "1.2.3%"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FundingLabel(tt.raw), "raw %q", tt.raw)
	}
}
