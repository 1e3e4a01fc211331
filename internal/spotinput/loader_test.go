package spotinput

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CSVAliases(t *testing.T) {
	input := "Symbol,Market Cap,Volume 24h,Spot VTMR\n" +
		"abc,\"$1,500,000,000\",900M,0.6x\n" +
		"x-y-z,2M,1.5M,\n" +
		",1M,1M,1.0\n" +
		"ABC,1,1,9\n"

	tokens, err := Load(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, "ABC", tokens[0].Symbol)
	assert.Equal(t, 1.5e9, tokens[0].MarketCap)
	assert.Equal(t, 9e8, tokens[0].Volume24h)
	assert.Equal(t, 0.6, tokens[0].VTMR)
	assert.True(t, tokens[0].IsLargeCap)

	// VTMR is volume over market cap even without the column
	assert.Equal(t, "XYZ", tokens[1].Symbol)
	assert.Equal(t, 0.75, tokens[1].VTMR)
	assert.False(t, tokens[1].IsLargeCap)
}

func TestLoad_VTMRFollowsAmounts(t *testing.T) {
	input := "Ticker,Market Cap,Volume 24h,Spot VTMR\n" +
		"ABC,$1.00M,$460.00K,0.5x\n"

	tokens, err := Load(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, 0.46, tokens[0].VTMR)
	assert.Equal(t, tokens[0].Volume24h/tokens[0].MarketCap, tokens[0].VTMR)
}

func TestLoad_FuzzyTickerColumn(t *testing.T) {
	input := "Token Name,flipping multiple\nPEPE,1.2\n"

	tokens, err := Load(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "PEPE", tokens[0].Symbol)
	assert.Equal(t, 1.2, tokens[0].VTMR)
}

func TestLoad_NoTickerColumn(t *testing.T) {
	_, err := Load(strings.NewReader("price,volume\n1,2\n"), FormatCSV)
	assert.ErrorIs(t, err, ErrNoTickerColumn)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load(strings.NewReader(""), Format("xlsx"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_EmptyInput(t *testing.T) {
	tokens, err := Load(strings.NewReader(""), FormatCSV)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLoad_HTMLFirstTable(t *testing.T) {
	input := `<html><body>
<h1>Spot Scan</h1>
<table class="table">
  <thead><tr><th>Ticker</th><th>Market Cap</th><th>Volume</th><th>Spot VTMR</th></tr></thead>
  <tbody>
    <tr><td><b>wif</b></td><td>2.4B</td><td>1.9B</td><td>0.8x</td></tr>
    <tr><td>BONK</td><td>900M</td><td>600M</td><td>0.7x</td></tr>
  </tbody>
</table>
<table><tr><th>Ticker</th></tr><tr><td>IGNORED</td></tr></table>
</body></html>`

	tokens, err := Load(strings.NewReader(input), FormatHTML)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "WIF", tokens[0].Symbol)
	assert.InDelta(t, 1.9/2.4, tokens[0].VTMR, 1e-9)
	assert.Equal(t, "BONK", tokens[1].Symbol)
	assert.Equal(t, 6e8, tokens[1].Volume24h)
}

func TestLoadFile_InfersFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spot.html")
	require.NoError(t, os.WriteFile(path, []byte(`<table><tr><th>Symbol</th></tr><tr><td>SOL</td></tr></table>`), 0o644))

	tokens, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "SOL", tokens[0].Symbol)

	_, err = LoadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "market_cap", NormalizeColumn("  Market   Cap "))
	assert.Equal(t, "ticker", NormalizeColumn("\ufeffTicker"))
	assert.Equal(t, FormatHTML, FormatFor("report.HTM"))
	assert.Equal(t, FormatCSV, FormatFor("report.txt"))
}
