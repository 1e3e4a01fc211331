// Package futures reconstructs the futures market table from the text of a
// screener PDF export and labels open-interest and funding moves.
package futures

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/domain/market"
)

// Ticker length bounds after cleaning.
const (
	MinTickerLen = 2
	MaxTickerLen = 12
	// maxTickerLineLen rejects long lines before cleaning; names are
	// never mistaken for tickers past this length.
	maxTickerLineLen = 15
)

// financialPattern matches market cap and volume, up to two optional
// percentage or placeholder fields (open interest change, funding) and a
// trailing VTMR.
var financialPattern = regexp.MustCompile(
	`(\$?[+-]?[\d,.]+[kKmMbB]?)\s+` +
		`(\$?[+-]?[\d,.]+[kKmMbB]?)\s+` +
		`(?:([+\-]?[\d.,]+%?|[-–—]|N/A)\s+)?` +
		`(?:([+\-]?[\d.,]+%?|[-–—]|N/A)\s+)?` +
		`(\d*\.?\d+)`,
)

// ignoreKeywords drop layout lines: headers, footers, navigation.
var ignoreKeywords = []string{
	"page", "coinalyze", "contract", "filter", "column",
	"mkt cap", "vol 24h", "vtmr", "coins", "all contracts",
	"custom metrics", "watchlists",
}

// FinancialTuple is one numeric row of the table.
type FinancialTuple struct {
	MarketCap    string  // currency symbol and separators stripped, suffix kept
	Volume       string
	VTMR         float64
	OpenInterest string // raw field, "" when absent
	Funding      string
}

// Pair is a name line followed by its ticker line.
type Pair struct {
	Name   string
	Ticker string
}

// ClassifyLines splits one page into financial tuples and candidate text
// lines, both in page order. Noise lines are dropped.
func ClassifyLines(lines []string) ([]FinancialTuple, []string) {
	var (
		tuples []FinancialTuple
		text   []string
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || isNoise(line) {
			continue
		}

		if m := financialPattern.FindStringSubmatch(line); m != nil {
			if vtmr, err := strconv.ParseFloat(m[5], 64); err == nil {
				tuples = append(tuples, FinancialTuple{
					MarketCap:    stripAmount(m[1]),
					Volume:       stripAmount(m[2]),
					VTMR:         vtmr,
					OpenInterest: m[3],
					Funding:      m[4],
				})
				continue
			}
			text = append(text, line)
			continue
		}

		if len(line) > 1 && !isDigits(line) {
			text = append(text, line)
		}
	}
	return tuples, text
}

// CleanTicker validates a ticker-shaped line. It returns "" when the line is
// too long or cleans to fewer than 2 or more than 12 characters.
func CleanTicker(line string) string {
	if len(line) > maxTickerLineLen {
		return ""
	}
	cleaned := market.CleanSymbol(line)
	if len(cleaned) < MinTickerLen || len(cleaned) > MaxTickerLen {
		return ""
	}
	return cleaned
}

// PairTickers scans text lines with a single forward cursor. Whenever the
// line after the cursor is ticker-shaped, the cursor line becomes its name
// and both are consumed; otherwise the cursor line is dropped.
func PairTickers(lines []string) []Pair {
	var pairs []Pair
	for i := 0; i < len(lines); {
		if i+1 < len(lines) {
			if ticker := CleanTicker(lines[i+1]); ticker != "" {
				pairs = append(pairs, Pair{Name: lines[i], Ticker: ticker})
				i += 2
				continue
			}
		}
		i++
	}
	return pairs
}

// ExtractPage zips the k-th pair with the k-th financial tuple. Surplus
// entries on either side are dropped. Alignment is positional only.
func ExtractPage(lines []string) []market.FuturesRow {
	tuples, text := ClassifyLines(lines)
	pairs := PairTickers(text)

	n := len(pairs)
	if len(tuples) < n {
		n = len(tuples)
	}
	if len(pairs) != len(tuples) {
		log.Debug().
			Int("pairs", len(pairs)).
			Int("financial_rows", len(tuples)).
			Msg("Futures page pair/row count mismatch, zipping shortest")
	}

	rows := make([]market.FuturesRow, 0, n)
	for k := 0; k < n; k++ {
		p, f := pairs[k], tuples[k]
		ticker := CleanTicker(p.Ticker)
		if ticker == "" {
			continue
		}
		rows = append(rows, market.FuturesRow{
			Ticker:             ticker,
			Name:               p.Name,
			MarketCapRaw:       f.MarketCap,
			VolumeRaw:          f.Volume,
			VTMR:               f.VTMR,
			OpenInterestChange: f.OpenInterest,
			FundingRate:        f.Funding,
			OISS:               OISSLabel(f.OpenInterest),
			Funding:            FundingLabel(f.Funding),
		})
	}
	return rows
}

// Extract runs ExtractPage over every page and concatenates the rows.
func Extract(pages [][]string) []market.FuturesRow {
	var rows []market.FuturesRow
	for i, page := range pages {
		pageRows := ExtractPage(page)
		log.Debug().Int("page", i+1).Int("rows", len(pageRows)).Msg("Futures page extracted")
		rows = append(rows, pageRows...)
	}

	out := rows[:0]
	for _, r := range rows {
		if len(market.CleanSymbol(r.Ticker)) > 1 {
			out = append(out, r)
		}
	}
	return out
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, k := range ignoreKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func stripAmount(s string) string {
	return strings.NewReplacer("$", "", ",", "").Replace(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
