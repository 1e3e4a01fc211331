// Package spotinput reads a spot scan table exported as CSV or HTML back
// into verified tokens for cross-market analysis.
package spotinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/domain/market"
)

var (
	ErrNoTickerColumn    = errors.New("no ticker column")
	ErrUnsupportedFormat = errors.New("unsupported spot file format")
)

// Format selects the table parser.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
)

// DefaultLargeCapUSD is the large-cap boundary used by the package-level
// helpers.
const DefaultLargeCapUSD = 1_000_000_000

// Canonical column keys
const (
	colTicker = "ticker"
	colVTMR   = "vtmr"
	colMC     = "mc"
	colVol    = "vol"
)

var columnAliases = map[string]string{
	"ticker":            colTicker,
	"symbol":            colTicker,
	"token":             colTicker,
	"coin":              colTicker,
	"vtmr":              colVTMR,
	"spot_vtmr":         colVTMR,
	"flipping_multiple": colVTMR,
	"market_cap":        colMC,
	"marketcap":         colMC,
	"spot_market_cap":   colMC,
	"volume_24h":        colVol,
	"volume":            colVol,
	"spot_volume":       colVol,
}

// fuzzyTicker picks a ticker column by substring when no alias matched.
var fuzzyTicker = []string{"sym", "tick", "tok", "coin"}

// Loader converts spot tables into tokens.
type Loader struct {
	LargeCapUSD float64
}

// Load parses r with the default large-cap boundary.
func Load(r io.Reader, format Format) ([]market.VerifiedToken, error) {
	return Loader{LargeCapUSD: DefaultLargeCapUSD}.Load(r, format)
}

// LoadFile parses path with the default large-cap boundary.
func LoadFile(path string) ([]market.VerifiedToken, error) {
	return Loader{LargeCapUSD: DefaultLargeCapUSD}.LoadFile(path)
}

// FormatFor infers the format from a file extension. Anything that is not
// HTML is read as CSV.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatCSV
	}
}

func (l Loader) LoadFile(path string) ([]market.VerifiedToken, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spot file: %w", err)
	}
	defer f.Close()

	tokens, err := l.Load(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return tokens, nil
}

// Load reads the table and maps its columns. Rows without a usable ticker
// are skipped; later duplicates of a ticker are ignored. VTMR is computed from
// market cap and volume; the VTMR column is used only for rows without a
// market cap.
func (l Loader) Load(r io.Reader, format Format) ([]market.VerifiedToken, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatHTML:
		records, err = readHTMLTable(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	var (
		tokens []market.VerifiedToken
		seen   = make(map[string]struct{})
	)
	for _, rec := range records[1:] {
		ticker := market.CleanSymbol(cell(rec, cols[colTicker]))
		if ticker == "" {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}

		mc, _ := market.ParseAmount(cell(rec, cols[colMC]))
		vol, _ := market.ParseAmount(cell(rec, cols[colVol]))

		tok := market.NewVerifiedToken(ticker, mc, vol, 1, l.LargeCapUSD)
		// the printed ratio is rounded, so it only fills in when there is no market cap
		if mc <= 0 {
			if v, err := market.ParseRatio(cell(rec, cols[colVTMR])); err == nil {
				tok.VTMR = v
			}
		}
		tokens = append(tokens, tok)
	}

	log.Debug().Int("rows", len(records)-1).Int("tokens", len(tokens)).Msg("Spot table loaded")
	return tokens, nil
}

// NormalizeColumn lowercases a header and joins words with underscores.
func NormalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// mapColumns returns canonical key -> column index; absent keys map to -1.
func mapColumns(header []string) (map[string]int, error) {
	cols := map[string]int{colTicker: -1, colVTMR: -1, colMC: -1, colVol: -1}
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeColumn(h)
		if key, ok := columnAliases[normalized[i]]; ok && cols[key] == -1 {
			cols[key] = i
		}
	}

	if cols[colTicker] == -1 {
	fuzzy:
		for i, name := range normalized {
			for _, frag := range fuzzyTicker {
				if strings.Contains(name, frag) {
					cols[colTicker] = i
					break fuzzy
				}
			}
		}
	}
	if cols[colTicker] == -1 {
		return nil, fmt.Errorf("%w in header %v", ErrNoTickerColumn, header)
	}
	return cols, nil
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	return records, nil
}
