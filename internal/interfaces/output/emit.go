// Package output writes scan results as JSON and CSV files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sawpanic/cryptovat/internal/domain/market"
)

// Table headers
var (
	SpotHeaders     = []string{"Rank", "Ticker", "Market Cap", "Volume 24h", "Spot VTMR", "Sources", "Large Cap"}
	MatchedHeaders  = []string{"Ticker", "Spot Market Cap", "Spot Volume", "Spot VTMR", "Futures Volume", "Futures VTMR", "OISS", "Funding"}
	FuturesHeaders  = []string{"Token", "Market Cap", "Volume", "VTMR", "OISS", "Funding"}
	SpotOnlyHeaders = []string{"Ticker", "Market Cap", "Volume", "Spot VTMR"}
)

// Partition file names, relative to the output directory
const (
	MatchedFile     = "both_markets.csv"
	FuturesOnlyFile = "futures_only.csv"
	SpotOnlyFile    = "spot_only.csv"
)

type Emitter struct {
	dir string
}

// NewEmitter writes into dir, creating it on first use.
func NewEmitter(dir string) *Emitter {
	return &Emitter{dir: dir}
}

// Path returns name joined to the output directory.
func (e *Emitter) Path(name string) string {
	return filepath.Join(e.dir, name)
}

// EmitJSON writes v as indented JSON to name.
func (e *Emitter) EmitJSON(name string, v interface{}) (string, error) {
	path := e.Path(name)
	err := WriteFileAtomic(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	})
	return path, err
}

// EmitSpotCSV writes the verified token table to name.
func (e *Emitter) EmitSpotCSV(name string, tokens []market.VerifiedToken) (string, error) {
	path := e.Path(name)
	return path, WriteFileAtomic(path, func(w io.Writer) error {
		return WriteSpotCSV(w, tokens)
	})
}

// EmitPartitionCSV writes the three cross-market tables and returns their
// paths.
func (e *Emitter) EmitPartitionCSV(p market.Partition) ([]string, error) {
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{MatchedFile, func(w io.Writer) error { return WriteMatchedCSV(w, p.BothMarkets) }},
		{FuturesOnlyFile, func(w io.Writer) error { return WriteFuturesCSV(w, p.FuturesOnly) }},
		{SpotOnlyFile, func(w io.Writer) error { return WriteSpotOnlyCSV(w, p.SpotOnly) }},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := e.Path(f.name)
		if err := WriteFileAtomic(path, f.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func WriteSpotCSV(w io.Writer, tokens []market.VerifiedToken) error {
	return writeCSV(w, SpotHeaders, len(tokens), func(i int) []string {
		t := tokens[i]
		return []string{
			"#" + strconv.Itoa(i+1),
			t.Symbol,
			money(t.MarketCap),
			money(t.Volume24h),
			ratio(t.VTMR),
			strconv.Itoa(t.SourceCount),
			yesNo(t.IsLargeCap),
		}
	})
}

func WriteMatchedCSV(w io.Writer, rows []market.MatchedRow) error {
	return writeCSV(w, MatchedHeaders, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.Ticker,
			money(r.Spot.MarketCap),
			money(r.Spot.Volume24h),
			ratio(r.Spot.VTMR),
			rawMoney(r.Futures.VolumeRaw),
			ratio(r.Futures.VTMR),
			r.Futures.OISS,
			r.Futures.Funding,
		}
	})
}

func WriteFuturesCSV(w io.Writer, rows []market.FuturesRow) error {
	return writeCSV(w, FuturesHeaders, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.Ticker,
			rawMoney(r.MarketCapRaw),
			rawMoney(r.VolumeRaw),
			ratio(r.VTMR),
			r.OISS,
			r.Funding,
		}
	})
}

func WriteSpotOnlyCSV(w io.Writer, tokens []market.VerifiedToken) error {
	return writeCSV(w, SpotOnlyHeaders, len(tokens), func(i int) []string {
		t := tokens[i]
		return []string{t.Symbol, money(t.MarketCap), money(t.Volume24h), ratio(t.VTMR)}
	})
}

func writeCSV(w io.Writer, header []string, n int, record func(i int) []string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(record(i)); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFileAtomic writes through a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

func money(v float64) string { return "$" + market.ShortNum(v) }

func rawMoney(raw string) string {
	if raw == "" {
		return "-"
	}
	return "$" + raw
}

func ratio(v float64) string { return fmt.Sprintf("%.1fx", v) }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
