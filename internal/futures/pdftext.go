package futures

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// ReadPDF extracts the text lines of every page, top to bottom. Lines are
// trimmed, whitespace-normalized and never empty. Pages whose text cannot be
// read yield an empty slice so page numbering is preserved.
func ReadPDF(r io.ReaderAt, size int64) (pages [][]string, err error) {
	// the PDF parser panics on some malformed object streams
	defer func() {
		if p := recover(); p != nil {
			pages = nil
			err = fmt.Errorf("malformed PDF: %v", p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	total := reader.NumPage()
	pages = make([][]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, nil)
			continue
		}

		lines, err := pageLines(page)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Failed to read PDF page text")
			pages = append(pages, nil)
			continue
		}
		pages = append(pages, lines)
	}
	return pages, nil
}

// ReadPDFFile opens path and reads it with ReadPDF.
func ReadPDFFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadPDF(f, info.Size())
}

func pageLines(page pdf.Page) ([]string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			return nil, err
		}
		return NormalizeLines(strings.Split(text, "\n")), nil
	}

	raw := make([]string, 0, len(rows))
	for _, row := range rows {
		raw = append(raw, joinRow(row.Content))
	}
	return NormalizeLines(raw), nil
}

// joinRow concatenates text runs left to right, inserting a space where the
// horizontal gap between runs is wider than a fraction of the font size.
func joinRow(texts []pdf.Text) string {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var b strings.Builder
	var prevEnd float64
	for i, t := range sorted {
		if i > 0 {
			gap := t.X - prevEnd
			if gap > 0.2*t.FontSize && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(t.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return b.String()
}

// NormalizeLines trims each line, collapses internal whitespace and drops
// empty lines.
func NormalizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return out
}
