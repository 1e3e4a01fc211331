package futures

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder is shown when a signal cannot be derived.
const Placeholder = "-"

// OIScore grades an open-interest change given as a fraction (0.15 = 15%).
func OIScore(change float64) (int, string) {
	switch {
	case change > 0.20:
		return 5, "Strong"
	case change > 0.10:
		return 4, "Bullish"
	case change > 0.00:
		return 3, "Build-Up"
	case change > -0.10:
		return 2, "Weakening"
	case change > -0.20:
		return 1, "Exiting"
	default:
		return 0, "Exiting"
	}
}

// FundingSignal labels a funding rate given as a raw percentage number.
func FundingSignal(value float64) string {
	switch {
	case value >= 0.05:
		return "Greed"
	case value > 0:
		return "Bullish"
	case value <= -0.05:
		return "Extreme Fear"
	case value < 0:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// OISSLabel renders an open-interest percentage such as "+15%" as
// "+15% Strong". Missing or unparseable input yields Placeholder.
func OISSLabel(raw string) string {
	if isPlaceholder(raw) {
		return Placeholder
	}
	v, err := parsePercent(raw)
	if err != nil {
		return Placeholder
	}

	change := v / 100
	_, signal := OIScore(change)
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.0f%% %s", sign, change*100, signal)
}

// FundingLabel renders a funding percentage such as "0.01%" as
// "0.01% Bullish". Input that does not parse is returned unchanged.
func FundingLabel(raw string) string {
	if isPlaceholder(raw) {
		return Placeholder
	}
	v, err := parsePercent(raw)
	if err != nil {
		return raw
	}
	return formatPercent(v) + "% " + FundingSignal(v)
}

func isPlaceholder(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || s == "-" || s == "–" || s == "—" || strings.EqualFold(s, "N/A")
}

func parsePercent(raw string) (float64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

// formatPercent prints the shortest exact form, keeping one decimal for
// whole numbers ("1.0", "0.01").
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
