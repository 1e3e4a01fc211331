package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var suffixMultipliers = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'b': 1e9,
	't': 1e12,
}

// ParseAmount normalises a currency amount such as "$1,200,000", "12.5M"
// or "900k" into a plain float.
func ParseAmount(s string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return 0, fmt.Errorf("empty amount")
	}

	multiplier := 1.0
	last := clean[len(clean)-1]
	if m, ok := suffixMultipliers[lowerASCII(last)]; ok {
		multiplier = m
		clean = clean[:len(clean)-1]
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v * multiplier, nil
}

// ParseRatio parses a VTMR cell such as "1.5x" or "0.75".
func ParseRatio(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimRight(clean, "xX")
	v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	return v, nil
}

// CleanSymbol uppercases s and strips everything outside [A-Z0-9].
func CleanSymbol(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ShortNum renders n with a B/M/K suffix and two decimals.
func ShortNum(n float64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", n/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2fK", n/1e3)
	default:
		return strconv.FormatFloat(math.Round(n), 'f', 0, 64)
	}
}

// Compact renders n with the smallest unit that keeps it under a thousand,
// dropping a trailing ".00".
func Compact(n float64) string {
	if n == 0 || math.IsNaN(n) {
		return "0"
	}
	for _, unit := range []string{"", "K", "M", "B", "T"} {
		if math.Abs(n) < 1000 {
			return strings.Replace(fmt.Sprintf("%.2f%s", n, unit), ".00", "", 1)
		}
		n /= 1000
	}
	return fmt.Sprintf("%.2fP", n)
}

func lowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
