// numeric.go - Locale-ambiguous number parsing for OCR'd price and quantity tokens

package numeric

import (
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Tokens stripped before any digit handling. Currency symbols and the
// filler words invoices tend to glue onto amounts, in several scripts.
var stripTokens = []string{
	"$", "€", "£", "¥", "₹",
	"rp.", "rp", "rs.", "rs", "р.", "руб", "idr", "usd", "eur",
	"total", "price", "harga", "jumlah",
}

var (
	reThousandSuffix = regexp.MustCompile(`(?i)^([\d.,\s']+)\s*(k|thousand)$`)
	reMillionSuffix  = regexp.MustCompile(`(?i)^([\d.,\s']+)\s*(m|million)$`)
	reKeep           = regexp.MustCompile(`[^\d.,\s']`)
)

// ParseFloat parses a free-text numeric token into a float64. On any
// failure the caller's default is returned and the original token logged.
func ParseFloat(text string, def float64) float64 {
	v, ok := parse(text)
	if !ok {
		if strings.TrimSpace(text) != "" {
			log.Printf("numeric: failed to parse %q, using default %v", text, def)
		}
		return def
	}
	return v
}

// ParseInt parses a free-text numeric token into an int, truncating any
// decimal part. On failure the default is returned.
func ParseInt(text string, def int) int {
	v, ok := parse(text)
	if !ok {
		if strings.TrimSpace(text) != "" {
			log.Printf("numeric: failed to parse %q, using default %d", text, def)
		}
		return def
	}
	return int(math.Trunc(v))
}

// parse is the deterministic, side-effect-free core. It resolves the
// decimal/thousands separator ambiguity of tokens like "1.234,56",
// "1,234.56", "10 000" and "Rp 10.000".
func parse(text string) (float64, bool) {
	s := strings.TrimSpace(strings.ToLower(text))
	if s == "" {
		return 0, false
	}

	for _, tok := range stripTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.TrimSpace(s)

	// Magnitude suffixes apply before separator cleanup: "10k" -> 10000,
	// "1.2m" -> 1200000.
	multiplier := 1.0
	if m := reThousandSuffix.FindStringSubmatch(s); m != nil {
		s = m[1]
		multiplier = 1_000
	} else if m := reMillionSuffix.FindStringSubmatch(s); m != nil {
		s = m[1]
		multiplier = 1_000_000
	}

	// Keep digits and the three candidate separators only.
	s = reKeep.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		// The separator appearing last is the decimal one.
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case hasComma:
		s = resolveSingleSeparator(s, ",")
	case hasDot:
		s = resolveSingleSeparator(s, ".")
	}

	// Whatever remains of spaces and apostrophes is thousands grouping.
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * multiplier, true
}

// resolveSingleSeparator decides whether a lone separator type is decimal
// or thousands grouping. A trailing fragment of at most two digits reads
// as decimal ("3,5" / "1234.56"); anything longer is grouping ("10.000").
func resolveSingleSeparator(s, sep string) string {
	last := strings.LastIndex(s, sep)
	frac := s[last+len(sep):]
	if len(frac) <= 2 && strings.Count(s, sep) == 1 {
		if sep == "," {
			return strings.Replace(s, ",", ".", 1)
		}
		return s
	}
	return strings.ReplaceAll(s, sep, "")
}
