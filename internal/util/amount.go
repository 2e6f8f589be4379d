package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	amountPattern = regexp.MustCompile(`[+-]?\d[\d\s.,']*`)
	thousandsDot  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComa = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

// ParseLeadingFloat reads the numeric prefix of s after trimming whitespace,
// so "8", " 8.5 " and "8%" all parse. It reports false when s does not start
// with a number.
func ParseLeadingFloat(s string) (float64, bool) {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseAmount extracts the first money-looking number from a free-text cell,
// accepting both "1.234,56" and "1,234.56" grouping styles.
func ParseAmount(input string) (float64, bool) {
	line := strings.ReplaceAll(input, " ", " ")
	token := strings.TrimSpace(amountPattern.FindString(line))
	if token == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(token), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func normalizeNumericToken(token string) string {
	compact := strings.NewReplacer(" ", "", "'", "").Replace(token)
	compact = strings.TrimRight(compact, ".,")
	if thousandsDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if thousandsComa.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	lastDot := strings.LastIndex(compact, ".")
	lastComma := strings.LastIndex(compact, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		// 1.234,56
		compact = strings.ReplaceAll(compact, ".", "")
		return strings.ReplaceAll(compact, ",", ".")
	case lastDot >= 0 && lastComma >= 0:
		// 1,234.56
		return strings.ReplaceAll(compact, ",", "")
	case lastComma >= 0:
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
