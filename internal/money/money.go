// Package money parses and formats the Argentine-locale currency strings
// the portal returns.
package money

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonMoneyRunes = regexp.MustCompile(`[^\d,.\-]+`)

// ParseARS converts a portal-formatted Argentine monetary string, e.g.
// "$ 20.115.680,0000", into a float64. Thousands are separated by ".",
// decimals by ",". Returns (0, false) for empty, "null", or unparseable
// input rather than inventing a zero value the caller might mistake for
// a real amount.
func ParseARS(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, false
	}

	s = nonMoneyRunes.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatARS renders value in the portal's display style, e.g.
// "$ 20.115.680,0000". It is not guaranteed byte-identical to what the
// portal itself would show; it exists for UI/export display.
func FormatARS(value float64, decimals int) string {
	s := strconv.FormatFloat(value, 'f', decimals, 64)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}

	grouped := groupThousands(intPart)

	var b strings.Builder
	b.WriteString("$ ")
	if neg {
		b.WriteString("-")
	}
	b.WriteString(grouped)
	if fracPart != "" {
		b.WriteString(",")
		b.WriteString(fracPart)
	}
	return b.String()
}

func groupThousands(intPart string) string {
	if len(intPart) <= 3 {
		return intPart
	}
	var parts []string
	for len(intPart) > 3 {
		parts = append([]string{intPart[len(intPart)-3:]}, parts...)
		intPart = intPart[:len(intPart)-3]
	}
	parts = append([]string{intPart}, parts...)
	return strings.Join(parts, ".")
}

// ParseFraction parses a margin string such as "0,0050" as a fraction.
// Unlike ParseARS it never groups thousands (margins are small
// fractions, not large sums), but it shares the comma-decimal locale.
func ParseFraction(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("empty margin string")
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing margin %q: %w", text, err)
	}
	return v, nil
}
