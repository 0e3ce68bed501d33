package core

import (
	"strconv"
	"strings"
)

// ParseDecimal parses a monetary value that may use Brazilian formatting:
// "1.234,56" and "100,00" as well as plain "1234.56". It reports false
// for empty or unparseable input.
func ParseDecimal(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ",") {
		// Comma is the decimal separator; dots are thousands separators.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
