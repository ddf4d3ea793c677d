package utils

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// IsNumericToken reports whether s is a plain number: ASCII digits with at
// most one decimal point, and at least one digit. "1001" and "1001.0" pass;
// "Total", "", "." and "-5" do not.
func IsNumericToken(s string) bool {
	s = strings.Replace(s, ".", "", 1)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsIntegerToken reports whether s is all ASCII digits.
func IsIntegerToken(s string) bool {
	return !strings.Contains(s, ".") && IsNumericToken(s)
}

// NumericKey converts an order id to the integer the stores query by.
// Anything that is not a plain integer maps to 0, and ok reports whether the
// conversion was exact.
func NumericKey(id string) (key int64, ok bool) {
	id = strings.TrimSpace(id)
	if !IsIntegerToken(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseAmount parses a monetary cell. Currency symbols, thousands separators
// and surrounding whitespace are tolerated; a blank cell is an error.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	cleaned = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "").Replace(cleaned)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}
	return decimal.NewFromString(cleaned)
}
