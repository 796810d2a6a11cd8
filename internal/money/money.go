// Package money converts between the integer minor-unit amounts stored by
// the ledger and the decimal strings used on the wire. Amounts crossing the
// API boundary are never represented as binary floating point.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ParseCents converts a decimal string such as "25.00" into cents. It
// rejects empty input, sub-cent precision, and values outside the int64
// cent range. Sign validation is left to the caller.
func ParseCents(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	if cents.Cmp(decimal.NewFromInt(math.MaxInt64)) > 0 || cents.Cmp(decimal.NewFromInt(math.MinInt64)) < 0 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return cents.IntPart(), nil
}

// FormatCents renders cents as a two-decimal string, e.g. 2500 -> "25.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
