// Package core holds the ledger domain: entry validation, balance
// computation and the transaction view logic. Everything here is pure;
// persistence and presentation live elsewhere.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimalToCents converts a decimal string to integer cents.
//
// It accepts both dot (12.34) and comma (12,34) separators and rounds
// half-up on the third decimal place. Only strictly positive amounts are
// accepted; signs, zero and malformed input return ErrInvalidAmount.
// All ledger arithmetic happens on cents, never on floats.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() {
		return 0, ErrInvalidAmount
	}
	v := cents.IntPart()
	if !cents.Equal(decimal.NewFromInt(v)) {
		// IntPart truncated, the value exceeds int64
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// Euros returns the euro value as a float64 for display purposes only.
func (m Money) Euros() float64 {
	return float64(m.Cents) / 100.0
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
