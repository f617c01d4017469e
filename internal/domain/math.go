package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a non-negative integer amount of token base units.
func ParseAmount(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative", value)
	}
	if !IsWhole(d) {
		return decimal.Zero, fmt.Errorf("amount %q is not an integer", value)
	}
	return d, nil
}

// IsWhole reports whether d has no fractional part.
func IsWhole(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

// MulDivFloor returns floor(a * b / c) for non-negative operands.
// A zero divisor yields zero.
func MulDivFloor(a, b, c decimal.Decimal) decimal.Decimal {
	if c.IsZero() {
		return decimal.Zero
	}
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// PercentOf returns floor(a * pct / 100).
func PercentOf(a decimal.Decimal, pct uint8) decimal.Decimal {
	return MulDivFloor(a, decimal.NewFromInt(int64(pct)), hundred)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
