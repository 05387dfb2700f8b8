package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Exponents outside ±maxExponent are rejected before any arithmetic.
const maxExponent = 16

// MaxValue is the largest magnitude accepted for a dimension or quantity.
var MaxValue = decimal.New(1, 9)

// ParseNumber coerces a form value into a decimal. Blank or non-numeric
// input yields zero with ok set. Values whose exponent or magnitude is out
// of range yield zero with ok unset.
func ParseNumber(raw string) (d decimal.Decimal, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, true
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, false
	}
	if d.Abs().GreaterThan(MaxValue) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseDimension coerces a form value into a decimal. Blank, non-numeric
// and out-of-range input yields zero, which the calculator then reports as
// invalid.
func ParseDimension(raw string) decimal.Decimal {
	d, _ := ParseNumber(raw)
	return d
}
