// Package money implements the fixed-point arithmetic used for every currency
// value: amounts are decimals carried at two fractional digits.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/xenking/storefront/internal/domain/validation"
)

const (
	// Places is the number of fractional digits kept for currency values.
	Places = 2
	// IntegerDigits is the number of integer digits a stored amount may have.
	IntegerDigits = 10

	// maxExponent bounds the decimal exponent accepted from input, so a short
	// literal like 1e100000000 is never expanded.
	maxExponent = 32
)

var (
	// Zero is 0.00.
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
	// limit is the smallest magnitude that no longer fits IntegerDigits.
	limit = decimal.New(1, IntegerDigits)
)

// Round rounds d half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Add returns round(a + b).
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Add(b))
}

// Sub returns round(a - b).
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Sub(b))
}

// MulQty returns round(price * qty), the line total of an order item.
func MulQty(price decimal.Decimal, qty int) decimal.Decimal {
	return Round(price.Mul(decimal.NewFromInt(int64(qty))))
}

// Percent returns round(base * pct / 100).
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(pct).Div(hundred))
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Format renders d with exactly two fractional digits, e.g. "100.00".
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Parse reads a decimal string and rounds it to two places. Malformed or
// out of range input is reported as a validation error for field.
func Parse(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, validation.Errorf(field, "not a decimal number: %q", s)
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Decimal{}, validation.Errorf(field, "out of range: %q", s)
	}
	d = Round(d)
	if err := CheckRange(field, d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// CheckRange reports a validation error for field when d has more than
// IntegerDigits integer digits.
func CheckRange(field string, d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(limit) {
		return validation.Errorf(field, "must have at most %d integer digits", IntegerDigits)
	}
	return nil
}

// ValidateCurrency checks that code is an ISO 4217 currency code and returns
// its canonical form.
func ValidateCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", validation.Errorf("currency", "unknown currency %q", code)
	}
	return unit.String(), nil
}
