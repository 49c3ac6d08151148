// Package money parses and formats currency amounts. Amounts are exact
// base-10 decimals with at most two fractional digits; floats never appear.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every amount.
const Places = 2

// Errors returned by Parse.
var (
	ErrInvalid  = errors.New("invalid amount")
	ErrNegative = errors.New("amount must not be negative")
	ErrTooLarge = errors.New("amount too large")
)

// Max is the largest amount storage holds (NUMERIC(12,2)).
var Max = decimal.RequireFromString("9999999999.99")

var amountPattern = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)

// Parse reads a user-entered amount such as "12", "12.3", "$12.34".
// Exponents, thousands separators and more than two fractional digits are
// rejected rather than rounded. Amounts beyond Max return ErrTooLarge.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if !amountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if d.Abs().GreaterThan(Max) {
		return decimal.Zero, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, Format(d), Format(Max))
	}
	return d, nil
}

// ParseNonNegative is Parse for prices that may be zero but not below.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegative
	}
	return d, nil
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Cent is the smallest bid increment.
var Cent = decimal.New(1, -Places)
