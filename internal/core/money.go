// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents so that sums are exact; decimal text is
// converted at the edges with shopspring/decimal.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents bounds every parsed amount. It sits far below MaxInt64 so
// that budget and expense arithmetic has headroom before it can overflow.
const MaxAmountCents = 1_000_000_000_000_000

var maxMoney = decimal.New(MaxAmountCents, -2)

// maxIntegerDigits is the integer digit count above which a value exceeds
// maxMoney whatever its coefficient.
const maxIntegerDigits = 14

// ParseMoney converts a decimal string to Money rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, a leading
// sign and exponent notation. Half-way values round away from zero. NaN,
// infinities and values above MaxAmountCents are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> {1234}, nil
//	ParseMoney("12,345") -> {1235}, nil
//	ParseMoney("-5")     -> {-500}, nil
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to cents.
//
// The magnitude is checked from the coefficient length and exponent before
// rounding: values like 1e-999999999 would otherwise build a 10^|exp| big.Int.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsZero() {
		return Money{}, nil
	}
	// |d| < 10^magnitude
	magnitude := int64(d.NumDigits()) + int64(d.Exponent())
	if magnitude > maxIntegerDigits {
		return Money{}, ErrInvalidAmount
	}
	if magnitude < -2 {
		// below 0.001, rounds to zero
		return Money{}, nil
	}

	d = d.Round(2)
	if d.Abs().GreaterThan(maxMoney) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount without trailing zeros, e.g. "500" or "12.5".
func (m Money) String() string {
	return m.Decimal().String()
}

// Sub returns m - o, or ErrAmountOverflow when the result does not fit in
// int64 cents.
func (m Money) Sub(o Money) (Money, error) {
	if (o.Cents > 0 && m.Cents < math.MinInt64+o.Cents) ||
		(o.Cents < 0 && m.Cents > math.MaxInt64+o.Cents) {
		return Money{}, ErrAmountOverflow
	}
	return Money{Cents: m.Cents - o.Cents}, nil
}
