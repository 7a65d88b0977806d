// Package money provides the exact-decimal arithmetic primitives used
// throughout the billing engine (spec.md C1).
//
// Two scales are modeled as distinct types so a caller cannot silently
// mix them: Amount is scale-2 (settlement money — invoice totals, line
// items, payments, refunds) and Rate is scale-8 (per-unit prices, tax
// rates, exchange rates). Both are backed by shopspring/decimal and
// never touch float64 — values are built only from decimal strings
// (NewAmount, NewRate and their Must variants), from integer minor
// units (NewAmountFromInt), or as zero (ZeroAmount, ZeroRate).
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the fixed scale for settlement amounts.
	AmountScale = 2
	// RateScale is the fixed scale for per-unit prices and rates.
	RateScale = 8
)

// Amount is an exact decimal monetary value at scale 2, tagged with an
// ISO-4217 currency code.
type Amount struct {
	value    decimal.Decimal
	currency string
}

// NewAmount builds an Amount from a decimal string, rounded half-even to
// scale 2. Returns an error if s is not a valid decimal literal.
func NewAmount(s string, currency string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse amount %q: %w", s, err)
	}
	return Amount{value: d.RoundBank(AmountScale), currency: normalizeCurrency(currency)}, nil
}

// MustAmount is like NewAmount but panics on error. Use for literals in
// tests and fixtures, never for untrusted input.
func MustAmount(s string, currency string) Amount {
	a, err := NewAmount(s, currency)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAmountFromInt builds an Amount from an integer number of minor
// units (e.g. cents) — the shape gateways speak in.
func NewAmountFromInt(minorUnits int64, currency string) Amount {
	return Amount{
		value:    decimal.New(minorUnits, -AmountScale),
		currency: normalizeCurrency(currency),
	}
}

// ZeroAmount returns a zero-value Amount in the given currency.
func ZeroAmount(currency string) Amount {
	return Amount{value: decimal.Zero, currency: normalizeCurrency(currency)}
}

// Currency returns the ISO-4217 currency code (uppercase).
func (a Amount) Currency() string { return a.currency }

// Decimal exposes the underlying decimal.Decimal for callers that need
// to interoperate with Rate (e.g. the pricing calculator).
func (a Amount) Decimal() decimal.Decimal { return a.value }

// Add returns a + b. Panics if the currencies differ.
func (a Amount) Add(b Amount) Amount {
	a.assertSameCurrency(b)
	return Amount{value: a.value.Add(b.value).RoundBank(AmountScale), currency: a.currency}
}

// Sub returns a - b. Panics if the currencies differ.
func (a Amount) Sub(b Amount) Amount {
	a.assertSameCurrency(b)
	return Amount{value: a.value.Sub(b.value).RoundBank(AmountScale), currency: a.currency}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{value: a.value.Neg(), currency: a.currency}
}

// Cmp compares a to b, returning -1, 0, or 1. Panics if currencies differ.
func (a Amount) Cmp(b Amount) int {
	a.assertSameCurrency(b)
	return a.value.Cmp(b.value)
}

// AbsDiff returns the absolute value of a - b, used by the §8 tolerance
// invariants (e.g. "|total - ...| <= 0.01").
func (a Amount) AbsDiff(b Amount) Amount {
	a.assertSameCurrency(b)
	return Amount{value: a.value.Sub(b.value).Abs(), currency: a.currency}
}

// LTE reports whether a <= b.
func (a Amount) LTE(b Amount) bool { return a.Cmp(b) <= 0 }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.value.IsZero() }

// IsNegative reports whether the amount is less than zero.
func (a Amount) IsNegative() bool { return a.value.IsNegative() }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.value.IsPositive() }

// String renders the canonical "1234.56" form (no currency symbol, no
// thousands separators) suitable for storage and wire transport.
func (a Amount) String() string {
	return a.value.StringFixed(AmountScale)
}

// MinorUnits returns the amount as an integer count of minor units
// (e.g. paise, cents) for gateway wire calls.
func (a Amount) MinorUnits() int64 {
	return a.value.Shift(AmountScale).Round(0).IntPart()
}

// MarshalJSON implements json.Marshaler, encoding as a decimal string so
// precision survives round-trips through untyped JSON decoders.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	}{Value: a.String(), Currency: a.currency})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var wire struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	parsed, err := NewAmount(wire.Value, wire.Currency)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SumAmounts adds a slice of same-currency amounts. Returns a zero
// amount in the given currency for an empty slice.
func SumAmounts(currency string, amounts ...Amount) Amount {
	total := ZeroAmount(currency)
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func (a Amount) assertSameCurrency(b Amount) {
	if a.currency != b.currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", a.currency, b.currency))
	}
}

func normalizeCurrency(c string) string {
	out := make([]byte, len(c))
	for i := 0; i < len(c); i++ {
		ch := c[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		out[i] = ch
	}
	return string(out)
}
