package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rate is an exact decimal value at scale 8, used for per-unit prices,
// tax rates, and exchange rates (spec.md C1, C12).
type Rate struct {
	value decimal.Decimal
}

// NewRate parses a decimal string into a Rate at scale 8.
func NewRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("money: parse rate %q: %w", s, err)
	}
	return Rate{value: d.RoundBank(RateScale)}, nil
}

// MustRate is like NewRate but panics on error. For literals only.
func MustRate(s string) Rate {
	r, err := NewRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ZeroRate returns a zero-valued Rate.
func ZeroRate() Rate { return Rate{value: decimal.Zero} }

// OneRate returns a Rate of exactly 1, the identity for currency
// conversion and the reflexive fx case (spec.md §8).
func OneRate() Rate { return Rate{value: decimal.NewFromInt(1)} }

// Decimal exposes the underlying decimal.Decimal.
func (r Rate) Decimal() decimal.Decimal { return r.value }

// IsZero reports whether the rate is exactly zero.
func (r Rate) IsZero() bool { return r.value.IsZero() }

// IsPositive reports whether the rate is greater than zero.
func (r Rate) IsPositive() bool { return r.value.IsPositive() }

// Mul multiplies the rate by another rate, keeping scale 8 precision
// (used for rate composition, e.g. inverse fx rates).
func (r Rate) Mul(other Rate) Rate {
	return Rate{value: r.value.Mul(other.value).RoundBank(RateScale)}
}

// Add sums two scale-8 values, used to accumulate metered usage
// quantities into a monthly total.
func (r Rate) Add(other Rate) Rate {
	return Rate{value: r.value.Add(other.value).RoundBank(RateScale)}
}

// Cmp compares r to other, returning -1, 0, or 1.
func (r Rate) Cmp(other Rate) int {
	return r.value.Cmp(other.value)
}

// Inverse returns 1/r, used when only the reverse exchange-rate row is
// on file (spec.md §4.12).
func (r Rate) Inverse() (Rate, error) {
	if r.value.IsZero() {
		return Rate{}, fmt.Errorf("money: cannot invert a zero rate")
	}
	return Rate{value: decimal.NewFromInt(1).DivRound(r.value, RateScale+4).RoundBank(RateScale)}, nil
}

// String renders the canonical scale-8 decimal string.
func (r Rate) String() string {
	return r.value.StringFixed(RateScale)
}

// ApplyToQuantity multiplies a scale-8 rate by an integer-ish quantity
// (itself a decimal, since usage totals may be fractional — e.g.
// metered GB-seconds) and narrows the scale-16 product to a scale-2
// Amount using half-even rounding, per spec.md §4.1's explicit
// "multiplying two scale-8 values and narrowing to scale 2 uses
// half-even rounding" rule.
func (r Rate) ApplyToQuantity(quantity decimal.Decimal, currency string) Amount {
	product := r.value.Mul(quantity)
	return Amount{value: product.RoundBank(AmountScale), currency: normalizeCurrency(currency)}
}

// ApplyToAmount multiplies a rate (e.g. a tax rate or an fx rate) by an
// Amount, narrowing the result to scale 2 with half-even rounding.
func (r Rate) ApplyToAmount(a Amount) Amount {
	product := r.value.Mul(a.value)
	return Amount{value: product.RoundBank(AmountScale), currency: a.currency}
}
