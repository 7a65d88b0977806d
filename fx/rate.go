// Package fx implements historical exchange-rate lookup and currency
// conversion (spec.md C12).
package fx

import (
	"time"

	"github.com/invoiceflow/billing/money"
)

// ExchangeRate is one historical rate row. At most one row per
// (Base, Target) pair has EffectiveTo unset — the currently active row.
type ExchangeRate struct {
	Base          string
	Target        string
	Rate          money.Rate // > 0
	EffectiveFrom time.Time
	EffectiveTo   *time.Time // exclusive upper bound; nil means still active
}

// covers reports whether at falls within [EffectiveFrom, EffectiveTo).
func (r ExchangeRate) covers(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || at.Before(*r.EffectiveTo)
}

// Table is an in-memory view over a set of ExchangeRate rows, queried
// by Rate. Store implementations load the rows relevant to a lookup
// (or the whole table) and hand them to Rate.
type Table []ExchangeRate

// Rate returns the conversion rate from -> to at instant at, or false
// if none can be determined. Reflexive: from == to always yields 1
// without consulting the table. Falls back to the inverse row
// (to -> from) as 1/rate when no direct row exists. Never guesses: a
// missing rate is reported, not approximated.
func (t Table) Rate(from, to string, at time.Time) (money.Rate, bool) {
	if from == to {
		return money.OneRate(), true
	}

	if r, ok := t.bestMatch(from, to, at); ok {
		return r.Rate, true
	}

	if inv, ok := t.bestMatch(to, from, at); ok {
		rate, err := inv.Rate.Inverse()
		if err != nil {
			return money.Rate{}, false
		}
		return rate, true
	}

	return money.Rate{}, false
}

// bestMatch picks the covering row for (base, target) with the most
// recent EffectiveFrom.
func (t Table) bestMatch(base, target string, at time.Time) (ExchangeRate, bool) {
	var best ExchangeRate
	found := false
	for _, r := range t {
		if r.Base != base || r.Target != target || !r.covers(at) {
			continue
		}
		if !found || r.EffectiveFrom.After(best.EffectiveFrom) {
			best, found = r, true
		}
	}
	return best, found
}

// Convert converts amount into targetCurrency using the rate in effect
// at "at". Returns an error (via the bool) rather than guessing when no
// rate is on file — callers must refuse the conversion.
func Convert(t Table, amount money.Amount, targetCurrency string, at time.Time) (money.Amount, bool) {
	rate, ok := t.Rate(amount.Currency(), targetCurrency, at)
	if !ok {
		return money.Amount{}, false
	}
	converted := rate.ApplyToQuantity(amount.Decimal(), targetCurrency)
	return converted, true
}
