package pricing

import (
	"fmt"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/usage"
)

// LineItem is one resolved charge in a CalculatedInvoice.
type LineItem struct {
	ProjectID   id.ProjectID
	Description string
	Metric      string
	Unit        string
	Quantity    money.Rate
	UnitPrice   money.Rate
	Total       money.Amount
}

// CalculatedInvoice is the pure output of Calculate: everything
// invoice.Generate needs to persist a draft invoice, with no I/O of its
// own (spec.md §4.6).
type CalculatedInvoice struct {
	OrgID             id.OrgID
	Month             int
	Year              int
	Currency          string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	DueDate           time.Time
	Subtotal          money.Amount // sum of resolved line items, before any minimum-charge top-up
	EffectiveSubtotal money.Amount // Subtotal, raised to the minimum charge if applicable
	Tax               money.Amount
	Discount          money.Amount // reserved, always zero
	Total             money.Amount
	LineItems         []LineItem
	// Dropped holds the aggregate keys for which no applicable pricing
	// rule was found; the caller must report these rather than silently
	// losing usage.
	Dropped []usage.AggregateKey
}

// Calculate is the pure (aggregates, rules, minimum-rules, config,
// month, year) -> CalculatedInvoice transformation. It performs no I/O.
func Calculate(orgID id.OrgID, aggregates []usage.Aggregate, rules []Rule, minRules []MinimumChargeRule, cfg Config, month, year int) (CalculatedInvoice, error) {
	periodStart, periodEnd, err := billingPeriod(month, year)
	if err != nil {
		return CalculatedInvoice{}, err
	}

	out := CalculatedInvoice{
		OrgID:       orgID,
		Month:       month,
		Year:        year,
		Currency:    cfg.Currency,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}

	for _, agg := range aggregates {
		rule, ok := resolveRule(rules, orgID, agg.Metric, agg.Unit, periodStart)
		if !ok {
			out.Dropped = append(out.Dropped, agg.Key())
			continue
		}
		total := rule.PricePerUnit.ApplyToQuantity(agg.TotalValue.Decimal(), cfg.Currency)
		out.LineItems = append(out.LineItems, LineItem{
			ProjectID:   agg.ProjectID,
			Description: fmt.Sprintf("%s usage", agg.Metric),
			Metric:      agg.Metric,
			Unit:        agg.Unit,
			Quantity:    agg.TotalValue,
			UnitPrice:   rule.PricePerUnit,
			Total:       total,
		})
	}

	out.Subtotal = sumLineItems(cfg.Currency, out.LineItems)
	out.EffectiveSubtotal = out.Subtotal

	if cfg.MinChargeEnabled {
		minAmount, ok := resolveMinCharge(minRules, cfg, orgID, periodStart)
		if ok && out.Subtotal.Cmp(minAmount) < 0 {
			deficit := minAmount.Sub(out.Subtotal)
			out.LineItems = append(out.LineItems, LineItem{
				Description: "Minimum Monthly Charge",
				Total:       deficit,
			})
			out.EffectiveSubtotal = minAmount
		}
	}

	out.Discount = money.ZeroAmount(cfg.Currency)
	out.Tax = cfg.TaxRate.ApplyToAmount(out.EffectiveSubtotal)
	out.Total = out.EffectiveSubtotal.Add(out.Tax).Sub(out.Discount)
	out.DueDate = periodEnd.AddDate(0, 0, cfg.PaymentTermsDays)

	return out, nil
}

// BillingPeriod returns [first moment of month, last moment of month]
// inclusive, in UTC. Exported so callers (invoice generation) can
// derive the billing-period-start needed for historical fx lookups
// before calling Calculate.
func BillingPeriod(month, year int) (start, end time.Time, err error) {
	return billingPeriod(month, year)
}

// billingPeriod returns [first moment of month, last moment of month]
// inclusive, in UTC.
func billingPeriod(month, year int) (start, end time.Time, err error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("pricing: invalid month %d", month)
	}
	if year < 2020 {
		return time.Time{}, time.Time{}, fmt.Errorf("pricing: invalid year %d", year)
	}
	start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end, nil
}

// resolveRule picks the applicable Rule for (metric, unit) at instant
// t: active, matching, covering t; org-specific wins over global; among
// remaining ties, the most recent EffectiveFrom wins.
func resolveRule(rules []Rule, orgID id.OrgID, metric, unit string, t time.Time) (Rule, bool) {
	var best Rule
	found := false
	for _, r := range rules {
		if !r.Active || r.Metric != metric || r.Unit != unit || !r.Covers(t) {
			continue
		}
		if !r.Global() && !r.OrgID.Equal(orgID) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		if betterRule(r, best, orgID) {
			best = r
		}
	}
	return best, found
}

// betterRule reports whether candidate should replace current as the
// resolved rule: org-specific beats global, then most recent
// EffectiveFrom wins.
func betterRule(candidate, current Rule, orgID id.OrgID) bool {
	candidateSpecific := !candidate.Global()
	currentSpecific := !current.Global()
	if candidateSpecific != currentSpecific {
		return candidateSpecific
	}
	return candidate.EffectiveFrom.After(current.EffectiveFrom)
}

func resolveMinCharge(rules []MinimumChargeRule, cfg Config, orgID id.OrgID, t time.Time) (money.Amount, bool) {
	var best MinimumChargeRule
	found := false
	for _, r := range rules {
		if !r.Active || !r.Covers(t) {
			continue
		}
		if !r.Global() && !r.OrgID.Equal(orgID) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		candidateSpecific, currentSpecific := !r.Global(), !best.Global()
		if candidateSpecific != currentSpecific {
			if candidateSpecific {
				best = r
			}
			continue
		}
		if r.EffectiveFrom.After(best.EffectiveFrom) {
			best = r
		}
	}
	if found {
		return best.Amount, true
	}
	if cfg.MinChargeAmount != nil {
		return *cfg.MinChargeAmount, true
	}
	return money.Amount{}, false
}

func sumLineItems(currency string, items []LineItem) money.Amount {
	total := money.ZeroAmount(currency)
	for _, li := range items {
		total = total.Add(li.Total)
	}
	return total
}
