// Package pricing implements the org-scoped pricing/minimum-charge rule
// model and the pure billing calculator (spec.md C6).
package pricing

import (
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/types"
)

// Rule is a per-(metric, unit) unit price. OrgID is nil for a global
// rule; an org-specific rule shadows a global rule with the same
// metric and unit. Two active rules for the same (org, metric, unit)
// must not temporally overlap.
type Rule struct {
	types.Entity
	ID             id.PricingRuleID  `json:"id"`
	OrgID          *id.OrgID         `json:"org_id,omitempty"`
	Metric         string            `json:"metric"`
	Unit           string            `json:"unit"`
	PricePerUnit   money.Rate        `json:"price_per_unit"`
	Currency       string            `json:"currency"`
	EffectiveFrom  time.Time         `json:"effective_from"`
	EffectiveTo    *time.Time        `json:"effective_to,omitempty"`
	Active         bool              `json:"active"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Global reports whether this is a global (org-independent) rule.
func (r Rule) Global() bool { return r.OrgID == nil }

// Covers reports whether t falls within [EffectiveFrom, EffectiveTo].
// An unset EffectiveTo means the rule has no upper bound.
func (r Rule) Covers(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || !t.After(*r.EffectiveTo)
}

// MinimumChargeRule sets a floor on a monthly invoice's subtotal. Same
// org-specific-shadows-global resolution as Rule.
type MinimumChargeRule struct {
	types.Entity
	ID            id.MinChargeRuleID `json:"id"`
	OrgID         *id.OrgID          `json:"org_id,omitempty"`
	Amount        money.Amount       `json:"amount"`
	EffectiveFrom time.Time          `json:"effective_from"`
	EffectiveTo   *time.Time         `json:"effective_to,omitempty"`
	Active        bool               `json:"active"`
	Description   string             `json:"description"`
}

func (r MinimumChargeRule) Global() bool { return r.OrgID == nil }

func (r MinimumChargeRule) Covers(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || !t.After(*r.EffectiveTo)
}

// BillingCycle is how often an org is invoiced.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Config is an org's billing configuration.
type Config struct {
	OrgID              id.OrgID     `json:"org_id"`
	TaxRate            money.Rate   `json:"tax_rate"` // in [0, 1]
	Currency           string       `json:"currency"`
	Cycle              BillingCycle `json:"cycle"`
	PaymentTermsDays   int          `json:"payment_terms_days"` // > 0
	MinChargeEnabled   bool         `json:"min_charge_enabled"`
	MinChargeAmount    *money.Amount `json:"min_charge_amount,omitempty"`
}
