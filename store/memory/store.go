// Package memory composes every domain package's in-process Store
// implementation into one store.Store, for tests, local development,
// and the single-process reference deployment that doesn't need a
// real database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/invoice"
	fxmem "github.com/invoiceflow/billing/fx/memory"
	idempmem "github.com/invoiceflow/billing/idempotency/memory"
	invoicemem "github.com/invoiceflow/billing/invoice/memory"
	orgmem "github.com/invoiceflow/billing/org/memory"
	paymentmem "github.com/invoiceflow/billing/payment/memory"
	"github.com/invoiceflow/billing/pricing"
	reconcilemem "github.com/invoiceflow/billing/reconcile/memory"
	refundmem "github.com/invoiceflow/billing/refund/memory"
	"github.com/invoiceflow/billing/store"
	usagemem "github.com/invoiceflow/billing/usage/memory"
)

// New assembles a store.Store backed entirely by the per-package
// in-process drivers.
func New() *store.Store {
	return &store.Store{
		Orgs:        orgmem.NewOrgStore(),
		Projects:    orgmem.NewProjectStore(),
		Invoices:    invoicemem.New(),
		Rules:       NewRuleSource(),
		Payments:    paymentmem.New(),
		Refunds:     refundmem.New(),
		Usage:       usagemem.NewDurableStore(),
		Idempotency: idempmem.New(),
		FX:          fxmem.New(),
		Reconcile:   reconcilemem.New(),
	}
}

// RuleSource is a map-backed invoice.RuleSource, since the pricing
// package itself carries no persistence concern of its own — only the
// pure calculation it's grounded on in pricing/calculator.go.
type RuleSource struct {
	mu       sync.RWMutex
	rules    []pricing.Rule
	minRules []pricing.MinimumChargeRule
	configs  map[string]pricing.Config
}

var _ invoice.RuleSource = (*RuleSource)(nil)

func NewRuleSource() *RuleSource {
	return &RuleSource{configs: make(map[string]pricing.Config)}
}

func (r *RuleSource) PricingRules(_ context.Context, orgID id.OrgID) ([]pricing.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []pricing.Rule
	for _, rule := range r.rules {
		if rule.OrgID == nil || rule.OrgID.Equal(orgID) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RuleSource) MinimumChargeRules(_ context.Context, orgID id.OrgID) ([]pricing.MinimumChargeRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []pricing.MinimumChargeRule
	for _, rule := range r.minRules {
		if rule.OrgID == nil || rule.OrgID.Equal(orgID) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RuleSource) BillingConfig(_ context.Context, orgID id.OrgID) (pricing.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[orgID.String()]
	if !ok {
		return pricing.Config{}, fmt.Errorf("store/memory: no billing config for org %s", orgID.String())
	}
	return cfg, nil
}

// PutPricingRule adds or replaces a pricing rule by ID.
func (r *RuleSource) PutPricingRule(rule pricing.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.ID.Equal(rule.ID) {
			r.rules[i] = rule
			return
		}
	}
	r.rules = append(r.rules, rule)
}

// PutMinimumChargeRule adds or replaces a minimum charge rule by ID.
func (r *RuleSource) PutMinimumChargeRule(rule pricing.MinimumChargeRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.minRules {
		if existing.ID.Equal(rule.ID) {
			r.minRules[i] = rule
			return
		}
	}
	r.minRules = append(r.minRules, rule)
}

// PutBillingConfig sets an org's billing configuration.
func (r *RuleSource) PutBillingConfig(cfg pricing.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.OrgID.String()] = cfg
}
