package memory_test

import (
	"context"
	"testing"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/pricing"
	"github.com/invoiceflow/billing/store/memory"
)

func TestNewComposesEveryDomainStore(t *testing.T) {
	s := memory.New()
	if s.Orgs == nil || s.Projects == nil || s.Invoices == nil || s.Rules == nil ||
		s.Payments == nil || s.Refunds == nil || s.Usage == nil || s.Idempotency == nil ||
		s.FX == nil || s.Reconcile == nil {
		t.Fatal("New() left at least one Store field nil")
	}
}

func TestRuleSourceReturnsGlobalAndOrgScopedRules(t *testing.T) {
	ctx := context.Background()
	rs := memory.NewRuleSource()

	orgID := id.NewOrgID()
	other := id.NewOrgID()

	rs.PutPricingRule(pricing.Rule{ID: id.NewPricingRuleID(), Metric: "api_calls", Unit: "calls", PricePerUnit: money.MustRate("0.01"), Currency: "USD", Active: true})
	rs.PutPricingRule(pricing.Rule{ID: id.NewPricingRuleID(), OrgID: &orgID, Metric: "storage_gb", Unit: "gb", PricePerUnit: money.MustRate("0.1"), Currency: "USD", Active: true})
	rs.PutPricingRule(pricing.Rule{ID: id.NewPricingRuleID(), OrgID: &other, Metric: "bandwidth_gb", Unit: "gb", PricePerUnit: money.MustRate("0.05"), Currency: "USD", Active: true})

	rules, err := rs.PricingRules(ctx, orgID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("PricingRules(orgID) returned %d rules, want 2 (1 global + 1 org-scoped)", len(rules))
	}
}

func TestRuleSourceBillingConfigUnknownOrgErrors(t *testing.T) {
	rs := memory.NewRuleSource()
	if _, err := rs.BillingConfig(context.Background(), id.NewOrgID()); err == nil {
		t.Fatal("expected error for org with no configured billing config")
	}
}
