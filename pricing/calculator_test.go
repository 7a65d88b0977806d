package pricing_test

import (
	"testing"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/pricing"
	"github.com/invoiceflow/billing/usage"
)

func TestCalculateBasicLineItemsAndTax(t *testing.T) {
	org := id.NewOrgID()
	proj := id.NewProjectID()

	aggregates := []usage.Aggregate{
		{OrgID: org, ProjectID: proj, Metric: "api_calls", Unit: "calls", Month: 3, Year: 2026, TotalValue: money.MustRate("1000"), EventCount: 10},
	}
	rules := []pricing.Rule{
		{ID: id.NewPricingRuleID(), Metric: "api_calls", Unit: "calls", PricePerUnit: money.MustRate("0.01"), Currency: "USD", EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Active: true},
	}
	cfg := pricing.Config{OrgID: org, TaxRate: money.MustRate("0.1"), Currency: "USD", Cycle: pricing.CycleMonthly, PaymentTermsDays: 15}

	out, err := pricing.Calculate(org, aggregates, rules, nil, cfg, 3, 2026)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(out.LineItems) != 1 {
		t.Fatalf("got %d line items, want 1", len(out.LineItems))
	}
	if out.Subtotal.String() != "10.00" {
		t.Errorf("subtotal: got %s, want 10.00", out.Subtotal.String())
	}
	if out.Tax.String() != "1.00" {
		t.Errorf("tax: got %s, want 1.00", out.Tax.String())
	}
	if out.Total.String() != "11.00" {
		t.Errorf("total: got %s, want 11.00", out.Total.String())
	}
	wantDue := out.PeriodEnd.AddDate(0, 0, 15)
	if !out.DueDate.Equal(wantDue) {
		t.Errorf("due date: got %v, want %v", out.DueDate, wantDue)
	}
}

func TestCalculateOrgSpecificRuleShadowsGlobal(t *testing.T) {
	org := id.NewOrgID()
	proj := id.NewProjectID()
	eff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	aggregates := []usage.Aggregate{
		{OrgID: org, ProjectID: proj, Metric: "storage_gb", Unit: "gb", Month: 3, Year: 2026, TotalValue: money.MustRate("100"), EventCount: 5},
	}
	rules := []pricing.Rule{
		{ID: id.NewPricingRuleID(), Metric: "storage_gb", Unit: "gb", PricePerUnit: money.MustRate("1.00"), Currency: "USD", EffectiveFrom: eff, Active: true},
		{ID: id.NewPricingRuleID(), OrgID: &org, Metric: "storage_gb", Unit: "gb", PricePerUnit: money.MustRate("0.50"), Currency: "USD", EffectiveFrom: eff, Active: true},
	}
	cfg := pricing.Config{OrgID: org, TaxRate: money.ZeroRate(), Currency: "USD", PaymentTermsDays: 30}

	out, err := pricing.Calculate(org, aggregates, rules, nil, cfg, 3, 2026)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if out.Subtotal.String() != "50.00" {
		t.Errorf("expected org-specific rate to win: got subtotal %s, want 50.00", out.Subtotal.String())
	}
}

func TestCalculateMinimumChargeTopUp(t *testing.T) {
	org := id.NewOrgID()
	proj := id.NewProjectID()
	eff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	aggregates := []usage.Aggregate{
		{OrgID: org, ProjectID: proj, Metric: "api_calls", Unit: "calls", Month: 3, Year: 2026, TotalValue: money.MustRate("10"), EventCount: 1},
	}
	rules := []pricing.Rule{
		{ID: id.NewPricingRuleID(), Metric: "api_calls", Unit: "calls", PricePerUnit: money.MustRate("0.01"), Currency: "USD", EffectiveFrom: eff, Active: true},
	}
	minAmount := money.MustAmount("5.00", "USD")
	cfg := pricing.Config{OrgID: org, TaxRate: money.ZeroRate(), Currency: "USD", PaymentTermsDays: 30, MinChargeEnabled: true, MinChargeAmount: &minAmount}

	out, err := pricing.Calculate(org, aggregates, rules, nil, cfg, 3, 2026)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if out.Subtotal.String() != "0.10" {
		t.Errorf("raw subtotal: got %s, want 0.10", out.Subtotal.String())
	}
	if out.EffectiveSubtotal.String() != "5.00" {
		t.Errorf("effective subtotal should be raised to minimum: got %s, want 5.00", out.EffectiveSubtotal.String())
	}
	if len(out.LineItems) != 2 || out.LineItems[1].Description != "Minimum Monthly Charge" {
		t.Fatalf("expected a synthetic minimum-charge line item, got %+v", out.LineItems)
	}
}

func TestCalculateDropsAggregatesWithoutRule(t *testing.T) {
	org := id.NewOrgID()
	proj := id.NewProjectID()

	aggregates := []usage.Aggregate{
		{OrgID: org, ProjectID: proj, Metric: "unpriced_metric", Unit: "x", Month: 3, Year: 2026, TotalValue: money.MustRate("1"), EventCount: 1},
	}
	cfg := pricing.Config{OrgID: org, TaxRate: money.ZeroRate(), Currency: "USD", PaymentTermsDays: 30}

	out, err := pricing.Calculate(org, aggregates, nil, nil, cfg, 3, 2026)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(out.LineItems) != 0 {
		t.Errorf("expected no line items, got %d", len(out.LineItems))
	}
	if len(out.Dropped) != 1 {
		t.Fatalf("expected the unpriced aggregate to be reported as dropped, got %+v", out.Dropped)
	}
}
