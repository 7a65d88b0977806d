package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/billing/fx"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/idempotency"
	"github.com/invoiceflow/billing/pricing"
	"github.com/invoiceflow/billing/usage"
)

// AuditRecorder is the minimal seam invoice generation needs to write
// an audit record, satisfied by audit.Recorder without invoice
// depending on that package directly.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID string, detail map[string]any)
}

// Generator orchestrates C7's generate(org, month, year): loading the
// inputs C6 needs, converting cross-currency pricing rules via C12,
// running the pure calculator, validating, and persisting a draft
// invoice — all once per (org, month, year) thanks to the idempotency
// registry.
type Generator struct {
	Store      Store
	Durable    usage.DurableStore
	Rules      RuleSource
	FX         fx.Store
	Idempotent *idempotency.Registry
	Audit      AuditRecorder
	Now        func() time.Time
}

// RuleSource supplies the pricing inputs for an org; store/postgres
// (RuleStore) and store/memory (RuleSource) implement it.
type RuleSource interface {
	PricingRules(ctx context.Context, orgID id.OrgID) ([]pricing.Rule, error)
	MinimumChargeRules(ctx context.Context, orgID id.OrgID) ([]pricing.MinimumChargeRule, error)
	BillingConfig(ctx context.Context, orgID id.OrgID) (pricing.Config, error)
}

// Generate runs C7's generate operation under idempotency key
// "invoice:{org}:{year}:{month}". Concurrent calls for the same
// (org, month, year) are serialized; all but the first observe the
// winner's invoice id.
func (g *Generator) Generate(ctx context.Context, orgID id.OrgID, month, year int) (*Invoice, error) {
	key := fmt.Sprintf("invoice:%s:%d:%d", orgID.String(), year, month)

	entityID, _, err := g.Idempotent.Register(ctx, key, "invoice", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		inv, err := g.generateOnce(ctx, orgID, month, year)
		if err != nil {
			return "", err
		}
		return inv.ID.String(), nil
	})
	if err != nil {
		return nil, err
	}

	invID, err := id.ParseInvoiceID(entityID)
	if err != nil {
		return nil, fmt.Errorf("invoice: parse generated id %q: %w", entityID, err)
	}
	return g.Store.Get(ctx, invID)
}

func (g *Generator) generateOnce(ctx context.Context, orgID id.OrgID, month, year int) (*Invoice, error) {
	if existing, err := g.Store.GetByPeriod(ctx, orgID, month, year); err == nil && existing != nil && existing.Status != StatusCancelled {
		return existing, nil
	}

	aggregates, err := g.Durable.AggregatesFor(ctx, orgID, month, year)
	if err != nil {
		return nil, fmt.Errorf("invoice: load aggregates: %w", err)
	}

	rules, err := g.Rules.PricingRules(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("invoice: load pricing rules: %w", err)
	}
	minRules, err := g.Rules.MinimumChargeRules(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("invoice: load minimum charge rules: %w", err)
	}
	cfg, err := g.Rules.BillingConfig(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("invoice: load billing config: %w", err)
	}

	periodStart, _, err := pricing.BillingPeriod(month, year)
	if err != nil {
		return nil, err
	}

	rules, err = g.convertRuleCurrencies(ctx, rules, cfg.Currency, periodStart)
	if err != nil {
		return nil, err
	}

	calc, err := pricing.Calculate(orgID, aggregates, rules, minRules, cfg, month, year)
	if err != nil {
		return nil, err
	}

	inv := fromCalculated(orgID, calc)
	if err := Validate(inv); err != nil {
		return nil, err
	}

	if err := g.Store.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("invoice: create: %w", err)
	}

	if g.Audit != nil {
		g.Audit.Record(ctx, "invoice.generated", "invoice", inv.ID.String(), map[string]any{
			"org_id": orgID.String(), "month": month, "year": year, "total": inv.Total.String(),
		})
		if len(calc.Dropped) > 0 {
			g.Audit.Record(ctx, "invoice.usage_unpriced", "invoice", inv.ID.String(), map[string]any{
				"org_id": orgID.String(), "month": month, "year": year, "dropped": calc.Dropped,
			})
		}
	}

	return inv, nil
}

// convertRuleCurrencies converts any rule whose Currency differs from
// target into target using the historical fx rate at "at", per
// spec.md §4.7. Refuses (returns an error) if no rate is on file,
// rather than silently skipping the rule.
func (g *Generator) convertRuleCurrencies(ctx context.Context, rules []pricing.Rule, target string, at time.Time) ([]pricing.Rule, error) {
	if g.FX == nil {
		return rules, nil
	}
	table, err := g.FX.Table(ctx)
	if err != nil {
		return nil, fmt.Errorf("invoice: load fx table: %w", err)
	}

	out := make([]pricing.Rule, len(rules))
	for i, r := range rules {
		if r.Currency == target {
			out[i] = r
			continue
		}
		rate, ok := table.Rate(r.Currency, target, at)
		if !ok {
			return nil, fmt.Errorf("invoice: no exchange rate %s->%s at %s for rule %s", r.Currency, target, at, r.ID.String())
		}
		converted := r
		converted.PricePerUnit = r.PricePerUnit.Mul(rate)
		converted.Currency = target
		out[i] = converted
	}
	return out, nil
}

func fromCalculated(orgID id.OrgID, calc pricing.CalculatedInvoice) *Invoice {
	inv := &Invoice{
		ID:                 id.NewInvoiceID(),
		OrgID:              orgID,
		Status:             StatusDraft,
		Subtotal:           calc.EffectiveSubtotal,
		Tax:                calc.Tax,
		Discount:           calc.Discount,
		Total:              calc.Total,
		Currency:           calc.Currency,
		BillingPeriodStart: calc.PeriodStart,
		BillingPeriodEnd:   calc.PeriodEnd,
		DueDate:            calc.DueDate,
		Month:              calc.Month,
		Year:               calc.Year,
	}
	for i, li := range calc.LineItems {
		inv.LineItems = append(inv.LineItems, LineItem{
			ID:          id.NewLineItemID(),
			InvoiceID:   inv.ID,
			LineNumber:  i + 1,
			Description: li.Description,
			Metric:      li.Metric,
			Quantity:    li.Quantity,
			Unit:        li.Unit,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total,
			Currency:    calc.Currency,
		})
	}
	return inv
}

// Finalize runs C7's finalize(invoice-id): a conditional update that
// succeeds only if status is draft, sets status to finalized and
// stamps finalized-at. Once finalized, only transitions into
// {paid, refunded, cancelled, void} are permitted (enforced by Store).
func (g *Generator) Finalize(ctx context.Context, invID id.InvoiceID) (*Invoice, error) {
	inv, err := g.Store.Finalize(ctx, invID, g.now())
	if err != nil {
		return nil, err
	}
	if g.Audit != nil {
		g.Audit.Record(ctx, "invoice.finalized", "invoice", inv.ID.String(), map[string]any{"finalized_at": inv.FinalizedAt})
	}
	return inv, nil
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now().UTC()
	}
	return g.Now()
}
