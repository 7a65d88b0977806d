package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	paymem "github.com/invoiceflow/billing/payment/memory"
	"github.com/invoiceflow/billing/reconcile"
	reconcilemem "github.com/invoiceflow/billing/reconcile/memory"
	"github.com/invoiceflow/billing/payment"
	"github.com/invoiceflow/billing/usage"
	usagemem "github.com/invoiceflow/billing/usage/memory"
)

func TestReconcileHotDurableDetectsDiscrepancy(t *testing.T) {
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	hot := usagemem.NewHotStore()
	durable := usagemem.NewDurableStore()

	events := []*usage.Event{
		{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("1"), Unit: "calls", Timestamp: date, IdempotencyKey: "e1"},
		{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("1"), Unit: "calls", Timestamp: date, IdempotencyKey: "e2"},
	}
	for _, e := range events {
		if _, err := hot.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	// Only migrate one of the two events into the durable store.
	if _, err := durable.InsertEvents(ctx, events[:1]); err != nil {
		t.Fatal(err)
	}

	reconciler := &reconcile.Reconciler{Hot: hot, Durable: durable, Runs: reconcilemem.New()}
	runs := reconciler.ReconcileHotDurable(ctx, []reconcile.EventKey{{OrgID: org, ProjectID: proj, Metric: "api_calls"}}, date)

	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Status != reconcile.StatusDiscrepancy {
		t.Fatalf("status = %s, want discrepancy", runs[0].Status)
	}
	if runs[0].LeftCount != 2 || runs[0].RightCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", runs[0].LeftCount, runs[0].RightCount)
	}
}

func TestReconcileHotDurableReconciledWhenEqual(t *testing.T) {
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	hot := usagemem.NewHotStore()
	durable := usagemem.NewDurableStore()

	event := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("1"), Unit: "calls", Timestamp: date, IdempotencyKey: "e1"}
	if _, err := hot.Put(ctx, event); err != nil {
		t.Fatal(err)
	}
	if _, err := durable.InsertEvents(ctx, []*usage.Event{event}); err != nil {
		t.Fatal(err)
	}

	reconciler := &reconcile.Reconciler{Hot: hot, Durable: durable, Runs: reconcilemem.New()}
	runs := reconciler.ReconcileHotDurable(ctx, []reconcile.EventKey{{OrgID: org, ProjectID: proj, Metric: "api_calls"}}, date)

	if runs[0].Status != reconcile.StatusReconciled {
		t.Fatalf("status = %s, want reconciled", runs[0].Status)
	}
}

func TestReconcileAggregateEventsDetectsDrift(t *testing.T) {
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()
	month, year := 3, 2026

	durable := usagemem.NewDurableStore()
	events := []*usage.Event{
		{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("100"), Unit: "calls", Timestamp: time.Date(year, time.Month(month), 5, 0, 0, 0, 0, time.UTC), IdempotencyKey: "e1"},
	}
	if _, err := durable.InsertEvents(ctx, events); err != nil {
		t.Fatal(err)
	}
	if _, err := durable.Aggregate(ctx, org, proj, "api_calls", "calls", month, year); err != nil {
		t.Fatal(err)
	}

	// A second event arrives after the aggregate was computed, simulating drift.
	late := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("50"), Unit: "calls", Timestamp: time.Date(year, time.Month(month), 6, 0, 0, 0, 0, time.UTC), IdempotencyKey: "e2"}
	if _, err := durable.InsertEvents(ctx, []*usage.Event{late}); err != nil {
		t.Fatal(err)
	}

	reconciler := &reconcile.Reconciler{Durable: durable, Runs: reconcilemem.New()}
	runs := reconciler.ReconcileAggregateEvents(ctx, []id.OrgID{org}, month, year)

	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Status != reconcile.StatusDiscrepancy {
		t.Fatalf("status = %s, want discrepancy", runs[0].Status)
	}
}

func TestReconcileLocalGatewayPaymentsFlagsUnreconciled(t *testing.T) {
	ctx := context.Background()
	org := id.NewOrgID()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	payStore := paymem.New()
	p := &payment.Payment{
		ID:        id.NewPaymentID(),
		OrgID:     org,
		InvoiceID: id.NewInvoiceID(),
		Number:    "PAY-1",
		Amount:    money.MustAmount("10.00", "INR"),
		Status:    payment.StatusPending,
	}
	p.CreatedAt = date
	if err := payStore.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	reconciler := &reconcile.Reconciler{Payments: payStore, Runs: reconcilemem.New()}
	runs := reconciler.ReconcileLocalGatewayPayments(ctx, []id.OrgID{org}, date)

	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Status != reconcile.StatusDiscrepancy {
		t.Fatalf("status = %s, want discrepancy", runs[0].Status)
	}
	if runs[0].LeftCount != 1 {
		t.Fatalf("LeftCount = %d, want 1", runs[0].LeftCount)
	}
}
