package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/idempotency"
	idmem "github.com/invoiceflow/billing/idempotency/memory"
	"github.com/invoiceflow/billing/invoice"
	invmem "github.com/invoiceflow/billing/invoice/memory"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
	paymem "github.com/invoiceflow/billing/payment/memory"
)

func newInvoice(t *testing.T, store invoice.Store, org id.OrgID, status invoice.Status) *invoice.Invoice {
	t.Helper()
	inv := &invoice.Invoice{
		ID:                 id.NewInvoiceID(),
		OrgID:              org,
		Number:             "INV-1",
		Status:             invoice.StatusDraft,
		Subtotal:           money.MustAmount("100.00", "INR"),
		Total:              money.MustAmount("118.00", "INR"),
		Tax:                money.MustAmount("18.00", "INR"),
		Currency:           "INR",
		BillingPeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BillingPeriodEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DueDate:            time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
		Month:              1,
		Year:               2026,
	}
	ctx := context.Background()
	if err := store.Create(ctx, inv); err != nil {
		t.Fatal(err)
	}
	if status != invoice.StatusDraft {
		finalized, err := store.Finalize(ctx, inv.ID, time.Now().UTC())
		if err != nil {
			t.Fatal(err)
		}
		inv = finalized
		if status != invoice.StatusFinalized {
			inv, err = store.UpdateStatus(ctx, inv.ID, invoice.StatusFinalized, status, time.Now().UTC())
			if err != nil {
				t.Fatal(err)
			}
		}
	}
	return inv
}

func newPayment(t *testing.T, store payment.Store, org id.OrgID, invID id.InvoiceID, gatewayOrderID string) *payment.Payment {
	t.Helper()
	p := &payment.Payment{
		ID:             id.NewPaymentID(),
		OrgID:          org,
		InvoiceID:      invID,
		Number:         "PAY-1",
		GatewayOrderID: gatewayOrderID,
		Amount:         money.MustAmount("118.00", "INR"),
		Status:         payment.StatusPending,
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProcessCapturesPaymentAndMarksInvoicePaid(t *testing.T) {
	ctx := context.Background()
	org := id.NewOrgID()
	invStore := invmem.New()
	inv := newInvoice(t, invStore, org, invoice.StatusFinalized)

	payStore := paymem.New()
	pay := newPayment(t, payStore, org, inv.ID, "order_1")

	proc := &payment.Processor{
		Store:      payStore,
		Invoices:   invStore,
		Idempotent: idempotency.New(idmem.New()),
	}

	event := payment.WebhookEvent{GatewayPaymentID: "pay_1", GatewayOrderID: "order_1", GatewayStatus: "captured", Method: "card"}
	updated, err := proc.Process(ctx, event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if updated.Status != payment.StatusCaptured {
		t.Fatalf("status = %s, want captured", updated.Status)
	}
	if updated.PaidAt == nil {
		t.Fatal("expected PaidAt to be set")
	}

	gotInv, err := invStore.Get(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotInv.Status != invoice.StatusPaid {
		t.Fatalf("invoice status = %s, want paid", gotInv.Status)
	}

	_ = pay
}

func TestProcessIsIdempotentAcrossConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	org := id.NewOrgID()
	invStore := invmem.New()
	inv := newInvoice(t, invStore, org, invoice.StatusFinalized)

	payStore := paymem.New()
	newPayment(t, payStore, org, inv.ID, "order_2")

	proc := &payment.Processor{
		Store:      payStore,
		Invoices:   invStore,
		Idempotent: idempotency.New(idmem.New()),
	}

	event := payment.WebhookEvent{GatewayPaymentID: "pay_2", GatewayOrderID: "order_2", GatewayStatus: "captured", Method: "card"}

	var wg sync.WaitGroup
	results := make([]*payment.Payment, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = proc.Process(ctx, event)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	first := results[0].ID.String()
	for i, r := range results {
		if r.ID.String() != first {
			t.Fatalf("call %d returned different payment id", i)
		}
	}

	gotInv, err := invStore.Get(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotInv.Status != invoice.StatusPaid {
		t.Fatalf("invoice status = %s, want paid", gotInv.Status)
	}
}

func TestProcessRejectsWebhookForUnfinalizedInvoice(t *testing.T) {
	ctx := context.Background()
	org := id.NewOrgID()
	invStore := invmem.New()
	inv := newInvoice(t, invStore, org, invoice.StatusDraft)

	payStore := paymem.New()
	newPayment(t, payStore, org, inv.ID, "order_3")

	proc := &payment.Processor{
		Store:      payStore,
		Invoices:   invStore,
		Idempotent: idempotency.New(idmem.New()),
	}

	event := payment.WebhookEvent{GatewayPaymentID: "pay_3", GatewayOrderID: "order_3", GatewayStatus: "captured", Method: "card"}
	if _, err := proc.Process(ctx, event); err == nil {
		t.Fatal("expected error for draft invoice")
	}
}

func TestProcessSchedulesRetryOnFailure(t *testing.T) {
	ctx := context.Background()
	org := id.NewOrgID()
	invStore := invmem.New()
	inv := newInvoice(t, invStore, org, invoice.StatusFinalized)

	payStore := paymem.New()
	newPayment(t, payStore, org, inv.ID, "order_4")

	proc := &payment.Processor{
		Store:      payStore,
		Invoices:   invStore,
		Idempotent: idempotency.New(idmem.New()),
	}

	event := payment.WebhookEvent{GatewayPaymentID: "pay_4", GatewayOrderID: "order_4", GatewayStatus: "failed", Method: "card"}
	updated, err := proc.Process(ctx, event)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != payment.StatusFailed {
		t.Fatalf("status = %s, want failed", updated.Status)
	}
	if updated.NextRetryAt == nil {
		t.Fatal("expected NextRetryAt to be scheduled")
	}
}
