package refund_test

import (
	"context"
	"testing"
	"time"

	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/idempotency"
	idmem "github.com/invoiceflow/billing/idempotency/memory"
	"github.com/invoiceflow/billing/invoice"
	invmem "github.com/invoiceflow/billing/invoice/memory"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
	paymem "github.com/invoiceflow/billing/payment/memory"
	"github.com/invoiceflow/billing/refund"
	refundmem "github.com/invoiceflow/billing/refund/memory"
)

func setup(t *testing.T, gatewayStatus string) (*refund.Engine, *payment.Payment, *invoice.Invoice) {
	t.Helper()
	ctx := context.Background()
	org := id.NewOrgID()

	invStore := invmem.New()
	inv := &invoice.Invoice{
		ID:                 id.NewInvoiceID(),
		OrgID:              org,
		Number:             "INV-1",
		Status:             invoice.StatusDraft,
		Subtotal:           money.MustAmount("100.00", "INR"),
		Total:              money.MustAmount("100.00", "INR"),
		Currency:           "INR",
		BillingPeriodStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BillingPeriodEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		DueDate:            time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC),
		Month:              1,
		Year:               2026,
	}
	if err := invStore.Create(ctx, inv); err != nil {
		t.Fatal(err)
	}
	finalized, err := invStore.Finalize(ctx, inv.ID, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	paid, err := invStore.UpdateStatus(ctx, finalized.ID, invoice.StatusFinalized, invoice.StatusPaid, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}

	payStore := paymem.New()
	pay := &payment.Payment{
		ID:               id.NewPaymentID(),
		OrgID:            org,
		InvoiceID:        paid.ID,
		Number:           "PAY-1",
		GatewayPaymentID: "gw_pay_1",
		Amount:           money.MustAmount("100.00", "INR"),
		Status:           payment.StatusCaptured,
	}
	if err := payStore.Create(ctx, pay); err != nil {
		t.Fatal(err)
	}

	gw := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		RefundFunc: func(ctx context.Context, gatewayPaymentID string, amount money.Amount) (gateway.GatewayRefund, error) {
			return gateway.GatewayRefund{GatewayRefundID: "gw_refund_1", Status: gatewayStatus}, nil
		},
	}

	engine := &refund.Engine{
		Refunds:    refundmem.New(),
		Payments:   payStore,
		Invoices:   invStore,
		Gateway:    gw,
		Idempotent: idempotency.New(idmem.New()),
	}
	return engine, pay, paid
}

func TestRequestFullRefundCascadesToInvoice(t *testing.T) {
	ctx := context.Background()
	engine, pay, inv := setup(t, "processed")

	r, err := engine.Request(ctx, "req-1", pay.ID, money.MustAmount("100.00", "INR"), "customer request")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if r.Status != refund.StatusProcessed {
		t.Fatalf("status = %s, want processed", r.Status)
	}
	if r.Type != refund.TypeFull {
		t.Fatalf("type = %s, want full", r.Type)
	}

	updatedPayment, err := engine.Payments.Get(ctx, pay.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updatedPayment.Status != payment.StatusRefunded {
		t.Fatalf("payment status = %s, want refunded", updatedPayment.Status)
	}

	updatedInvoice, err := engine.Invoices.Get(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updatedInvoice.Status != invoice.StatusRefunded {
		t.Fatalf("invoice status = %s, want refunded", updatedInvoice.Status)
	}
}

func TestRequestPartialRefundLeavesPaymentPartiallyRefunded(t *testing.T) {
	ctx := context.Background()
	engine, pay, inv := setup(t, "processed")

	r, err := engine.Request(ctx, "req-2", pay.ID, money.MustAmount("40.00", "INR"), "partial")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if r.Type != refund.TypePartial {
		t.Fatalf("type = %s, want partial", r.Type)
	}

	updatedPayment, err := engine.Payments.Get(ctx, pay.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updatedPayment.Status != payment.StatusPartiallyRefunded {
		t.Fatalf("payment status = %s, want partially_refunded", updatedPayment.Status)
	}

	updatedInvoice, err := engine.Invoices.Get(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updatedInvoice.Status == invoice.StatusRefunded {
		t.Fatal("invoice should not be fully refunded yet")
	}
}

func TestRequestRejectsAmountExceedingRemaining(t *testing.T) {
	ctx := context.Background()
	engine, pay, _ := setup(t, "processed")

	if _, err := engine.Request(ctx, "req-3", pay.ID, money.MustAmount("150.00", "INR"), "too much"); err == nil {
		t.Fatal("expected error for amount exceeding remaining refundable")
	}
}

func TestRequestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, pay, _ := setup(t, "processed")

	r1, err := engine.Request(ctx, "req-4", pay.ID, money.MustAmount("25.00", "INR"), "first")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := engine.Request(ctx, "req-4", pay.ID, money.MustAmount("25.00", "INR"), "first")
	if err != nil {
		t.Fatal(err)
	}
	if r1.ID.String() != r2.ID.String() {
		t.Fatal("expected same refund id for retried request under the same idempotency key")
	}
}

func TestProcessWebhookConfirmsPendingRefund(t *testing.T) {
	ctx := context.Background()
	engine, pay, _ := setup(t, "authorized") // gateway does not confirm synchronously

	r, err := engine.Request(ctx, "req-5", pay.ID, money.MustAmount("100.00", "INR"), "await webhook")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != refund.StatusPending {
		t.Fatalf("status = %s, want pending", r.Status)
	}

	confirmed, err := engine.ProcessWebhook(ctx, refund.WebhookEvent{GatewayRefundID: "gw_refund_1", GatewayStatus: "processed"})
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.Status != refund.StatusProcessed {
		t.Fatalf("status = %s, want processed", confirmed.Status)
	}
}
