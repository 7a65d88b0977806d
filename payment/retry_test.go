package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
	paymem "github.com/invoiceflow/billing/payment/memory"
)

func newFailedPayment(t *testing.T, store payment.Store, org id.OrgID, retryCount int, nextRetryAt time.Time) *payment.Payment {
	t.Helper()
	p := &payment.Payment{
		ID:          id.NewPaymentID(),
		OrgID:       org,
		InvoiceID:   id.NewInvoiceID(),
		Number:      "PAY-R",
		Amount:      money.MustAmount("50.00", "INR"),
		Status:      payment.StatusFailed,
		RetryCount:  retryCount,
		NextRetryAt: &nextRetryAt,
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRetrySchedulerRetriesDuePayments(t *testing.T) {
	ctx := context.Background()
	store := paymem.New()
	org := id.NewOrgID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := newFailedPayment(t, store, org, 0, now.Add(-time.Hour))

	gw := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		CreateOrderFunc: func(ctx context.Context, receipt string, amount money.Amount) (gateway.Order, error) {
			return gateway.Order{GatewayOrderID: "retry_order", Amount: amount, Receipt: receipt, Status: "created"}, nil
		},
	}

	sched := &payment.RetryScheduler{
		Store:   store,
		Gateway: gw,
		Config:  payment.RetryConfig{Enabled: true, MaxRetries: 3, BaseIntervalHours: 24},
		Now:     func() time.Time { return now },
	}

	result, err := sched.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 1 {
		t.Fatalf("Attempted = %d, want 1", result.Attempted)
	}

	updated, err := store.Get(ctx, due.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", updated.RetryCount)
	}
	if len(updated.RetryHistory) != 1 {
		t.Fatalf("RetryHistory length = %d, want 1", len(updated.RetryHistory))
	}
	if updated.NextRetryAt == nil {
		t.Fatal("expected NextRetryAt to be recomputed")
	}
	wantNext := now.Add(48 * time.Hour)
	if !updated.NextRetryAt.Equal(wantNext) {
		t.Fatalf("NextRetryAt = %v, want %v", updated.NextRetryAt, wantNext)
	}
}

func TestRetrySchedulerMarksFinalFailure(t *testing.T) {
	ctx := context.Background()
	store := paymem.New()
	org := id.NewOrgID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pay := newFailedPayment(t, store, org, 2, now.Add(-time.Minute))

	gw := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		CreateOrderFunc: func(ctx context.Context, receipt string, amount money.Amount) (gateway.Order, error) {
			return gateway.Order{GatewayOrderID: "retry_order_2", Amount: amount, Receipt: receipt, Status: "created"}, nil
		},
	}

	sched := &payment.RetryScheduler{
		Store:   store,
		Gateway: gw,
		Config:  payment.RetryConfig{Enabled: true, MaxRetries: 3, BaseIntervalHours: 24},
		Now:     func() time.Time { return now },
	}

	result, err := sched.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalFailures != 1 {
		t.Fatalf("FinalFailures = %d, want 1", result.FinalFailures)
	}

	updated, err := store.Get(ctx, pay.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.FinalFailure() {
		t.Fatal("expected final_failure metadata to be set")
	}
	if updated.NextRetryAt != nil {
		t.Fatal("expected NextRetryAt to be cleared after final failure")
	}
}

func TestRetrySchedulerSkipsPaymentsNotYetDue(t *testing.T) {
	ctx := context.Background()
	store := paymem.New()
	org := id.NewOrgID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newFailedPayment(t, store, org, 0, now.Add(time.Hour))

	gw := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		CreateOrderFunc: func(ctx context.Context, receipt string, amount money.Amount) (gateway.Order, error) {
			t.Fatal("CreateOrderFunc should not be called for a payment not yet due")
			return gateway.Order{}, nil
		},
	}

	sched := &payment.RetryScheduler{
		Store:   store,
		Gateway: gw,
		Config:  payment.RetryConfig{Enabled: true, MaxRetries: 3, BaseIntervalHours: 24},
		Now:     func() time.Time { return now },
	}

	result, err := sched.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 0 {
		t.Fatalf("Attempted = %d, want 0", result.Attempted)
	}
}

func TestRetrySchedulerDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	store := paymem.New()
	org := id.NewOrgID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newFailedPayment(t, store, org, 0, now.Add(-time.Hour))

	sched := &payment.RetryScheduler{
		Store:  store,
		Config: payment.RetryConfig{Enabled: false},
		Now:    func() time.Time { return now },
	}

	result, err := sched.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Attempted != 0 {
		t.Fatalf("Attempted = %d, want 0", result.Attempted)
	}
}
