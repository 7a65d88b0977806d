package payment

import (
	"context"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
)

// Store persists payments.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, payID id.PaymentID) (*Payment, error)
	// GetByGatewayOrderID locates the Payment row created when the order
	// was placed, so a webhook event (keyed by gateway order id) can
	// find the invoice it belongs to.
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Payment, error)
	// UpdateFromWebhook applies a gateway-reported status transition.
	// It sets next unconditionally; it does not assert the row's prior
	// status.
	UpdateFromWebhook(ctx context.Context, payID id.PaymentID, next Status, method string, reconciledAt time.Time, nextRetryAt *time.Time) (*Payment, error)
	// RecordRetryAttempt appends a retry-history entry and updates
	// retry bookkeeping for a payment the scheduler just retried.
	RecordRetryAttempt(ctx context.Context, payID id.PaymentID, attempt RetryAttempt, nextRetryAt *time.Time, finalFailure bool) (*Payment, error)
	// ApplyRefund adds amount to RefundAmount and sets Status, used by
	// the refund engine (C10) once a refund is processed.
	ApplyRefund(ctx context.Context, payID id.PaymentID, amount money.Amount, refundedAt time.Time) (*Payment, error)
	// ListRetryable returns payments eligible for a retry attempt:
	// status = failed, not marked as a final failure (the scheduler sets
	// that mark once RetryCount reaches the configured maximum),
	// NextRetryAt <= now.
	ListRetryable(ctx context.Context, now time.Time) ([]*Payment, error)
	// ListUnreconciled returns payments for org on date that lack a
	// GatewayPaymentID, used by the local<->gateway reconciliation loop.
	ListUnreconciled(ctx context.Context, orgID id.OrgID, date time.Time) ([]*Payment, error)
}
