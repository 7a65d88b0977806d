package refund

import (
	"context"
	"time"

	"github.com/invoiceflow/billing/id"
)

// Store persists refunds.
type Store interface {
	Create(ctx context.Context, r *Refund) error
	Get(ctx context.Context, refundID id.RefundID) (*Refund, error)
	// GetByGatewayRefundID locates the Refund row a webhook event
	// refers to.
	GetByGatewayRefundID(ctx context.Context, gatewayRefundID string) (*Refund, error)
	// UpdateStatus applies a status transition recorded once the
	// gateway confirms or rejects the refund.
	UpdateStatus(ctx context.Context, refundID id.RefundID, next Status, processedAt *time.Time) (*Refund, error)
	ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]*Refund, error)
}
