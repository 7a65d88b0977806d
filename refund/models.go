// Package refund implements the refund engine (spec.md C10): partial or
// full refunds against a captured payment, with cascading payment and
// invoice status updates once the gateway confirms the refund.
package refund

import (
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/types"
)

// Status is a refund's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Type distinguishes a refund that exhausts the payment's remaining
// refundable amount from one that leaves some of it outstanding.
type Type string

const (
	TypeFull    Type = "full"
	TypePartial Type = "partial"
)

// Refund is one refund attempt against a captured Payment.
type Refund struct {
	types.Entity
	ID             id.RefundID `json:"id"`
	OrgID          id.OrgID    `json:"org_id"`
	InvoiceID      id.InvoiceID `json:"invoice_id"`
	PaymentID      id.PaymentID `json:"payment_id"`
	Number         string      `json:"number"` // unique
	GatewayRefundID string     `json:"gateway_refund_id,omitempty"` // unique when set
	Amount         money.Amount `json:"amount"`                     // > 0, <= payment.amount - payment.refund_amount
	Status         Status      `json:"status"`
	Type           Type        `json:"type"`
	Reason         string      `json:"reason,omitempty"`
	ProcessedAt    *time.Time  `json:"processed_at,omitempty"`
}
