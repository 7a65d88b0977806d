// Package payment implements the payment state machine and retry
// scheduler (spec.md C9): webhook-driven status transitions and
// exponential-backoff retries for failed payments.
package payment

import (
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/types"
)

// Status is a payment's lifecycle state.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAuthorized        Status = "authorized"
	StatusCaptured          Status = "captured"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusCancelled         Status = "cancelled"
)

// RetryAttempt is one entry in a payment's retry history.
type RetryAttempt struct {
	AttemptedAt time.Time `json:"attempted_at"`
	Outcome     string    `json:"outcome"`
}

// Payment tracks one attempt to collect an Invoice's total.
type Payment struct {
	types.Entity
	ID             id.PaymentID      `json:"id"`
	OrgID          id.OrgID          `json:"org_id"`
	InvoiceID      id.InvoiceID      `json:"invoice_id"`
	Number         string            `json:"number"`
	GatewayOrderID string            `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"` // unique when set
	Amount         money.Amount      `json:"amount"`                       // > 0
	Status         Status            `json:"status"`
	Method         string            `json:"method,omitempty"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	ReconciledAt   *time.Time        `json:"reconciled_at,omitempty"`
	RefundAmount   money.Amount      `json:"refund_amount"` // >= 0, <= Amount
	RefundedAt     *time.Time        `json:"refunded_at,omitempty"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	LastRetryAt    *time.Time        `json:"last_retry_at,omitempty"`
	RetryHistory   []RetryAttempt    `json:"retry_history,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RemainingRefundable returns how much of Amount has not yet been
// refunded.
func (p Payment) RemainingRefundable() money.Amount {
	return p.Amount.Sub(p.RefundAmount)
}

// FinalFailure reports whether a terminal retry-exhaustion flag has
// been set in Metadata.
func (p Payment) FinalFailure() bool {
	return p.Metadata != nil && p.Metadata["final_failure"] == "true"
}

// FromGatewayStatus maps a gateway-reported status string onto a
// Status. Unrecognized values map to pending (spec.md §4.9).
func FromGatewayStatus(gatewayStatus string) Status {
	switch gatewayStatus {
	case "authorized":
		return StatusAuthorized
	case "captured":
		return StatusCaptured
	case "failed":
		return StatusFailed
	case "refunded":
		return StatusRefunded
	default:
		return StatusPending
	}
}
