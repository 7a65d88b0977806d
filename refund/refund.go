package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/idempotency"
	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
)

// AuditRecorder is the minimal seam refund processing needs to write
// audit records.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID string, detail map[string]any)
}

// Engine implements refund(payment, amount, reason) and the gateway
// webhook confirmation step (spec.md §4.10).
type Engine struct {
	Refunds    Store
	Payments   payment.Store
	Invoices   invoice.Store
	Gateway    *gateway.Client
	Idempotent *idempotency.Registry
	Audit      AuditRecorder
	Now        func() time.Time
}

// WebhookEvent is a normalized "refund.*" gateway event.
type WebhookEvent struct {
	GatewayRefundID string
	GatewayStatus   string // "processed" or "failed"
}

// Request issues a refund against paymentID. idempotencyKey scopes
// retried client requests (e.g. an API call retried after a timeout)
// to the same Refund row rather than creating a duplicate. Refuses if
// amount exceeds the payment's remaining refundable balance, or if the
// owning invoice is not paid.
func (e *Engine) Request(ctx context.Context, idempotencyKey string, paymentID id.PaymentID, amount money.Amount, reason string) (*Refund, error) {
	key := fmt.Sprintf("refund:%s", idempotencyKey)

	entityID, _, err := e.Idempotent.Register(ctx, key, "refund", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		r, err := e.requestOnce(ctx, paymentID, amount, reason)
		if err != nil {
			return "", err
		}
		return r.ID.String(), nil
	})
	if err != nil {
		return nil, err
	}

	refundID, err := id.ParseRefundID(entityID)
	if err != nil {
		return nil, fmt.Errorf("refund: parse id %q: %w", entityID, err)
	}
	return e.Refunds.Get(ctx, refundID)
}

func (e *Engine) requestOnce(ctx context.Context, paymentID id.PaymentID, amount money.Amount, reason string) (*Refund, error) {
	pay, err := e.Payments.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("refund: load payment %s: %w", paymentID.String(), err)
	}

	inv, err := e.Invoices.Get(ctx, pay.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("refund: load invoice %s: %w", pay.InvoiceID.String(), err)
	}
	if inv.Status != invoice.StatusPaid {
		return nil, fmt.Errorf("refund: invoice %s is not paid", inv.ID.String())
	}

	remaining := pay.RemainingRefundable()
	if amount.Cmp(remaining) > 0 {
		return nil, fmt.Errorf("refund: amount %s exceeds remaining refundable %s", amount.String(), remaining.String())
	}

	refundType := TypePartial
	if amount.Cmp(remaining) == 0 {
		refundType = TypeFull
	}

	now := e.now()
	r := &Refund{
		ID:        id.NewRefundID(),
		OrgID:     pay.OrgID,
		InvoiceID: pay.InvoiceID,
		PaymentID: pay.ID,
		Number:    fmt.Sprintf("RFND-%s", id.NewRefundID().String()),
		Amount:    amount,
		Status:    StatusPending,
		Type:      refundType,
		Reason:    reason,
	}
	if err := e.Refunds.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("refund: create: %w", err)
	}
	if e.Audit != nil {
		e.Audit.Record(ctx, "refund.requested", "refund", r.ID.String(), map[string]any{
			"payment_id": pay.ID.String(), "amount": amount.String(), "reason": reason,
		})
	}

	gwRefund, gwErr := e.Gateway.Refund(ctx, pay.GatewayPaymentID, amount)
	if gwErr != nil {
		if _, err := e.Refunds.UpdateStatus(ctx, r.ID, StatusFailed, nil); err != nil {
			return nil, fmt.Errorf("refund: mark failed after gateway error: %w", err)
		}
		return nil, fmt.Errorf("refund: gateway refund: %w", gwErr)
	}

	r.GatewayRefundID = gwRefund.GatewayRefundID
	if gwRefund.Status == "processed" {
		return e.applyProcessed(ctx, r, now)
	}

	updated, err := e.Refunds.UpdateStatus(ctx, r.ID, StatusPending, nil)
	if err != nil {
		return nil, fmt.Errorf("refund: persist gateway refund id: %w", err)
	}
	return updated, nil
}

// ProcessWebhook applies a gateway "refund.*" webhook event, cascading
// to payment and invoice status when the refund is confirmed processed.
func (e *Engine) ProcessWebhook(ctx context.Context, event WebhookEvent) (*Refund, error) {
	key := fmt.Sprintf("refund-webhook:%s", event.GatewayRefundID)

	entityID, _, err := e.Idempotent.Register(ctx, key, "refund", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		r, err := e.processWebhookOnce(ctx, event)
		if err != nil {
			return "", err
		}
		return r.ID.String(), nil
	})
	if err != nil {
		return nil, err
	}

	refundID, err := id.ParseRefundID(entityID)
	if err != nil {
		return nil, fmt.Errorf("refund: parse id %q: %w", entityID, err)
	}
	return e.Refunds.Get(ctx, refundID)
}

func (e *Engine) processWebhookOnce(ctx context.Context, event WebhookEvent) (*Refund, error) {
	r, err := e.Refunds.GetByGatewayRefundID(ctx, event.GatewayRefundID)
	if err != nil {
		return nil, fmt.Errorf("refund: locate refund for gateway refund %s: %w", event.GatewayRefundID, err)
	}
	if r.Status == StatusProcessed || r.Status == StatusFailed {
		return r, nil
	}

	now := e.now()
	if event.GatewayStatus != "processed" {
		return e.Refunds.UpdateStatus(ctx, r.ID, StatusFailed, nil)
	}
	return e.applyProcessed(ctx, r, now)
}

// applyProcessed marks r processed and cascades the refund into the
// owning payment's refund-amount and, once the payment is fully
// refunded, the invoice's status (spec.md §4.10).
func (e *Engine) applyProcessed(ctx context.Context, r *Refund, now time.Time) (*Refund, error) {
	updatedRefund, err := e.Refunds.UpdateStatus(ctx, r.ID, StatusProcessed, &now)
	if err != nil {
		return nil, fmt.Errorf("refund: mark processed: %w", err)
	}
	if e.Audit != nil {
		e.Audit.Record(ctx, "refund.processed", "refund", updatedRefund.ID.String(), map[string]any{
			"payment_id": r.PaymentID.String(), "amount": r.Amount.String(),
		})
	}

	updatedPayment, err := e.Payments.ApplyRefund(ctx, r.PaymentID, r.Amount, now)
	if err != nil {
		return nil, fmt.Errorf("refund: apply to payment %s: %w", r.PaymentID.String(), err)
	}

	if updatedPayment.Status == payment.StatusRefunded {
		inv, err := e.Invoices.Get(ctx, r.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("refund: load invoice %s: %w", r.InvoiceID.String(), err)
		}
		if inv.Status != invoice.StatusRefunded {
			updatedInvoice, err := e.Invoices.UpdateStatus(ctx, inv.ID, inv.Status, invoice.StatusRefunded, now)
			if err != nil {
				return nil, fmt.Errorf("refund: mark invoice refunded: %w", err)
			}
			if e.Audit != nil {
				e.Audit.Record(ctx, "invoice.refunded", "invoice", updatedInvoice.ID.String(), map[string]any{
					"refund_id": updatedRefund.ID.String(),
				})
			}
		}
	}

	return updatedRefund, nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}
