package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/idempotency"
	"github.com/invoiceflow/billing/invoice"
)

// AuditRecorder is the minimal seam payment processing needs to write
// audit records.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID string, detail map[string]any)
}

// Processor applies gateway webhook events to payments and, on
// capture, atomically transitions the owning invoice to paid
// (spec.md §4.9).
type Processor struct {
	Store       Store
	Invoices    invoice.Store
	Idempotent  *idempotency.Registry
	Audit       AuditRecorder
	RetryConfig RetryConfig
	Now         func() time.Time
}

// WebhookEvent is the normalized inbound payload, already verified by
// gateway.VerifyWebhookSignature and filtered to "payment.*" families.
type WebhookEvent struct {
	GatewayPaymentID string
	GatewayOrderID   string
	GatewayStatus    string
	Method           string
}

// Process runs C9's webhook processing step under idempotency key
// "gateway-payment:{id}". Applying the same event N times yields the
// same final payment and invoice state (spec.md §8).
func (p *Processor) Process(ctx context.Context, event WebhookEvent) (*Payment, error) {
	key := fmt.Sprintf("gateway-payment:%s", event.GatewayPaymentID)

	entityID, _, err := p.Idempotent.Register(ctx, key, "payment", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		pay, err := p.processOnce(ctx, event)
		if err != nil {
			return "", err
		}
		return pay.ID.String(), nil
	})
	if err != nil {
		return nil, err
	}

	payID, err := id.ParsePaymentID(entityID)
	if err != nil {
		return nil, fmt.Errorf("payment: parse id %q: %w", entityID, err)
	}
	return p.Store.Get(ctx, payID)
}

func (p *Processor) processOnce(ctx context.Context, event WebhookEvent) (*Payment, error) {
	pay, err := p.Store.GetByGatewayOrderID(ctx, event.GatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("payment: locate payment for gateway order %s: %w", event.GatewayOrderID, err)
	}

	inv, err := p.Invoices.Get(ctx, pay.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("payment: load invoice %s: %w", pay.InvoiceID.String(), err)
	}
	if !invoiceEligibleForPayment(inv.Status) {
		return nil, fmt.Errorf("payment: invoice %s is not finalized", inv.ID.String())
	}

	now := p.now()
	next := FromGatewayStatus(event.GatewayStatus)

	var nextRetryAt *time.Time
	if next == StatusFailed && pay.RetryCount == 0 {
		cfg := p.RetryConfig.withDefaults()
		t := now.Add(nextRetryDelay(cfg.BaseIntervalHours, 0))
		nextRetryAt = &t
	}

	updated, err := p.Store.UpdateFromWebhook(ctx, pay.ID, next, event.Method, now, nextRetryAt)
	if err != nil {
		return nil, fmt.Errorf("payment: update from webhook: %w", err)
	}

	if p.Audit != nil {
		p.Audit.Record(ctx, "payment.webhook_processed", "payment", updated.ID.String(), map[string]any{
			"gateway_payment_id": event.GatewayPaymentID, "status": string(next),
		})
	}

	if next == StatusCaptured && inv.Status != invoice.StatusPaid {
		updatedInvoice, err := p.Invoices.UpdateStatus(ctx, inv.ID, inv.Status, invoice.StatusPaid, now)
		if err != nil {
			return nil, fmt.Errorf("payment: mark invoice paid: %w", err)
		}
		if p.Audit != nil {
			p.Audit.Record(ctx, "invoice.paid", "invoice", updatedInvoice.ID.String(), map[string]any{
				"payment_id": updated.ID.String(), "paid_at": updatedInvoice.PaidAt,
			})
		}
	}

	return updated, nil
}

// invoiceEligibleForPayment reports whether an invoice may still
// receive a payment webhook: it must be finalized (or already moving
// through the post-payment lifecycle, so a duplicate webhook for an
// already-paid invoice does not spuriously fail).
func invoiceEligibleForPayment(status invoice.Status) bool {
	switch status {
	case invoice.StatusFinalized, invoice.StatusSent, invoice.StatusPaid, invoice.StatusOverdue:
		return true
	default:
		return false
	}
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now()
}
