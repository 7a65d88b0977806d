// Package plugin provides an extensible hook system for the billing
// engine. Plugins attach to lifecycle events — usage ingestion,
// invoice generation, payment capture, refund processing,
// reconciliation — without the emitting package needing to know who's
// listening. The audit trail does not go through this registry: it is
// recorded directly through audit.Recorder.
package plugin

import (
	"context"
	"time"

	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/payment"
	"github.com/invoiceflow/billing/reconcile"
	"github.com/invoiceflow/billing/refund"
	"github.com/invoiceflow/billing/usage"
)

// Plugin is the base interface every plugin must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Usage ingestion hooks
// ──────────────────────────────────────────────────

// OnEventIngested is called when a usage event is accepted into the
// hot store.
type OnEventIngested interface {
	Plugin
	OnEventIngested(ctx context.Context, evt *usage.Event) error
}

// OnUsageMigrated is called after a migration batch moves events from
// the hot store into the durable store.
type OnUsageMigrated interface {
	Plugin
	OnUsageMigrated(ctx context.Context, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceGenerated is called when a draft invoice is generated.
type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceFinalized is called when an invoice is finalized.
type OnInvoiceFinalized interface {
	Plugin
	OnInvoiceFinalized(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called when an invoice is marked paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceRefunded is called when an invoice is fully refunded.
type OnInvoiceRefunded interface {
	Plugin
	OnInvoiceRefunded(ctx context.Context, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCaptured is called when a payment is captured.
type OnPaymentCaptured interface {
	Plugin
	OnPaymentCaptured(ctx context.Context, pay *payment.Payment) error
}

// OnPaymentFailed is called when a payment webhook reports a failure.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, pay *payment.Payment) error
}

// OnPaymentRetried is called after a retry-scheduler attempt.
type OnPaymentRetried interface {
	Plugin
	OnPaymentRetried(ctx context.Context, pay *payment.Payment, finalFailure bool) error
}

// ──────────────────────────────────────────────────
// Refund lifecycle hooks
// ──────────────────────────────────────────────────

// OnRefundRequested is called when a refund request is accepted.
type OnRefundRequested interface {
	Plugin
	OnRefundRequested(ctx context.Context, r *refund.Refund) error
}

// OnRefundProcessed is called when the gateway confirms a refund.
type OnRefundProcessed interface {
	Plugin
	OnRefundProcessed(ctx context.Context, r *refund.Refund) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnReconciliationRun is called after any reconciliation loop finishes
// one scope.
type OnReconciliationRun interface {
	Plugin
	OnReconciliationRun(ctx context.Context, run *reconcile.Run) error
}
