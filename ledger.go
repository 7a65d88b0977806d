package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/invoiceflow/billing/audit"
	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/idempotency"
	"github.com/invoiceflow/billing/internal/config"
	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/migration"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
	"github.com/invoiceflow/billing/plugin"
	"github.com/invoiceflow/billing/reconcile"
	"github.com/invoiceflow/billing/refund"
	"github.com/invoiceflow/billing/store"
	"github.com/invoiceflow/billing/usage"
)

// Engine is the billing engine: it owns the store, wires every domain
// package's orchestrator against it, and exposes the operations
// spec.md names as the system's external surface — usage ingestion,
// invoice generation, payment order creation, gateway webhook
// handling, refunds, reconciliation, and migration.
type Engine struct {
	Store   *store.Store
	Config  config.Config
	Plugins *plugin.Registry
	Audit   audit.Recorder
	Logger  *slog.Logger

	Gateway *gateway.Client

	Invoices   *invoice.Generator
	Payments   *payment.Processor
	Refunds    *refund.Engine
	Reconciler *reconcile.Reconciler
	Migration  *migration.Worker
	Retry      *payment.RetryScheduler

	idempotent *idempotency.Registry
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its plugin
// registry.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = logger
		e.Plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin against the engine's registry.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.Plugins.Register(p)
	}
}

// WithAudit overrides the default slog-backed audit recorder.
func WithAudit(rec audit.Recorder) Option {
	return func(e *Engine) { e.Audit = rec }
}

// New assembles an Engine from s, cfg, and a gateway client, wiring
// every domain orchestrator against the same store, idempotency
// registry, audit recorder, and plugin bus. Call SetHotStore once the
// deploy's chosen hot-event-store driver (Redis or SQLite) is ready,
// before calling RunMigration.
func New(s *store.Store, cfg config.Config, gw *gateway.Client, opts ...Option) *Engine {
	e := &Engine{
		Store:   s,
		Config:  cfg,
		Plugins: plugin.NewRegistry(),
		Logger:  slog.Default(),
		Gateway: gw,
	}
	e.Audit = audit.New(audit.LogSink{})
	e.idempotent = idempotency.New(s.Idempotency)

	for _, opt := range opts {
		opt(e)
	}

	retryCfg := payment.RetryConfig{
		Enabled:           cfg.PaymentRetryEnabled,
		MaxRetries:        cfg.PaymentRetryMaxRetries,
		BaseIntervalHours: int(cfg.PaymentRetryBaseInterval.Hours()),
	}

	e.Invoices = &invoice.Generator{
		Store:      s.Invoices,
		Durable:    s.Usage,
		Rules:      s.Rules,
		FX:         s.FX,
		Idempotent: e.idempotent,
		Audit:      e.Audit,
	}
	e.Payments = &payment.Processor{
		Store:       s.Payments,
		Invoices:    s.Invoices,
		Idempotent:  e.idempotent,
		Audit:       e.Audit,
		RetryConfig: retryCfg,
	}
	e.Refunds = &refund.Engine{
		Refunds:    s.Refunds,
		Payments:   s.Payments,
		Invoices:   s.Invoices,
		Gateway:    gw,
		Idempotent: e.idempotent,
		Audit:      e.Audit,
	}
	e.Reconciler = &reconcile.Reconciler{
		Durable:  s.Usage,
		Payments: s.Payments,
		Runs:     s.Reconcile,
		Audit:    e.Audit,
	}
	e.Retry = &payment.RetryScheduler{
		Store:   s.Payments,
		Gateway: gw,
		Config:  retryCfg,
		Audit:   e.Audit,
	}

	return e
}

// SetHotStore attaches the hot event store (Redis or SQLite) the
// migration worker drains and the reconciler cross-checks against. It
// is set separately from New because the hot store driver is chosen at
// deploy time independently of the durable store driver.
func (e *Engine) SetHotStore(hot usage.HotStore) {
	e.Migration = migration.New(hot, e.Store.Usage, migration.Config{
		BatchSize:  e.Config.MigrationBatchSize,
		MaxBatches: e.Config.MigrationMaxBatches,
	})
	e.Reconciler.Hot = hot
}

// Ingest accepts one usage event into hot (spec.md C3). It is the
// engine's highest-throughput path and does not go through the
// idempotency registry — HotStore.Put's unique constraint on
// IdempotencyKey already makes a repeat insert a no-op.
func (e *Engine) Ingest(ctx context.Context, hot usage.HotStore, evt *usage.Event) (usage.PutResult, error) {
	result, err := hot.Put(ctx, evt)
	if err != nil {
		return result, DatabaseError{Op: "usage.Put", Err: err}
	}
	if result == usage.New {
		e.Plugins.EmitEventIngested(ctx, evt)
	}
	return result, nil
}

// GenerateInvoice runs C7's generate(org, month, year). The caller
// decides separately when to finalize the returned draft.
func (e *Engine) GenerateInvoice(ctx context.Context, orgID id.OrgID, month, year int) (*invoice.Invoice, error) {
	inv, err := e.Invoices.Generate(ctx, orgID, month, year)
	if err != nil {
		return nil, err
	}
	e.Plugins.EmitInvoiceGenerated(ctx, inv)
	return inv, nil
}

// FinalizeInvoice transitions a draft invoice to finalized, making it
// eligible for a payment order.
func (e *Engine) FinalizeInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := e.Invoices.Finalize(ctx, invID)
	if err != nil {
		return nil, err
	}
	e.Plugins.EmitInvoiceFinalized(ctx, inv)
	return inv, nil
}

// CreatePaymentOrder places a gateway order for a finalized invoice
// and persists the Payment row the webhook path will later locate by
// gateway order id — the payment-order HTTP endpoint spec.md names.
// The invoice must already be finalized.
func (e *Engine) CreatePaymentOrder(ctx context.Context, inv *invoice.Invoice) (*payment.Payment, gateway.Order, error) {
	if !inv.Finalized() {
		return nil, gateway.Order{}, ValidationError{Field: "invoice.status", Message: "invoice must be finalized before a payment order can be placed"}
	}

	order, err := e.Gateway.CreateOrder(ctx, inv.ID.String(), inv.Total, time.Now())
	if err != nil {
		return nil, gateway.Order{}, PaymentError{Reason: "create_order", Err: err}
	}

	pay := &payment.Payment{
		ID:             id.NewPaymentID(),
		OrgID:          inv.OrgID,
		InvoiceID:      inv.ID,
		Number:         fmt.Sprintf("PAY-%s", inv.ID.String()),
		GatewayOrderID: order.GatewayOrderID,
		Amount:         inv.Total,
		Status:         payment.StatusPending,
	}
	if err := e.Store.Payments.Create(ctx, pay); err != nil {
		return nil, gateway.Order{}, DatabaseError{Op: "payment.Create", Err: err}
	}

	return pay, order, nil
}

// ProcessPaymentWebhook applies an inbound gateway webhook event
// (already signature-verified by gateway.VerifyWebhookSignature) to
// the owning payment and, on capture, its invoice.
func (e *Engine) ProcessPaymentWebhook(ctx context.Context, event payment.WebhookEvent) (*payment.Payment, error) {
	pay, err := e.Payments.Process(ctx, event)
	if err != nil {
		return nil, err
	}
	switch pay.Status {
	case payment.StatusCaptured:
		e.Plugins.EmitPaymentCaptured(ctx, pay)
	case payment.StatusFailed:
		e.Plugins.EmitPaymentFailed(ctx, pay)
	}
	return pay, nil
}

// RequestRefund issues a refund request against a captured payment.
func (e *Engine) RequestRefund(ctx context.Context, idempotencyKey string, paymentID id.PaymentID, amount money.Amount, reason string) (*refund.Refund, error) {
	r, err := e.Refunds.Request(ctx, idempotencyKey, paymentID, amount, reason)
	if err != nil {
		return nil, err
	}
	e.Plugins.EmitRefundRequested(ctx, r)
	return r, nil
}

// ProcessRefundWebhook applies an inbound "refund.*" gateway event to
// the owning refund.
func (e *Engine) ProcessRefundWebhook(ctx context.Context, event refund.WebhookEvent) (*refund.Refund, error) {
	r, err := e.Refunds.ProcessWebhook(ctx, event)
	if err != nil {
		return nil, err
	}
	e.Plugins.EmitRefundProcessed(ctx, r)
	return r, nil
}

// RunMigration drains the hot store into the durable store.
func (e *Engine) RunMigration(ctx context.Context) (migration.Result, error) {
	start := time.Now()
	result, err := e.Migration.Run(ctx)
	if err != nil {
		return result, DatabaseError{Op: "migration.Run", Err: err}
	}
	e.Plugins.EmitUsageMigrated(ctx, result.EventsMigrated, time.Since(start))
	return result, nil
}

// RunPaymentRetries drives the payment retry scheduler over every
// retryable payment.
func (e *Engine) RunPaymentRetries(ctx context.Context) (payment.RetryResult, error) {
	return e.Retry.Run(ctx)
}

// RunHotEventPurge deletes hot-store events processed more than
// D1RetentionDays ago (spec.md §6: D1_RETENTION_DAYS).
func (e *Engine) RunHotEventPurge(ctx context.Context, hot usage.HotStore) (int64, error) {
	before := time.Now().AddDate(0, 0, -e.Config.D1RetentionDays)
	n, err := hot.Purge(ctx, before)
	if err != nil {
		return 0, DatabaseError{Op: "usage.Purge", Err: err}
	}
	return n, nil
}
