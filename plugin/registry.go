package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/payment"
	"github.com/invoiceflow/billing/reconcile"
	"github.com/invoiceflow/billing/refund"
	"github.com/invoiceflow/billing/usage"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so each Emit call touches only the
// plugins that implement the corresponding hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	onInit              []OnInit
	onShutdown          []OnShutdown
	onEventIngested     []OnEventIngested
	onUsageMigrated     []OnUsageMigrated
	onInvoiceGenerated  []OnInvoiceGenerated
	onInvoiceFinalized  []OnInvoiceFinalized
	onInvoicePaid       []OnInvoicePaid
	onInvoiceRefunded   []OnInvoiceRefunded
	onPaymentCaptured   []OnPaymentCaptured
	onPaymentFailed     []OnPaymentFailed
	onPaymentRetried    []OnPaymentRetried
	onRefundRequested   []OnRefundRequested
	onRefundProcessed   []OnRefundProcessed
	onReconciliationRun []OnReconciliationRun
}

// NewRegistry creates a new, empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches the hooks it
// implements. Returns an error if a plugin with the same name is
// already registered.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEventIngested); ok {
		r.onEventIngested = append(r.onEventIngested, v)
	}
	if v, ok := p.(OnUsageMigrated); ok {
		r.onUsageMigrated = append(r.onUsageMigrated, v)
	}
	if v, ok := p.(OnInvoiceGenerated); ok {
		r.onInvoiceGenerated = append(r.onInvoiceGenerated, v)
	}
	if v, ok := p.(OnInvoiceFinalized); ok {
		r.onInvoiceFinalized = append(r.onInvoiceFinalized, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceRefunded); ok {
		r.onInvoiceRefunded = append(r.onInvoiceRefunded, v)
	}
	if v, ok := p.(OnPaymentCaptured); ok {
		r.onPaymentCaptured = append(r.onPaymentCaptured, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnPaymentRetried); ok {
		r.onPaymentRetried = append(r.onPaymentRetried, v)
	}
	if v, ok := p.(OnRefundRequested); ok {
		r.onRefundRequested = append(r.onRefundRequested, v)
	}
	if v, ok := p.(OnRefundProcessed); ok {
		r.onRefundProcessed = append(r.onRefundProcessed, v)
	}
	if v, ok := p.(OnReconciliationRun); ok {
		r.onReconciliationRun = append(r.onReconciliationRun, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns the names of the hook interfaces p
// implements, for registration logging.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			names = append(names, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnEventIngested)(nil)).Elem(), "OnEventIngested")
	check(reflect.TypeOf((*OnUsageMigrated)(nil)).Elem(), "OnUsageMigrated")
	check(reflect.TypeOf((*OnInvoiceGenerated)(nil)).Elem(), "OnInvoiceGenerated")
	check(reflect.TypeOf((*OnInvoiceFinalized)(nil)).Elem(), "OnInvoiceFinalized")
	check(reflect.TypeOf((*OnInvoicePaid)(nil)).Elem(), "OnInvoicePaid")
	check(reflect.TypeOf((*OnInvoiceRefunded)(nil)).Elem(), "OnInvoiceRefunded")
	check(reflect.TypeOf((*OnPaymentCaptured)(nil)).Elem(), "OnPaymentCaptured")
	check(reflect.TypeOf((*OnPaymentFailed)(nil)).Elem(), "OnPaymentFailed")
	check(reflect.TypeOf((*OnPaymentRetried)(nil)).Elem(), "OnPaymentRetried")
	check(reflect.TypeOf((*OnRefundRequested)(nil)).Elem(), "OnRefundRequested")
	check(reflect.TypeOf((*OnRefundProcessed)(nil)).Elem(), "OnRefundProcessed")
	check(reflect.TypeOf((*OnReconciliationRun)(nil)).Elem(), "OnReconciliationRun")

	return names
}

// Get returns a plugin by name, or nil if none is registered.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for every plugin that implements it.
func (r *Registry) EmitInit(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for every plugin that implements it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitEventIngested notifies plugins that a usage event was accepted.
func (r *Registry) EmitEventIngested(ctx context.Context, evt *usage.Event) {
	r.mu.RLock()
	plugins := r.onEventIngested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventIngested(ctx, evt)
		}); err != nil {
			r.logger.Warn("plugin OnEventIngested failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitUsageMigrated notifies plugins that a migration batch completed.
func (r *Registry) EmitUsageMigrated(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onUsageMigrated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageMigrated(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnUsageMigrated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitInvoiceGenerated notifies plugins that a draft invoice was generated.
func (r *Registry) EmitInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceGenerated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceGenerated(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceGenerated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitInvoiceFinalized notifies plugins that an invoice was finalized.
func (r *Registry) EmitInvoiceFinalized(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceFinalized
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceFinalized(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceFinalized failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitInvoicePaid notifies plugins that an invoice was marked paid.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoicePaid
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoicePaid(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoicePaid failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitInvoiceRefunded notifies plugins that an invoice reached the
// refunded status.
func (r *Registry) EmitInvoiceRefunded(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceRefunded(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceRefunded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPaymentCaptured notifies plugins that a payment was captured.
func (r *Registry) EmitPaymentCaptured(ctx context.Context, pay *payment.Payment) {
	r.mu.RLock()
	plugins := r.onPaymentCaptured
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentCaptured(ctx, pay)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentCaptured failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPaymentFailed notifies plugins that a payment webhook reported failure.
func (r *Registry) EmitPaymentFailed(ctx context.Context, pay *payment.Payment) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentFailed(ctx, pay)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentFailed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPaymentRetried notifies plugins after a retry-scheduler attempt.
func (r *Registry) EmitPaymentRetried(ctx context.Context, pay *payment.Payment, finalFailure bool) {
	r.mu.RLock()
	plugins := r.onPaymentRetried
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentRetried(ctx, pay, finalFailure)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentRetried failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRefundRequested notifies plugins that a refund request was accepted.
func (r *Registry) EmitRefundRequested(ctx context.Context, rf *refund.Refund) {
	r.mu.RLock()
	plugins := r.onRefundRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundRequested(ctx, rf)
		}); err != nil {
			r.logger.Warn("plugin OnRefundRequested failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRefundProcessed notifies plugins that the gateway confirmed a refund.
func (r *Registry) EmitRefundProcessed(ctx context.Context, rf *refund.Refund) {
	r.mu.RLock()
	plugins := r.onRefundProcessed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundProcessed(ctx, rf)
		}); err != nil {
			r.logger.Warn("plugin OnRefundProcessed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitReconciliationRun notifies plugins that a reconciliation run finished.
func (r *Registry) EmitReconciliationRun(ctx context.Context, run *reconcile.Run) {
	r.mu.RLock()
	plugins := r.onReconciliationRun
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReconciliationRun(ctx, run)
		}); err != nil {
			r.logger.Warn("plugin OnReconciliationRun failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls fn with a bounded timeout. Plugins must never
// block the billing pipeline they're observing.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
