// Package audit records a weak-reference trail of billing lifecycle
// events: every invoice, payment, refund, and reconciliation state
// transition names the entity it happened to but never owns it.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Action constants for audit events, one per billing lifecycle
// transition that packages in this module report.
const (
	ActionUsageIngested        = "usage.ingested"
	ActionUsageMigrated        = "usage.migrated"
	ActionInvoiceGenerated     = "invoice.generated"
	ActionInvoiceFinalized     = "invoice.finalized"
	ActionInvoicePaid          = "invoice.paid"
	ActionInvoiceRefunded      = "invoice.refunded"
	ActionPaymentWebhook       = "payment.webhook_processed"
	ActionPaymentRetry         = "payment.retry_attempted"
	ActionRefundRequested      = "refund.requested"
	ActionRefundProcessed      = "refund.processed"
	ActionReconciliationRun    = "reconciliation.run"
	ActionReconciliationDrift  = "reconciliation.discrepancy"
)

// Event is one recorded audit entry.
type Event struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Detail     map[string]any `json:"detail,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Recorder is the interface billing packages depend on. It matches the
// local AuditRecorder seams declared by invoice, payment, and refund so
// none of them needs to import this package directly.
type Recorder interface {
	Record(ctx context.Context, action, entityType, entityID string, detail map[string]any)
}

// Sink persists or forwards audit events. The default LogSink
// writes structured log lines; a production wiring can instead point
// this at a durable audit table.
type Sink interface {
	Write(ctx context.Context, evt Event) error
}

// Trail is a Recorder that forwards every event to a Sink, never
// failing the caller's operation if the sink errors — audit recording
// is best-effort and must not block billing state transitions.
type Trail struct {
	sink    Sink
	logger  *slog.Logger
	enabled map[string]bool // nil = all enabled
	now     func() time.Time
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

// WithEnabledActions restricts recording to the given actions. If
// never called, every action is recorded.
func WithEnabledActions(actions ...string) Option {
	return func(t *Trail) {
		t.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			t.enabled[a] = true
		}
	}
}

// New returns a Trail that writes events to sink.
func New(sink Sink, opts ...Option) *Trail {
	t := &Trail{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record implements Recorder. Sink failures are logged, not returned,
// so a broken audit backend never blocks the billing operation that
// triggered the event.
func (t *Trail) Record(ctx context.Context, action, entityType, entityID string, detail map[string]any) {
	if t.enabled != nil && !t.enabled[action] {
		return
	}
	evt := Event{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		RecordedAt: t.nowFunc(),
	}
	if err := t.sink.Write(ctx, evt); err != nil {
		t.logger.Warn("audit: failed to record event",
			"action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

func (t *Trail) nowFunc() time.Time {
	if t.now == nil {
		return time.Now().UTC()
	}
	return t.now()
}

// LogSink writes audit events as structured slog lines. It is the
// default sink for deployments that have not wired a durable audit
// store.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(_ context.Context, evt Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("audit",
		"action", evt.Action,
		"entity_type", evt.EntityType,
		"entity_id", evt.EntityID,
		"detail", evt.Detail,
		"recorded_at", evt.RecordedAt,
	)
	return nil
}
