package postgres

import (
	"context"
	"fmt"
)

// migration is one forward-only schema change, tracked by version in
// schema_migrations so Migrate only applies what hasn't run yet.
//
// Rows in every table below store the full domain struct as JSONB in
// "data" (every entity in this module already round-trips through
// encoding/json, since money.Amount/Rate implement MarshalJSON), with
// a handful of plain columns duplicated out of that JSON for the
// predicates the Store interfaces actually filter or uniquely
// constrain on. This keeps the schema proportional to what's queried
// instead of hand-mapping every field to a column.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{1, "create_orgs", `
CREATE TABLE IF NOT EXISTS orgs (
    id   TEXT PRIMARY KEY,
    data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`},
	{2, "create_projects", `
CREATE TABLE IF NOT EXISTS projects (
    id           TEXT PRIMARY KEY,
    org_id       TEXT NOT NULL,
    api_key_hash TEXT NOT NULL DEFAULT '',
    data         JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_projects_org ON projects (org_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_api_key_hash ON projects (api_key_hash) WHERE api_key_hash <> '';`},
	{3, "create_invoices", `
CREATE TABLE IF NOT EXISTS invoices (
    id         TEXT PRIMARY KEY,
    org_id     TEXT NOT NULL,
    month      INT NOT NULL,
    year       INT NOT NULL,
    status     TEXT NOT NULL,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_period ON invoices (org_id, month, year) WHERE status <> 'cancelled';
CREATE INDEX IF NOT EXISTS idx_invoices_org ON invoices (org_id);`},
	{4, "create_payments", `
CREATE TABLE IF NOT EXISTS payments (
    id                 TEXT PRIMARY KEY,
    org_id             TEXT NOT NULL,
    invoice_id         TEXT NOT NULL,
    gateway_order_id   TEXT NOT NULL DEFAULT '',
    gateway_payment_id TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    next_retry_at      TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    data               JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments (invoice_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_order ON payments (gateway_order_id) WHERE gateway_order_id <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_payment ON payments (gateway_payment_id) WHERE gateway_payment_id <> '';
CREATE INDEX IF NOT EXISTS idx_payments_retryable ON payments (status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_payments_unreconciled ON payments (org_id, created_at) WHERE gateway_payment_id = '';`},
	{5, "create_refunds", `
CREATE TABLE IF NOT EXISTS refunds (
    id                TEXT PRIMARY KEY,
    payment_id        TEXT NOT NULL,
    gateway_refund_id TEXT NOT NULL DEFAULT '',
    data              JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refunds_payment ON refunds (payment_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_refunds_gateway_refund ON refunds (gateway_refund_id) WHERE gateway_refund_id <> '';`},
	{6, "create_durable_events", `
CREATE TABLE IF NOT EXISTS durable_events (
    id              TEXT PRIMARY KEY,
    org_id          TEXT NOT NULL,
    project_id      TEXT NOT NULL,
    metric          TEXT NOT NULL,
    idempotency_key TEXT NOT NULL,
    ts              TIMESTAMPTZ NOT NULL,
    data            JSONB NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_durable_events_idemp ON durable_events (idempotency_key);
CREATE INDEX IF NOT EXISTS idx_durable_events_scope ON durable_events (org_id, project_id, metric, ts);`},
	{7, "create_usage_aggregates", `
CREATE TABLE IF NOT EXISTS usage_aggregates (
    org_id     TEXT NOT NULL,
    project_id TEXT NOT NULL,
    metric     TEXT NOT NULL,
    unit       TEXT NOT NULL,
    month      INT NOT NULL,
    year       INT NOT NULL,
    data       JSONB NOT NULL,
    PRIMARY KEY (org_id, project_id, metric, unit, month, year)
);
CREATE INDEX IF NOT EXISTS idx_usage_aggregates_org_period ON usage_aggregates (org_id, month, year);`},
	{8, "create_idempotency_records", `
CREATE TABLE IF NOT EXISTS idempotency_records (
    key          TEXT PRIMARY KEY,
    entity_type  TEXT NOT NULL,
    entity_id    TEXT NOT NULL DEFAULT '',
    request_hash TEXT NOT NULL DEFAULT '',
    expires_at   TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_idempotency_expires ON idempotency_records (expires_at);`},
	{9, "create_fx_rates", `
CREATE TABLE IF NOT EXISTS fx_rates (
    base           TEXT NOT NULL,
    target         TEXT NOT NULL,
    effective_from TIMESTAMPTZ NOT NULL,
    data           JSONB NOT NULL,
    PRIMARY KEY (base, target, effective_from)
);`},
	{10, "create_reconciliation_runs", `
CREATE TABLE IF NOT EXISTS reconciliation_runs (
    id         TEXT PRIMARY KEY,
    scope      TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    data       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reconciliation_scope ON reconciliation_runs (scope);`},
	{11, "create_pricing_tables", `
CREATE TABLE IF NOT EXISTS pricing_rules (
    id     TEXT PRIMARY KEY,
    org_id TEXT NOT NULL DEFAULT '',
    data   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pricing_rules_org ON pricing_rules (org_id);

CREATE TABLE IF NOT EXISTS minimum_charge_rules (
    id     TEXT PRIMARY KEY,
    org_id TEXT NOT NULL DEFAULT '',
    data   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_min_charge_rules_org ON minimum_charge_rules (org_id);

CREATE TABLE IF NOT EXISTS billing_configs (
    org_id TEXT PRIMARY KEY,
    data   JSONB NOT NULL
);`},
}

// Migrate applies every migration not yet recorded in
// schema_migrations, in version order, each inside its own transaction.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`); err != nil {
		return fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("postgres: check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("postgres: apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("postgres: record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
