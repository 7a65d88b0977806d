// Package postgres implements the billing engine's Store interfaces
// against PostgreSQL using pgx directly. Every domain entity already
// round-trips through encoding/json (money.Amount and money.Rate both
// implement MarshalJSON/UnmarshalJSON), so each table stores the full
// struct as a JSONB "data" column alongside the handful of plain
// columns its Store interface actually filters or uniquely constrains
// on, rather than hand-mapping every field to its own column.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/store"
)

var _ store.Lifecycle = (*DB)(nil)

// DB owns the connection pool shared by every per-domain store type in
// this package.
type DB struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against dsn. Callers should call Migrate
// before using the returned DB against a fresh database.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Ping verifies the connection pool is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Invoices returns an invoice.Store backed by db.
func (db *DB) Invoices() *InvoiceStore { return &InvoiceStore{pool: db.pool} }

// Payments returns a payment.Store backed by db.
func (db *DB) Payments() *PaymentStore { return &PaymentStore{pool: db.pool} }

// Refunds returns a refund.Store backed by db.
func (db *DB) Refunds() *RefundStore { return &RefundStore{pool: db.pool} }

// Usage returns a usage.DurableStore backed by db.
func (db *DB) Usage() *DurableStore { return &DurableStore{pool: db.pool} }

// Orgs returns an org.OrgStore backed by db.
func (db *DB) Orgs() *OrgStore { return &OrgStore{pool: db.pool} }

// Projects returns an org.ProjectStore backed by db.
func (db *DB) Projects() *ProjectStore { return &ProjectStore{pool: db.pool} }

// Idempotency returns an idempotency.Store backed by db.
func (db *DB) Idempotency() *IdempotencyStore { return &IdempotencyStore{pool: db.pool} }

// FX returns an fx.Store backed by db.
func (db *DB) FX() *FXStore { return &FXStore{pool: db.pool} }

// Reconciliation returns a reconcile.Store backed by db.
func (db *DB) Reconciliation() *ReconcileStore { return &ReconcileStore{pool: db.pool} }

// Rules returns an invoice.RuleSource backed by db.
func (db *DB) Rules() *RuleStore { return &RuleStore{pool: db.pool} }

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
