package postgres

import "github.com/invoiceflow/billing/store"

// NewStore assembles a store.Store from db's per-domain accessors.
func NewStore(db *DB) *store.Store {
	return &store.Store{
		Orgs:        db.Orgs(),
		Projects:    db.Projects(),
		Invoices:    db.Invoices(),
		Rules:       db.Rules(),
		Payments:    db.Payments(),
		Refunds:     db.Refunds(),
		Usage:       db.Usage(),
		Idempotency: db.Idempotency(),
		FX:          db.FX(),
		Reconcile:   db.Reconciliation(),
	}
}
