// Package store composes the billing engine's per-domain Store
// interfaces into one handle each driver package can satisfy.
//
// The teacher's unified Store declared every sub-domain's methods on a
// single flat interface with distinctly-prefixed names (CreatePlan vs
// CreateSubscription) specifically to avoid name collisions. This
// module's domain packages each already declare their own narrowly
// named Store interface (invoice.Store.Create, payment.Store.Create,
// ...), so a single Go type can't implement all of them at once — Go
// forbids one type satisfying two interfaces whose method names
// collide with different signatures. Store is therefore a struct of
// named accessors instead of one embedding interface; each field is
// satisfied independently by whichever driver constructs it.
package store

import (
	"context"

	"github.com/invoiceflow/billing/fx"
	"github.com/invoiceflow/billing/idempotency"
	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/org"
	"github.com/invoiceflow/billing/payment"
	"github.com/invoiceflow/billing/reconcile"
	"github.com/invoiceflow/billing/refund"
	"github.com/invoiceflow/billing/usage"
)

// Store is every persistence seam the billing engine needs, grouped
// by domain. A driver package constructs one of these by assigning its
// own per-domain types to the fields whose interface they satisfy.
type Store struct {
	Orgs        org.OrgStore
	Projects    org.ProjectStore
	Invoices    invoice.Store
	Rules       invoice.RuleSource
	Payments    payment.Store
	Refunds     refund.Store
	Usage       usage.DurableStore
	Idempotency idempotency.Store
	FX          fx.Store
	Reconcile   reconcile.Store
}

// Lifecycle is implemented by driver packages that own a real
// connection and need explicit setup/teardown: store/postgres's DB
// implements it. store/sqlite's Store has Migrate and Close but no
// Ping, so it does not satisfy it; store/memory has no connection to
// manage and doesn't implement it.
type Lifecycle interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
