package invoice

import (
	"context"
	"time"

	"github.com/invoiceflow/billing/id"
)

// Store persists invoices and their line items.
type Store interface {
	// Create inserts inv (with its line items) in a single transaction,
	// re-checking the (OrgID, Month, Year) uniqueness for non-cancelled
	// invoices before insert.
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	GetByPeriod(ctx context.Context, orgID id.OrgID, month, year int) (*Invoice, error)
	List(ctx context.Context, orgID id.OrgID, opts ListOpts) ([]*Invoice, error)
	// Finalize performs the conditional update: succeeds only if the
	// invoice's current status is draft.
	Finalize(ctx context.Context, invID id.InvoiceID, finalizedAt time.Time) (*Invoice, error)
	// UpdateStatus performs a conditional status transition, asserting
	// the row's current status matches expectedCurrent. Used by payment
	// capture and refund processing to move a finalized invoice into
	// paid/refunded/cancelled/void.
	UpdateStatus(ctx context.Context, invID id.InvoiceID, expectedCurrent, next Status, ts time.Time) (*Invoice, error)
}

// ListOpts filters List.
type ListOpts struct {
	Status Status
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
