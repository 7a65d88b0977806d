// Package invoice implements invoice persistence and finalization
// (spec.md C7): generating a draft invoice from a CalculatedInvoice,
// enforcing monthly uniqueness, and the finalize state transition after
// which monetary fields and line items become immutable.
package invoice

import (
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/types"
)

// Status is an invoice's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
	StatusVoid      Status = "void"
)

// terminal is the set of statuses an invoice cannot leave.
var terminal = map[Status]bool{
	StatusPaid:      true,
	StatusRefunded:  true,
	StatusCancelled: true,
	StatusVoid:      true,
}

// postFinalize is the only set of statuses a finalized invoice may
// transition into (spec.md §4.7).
var postFinalize = map[Status]bool{
	StatusPaid:      true,
	StatusRefunded:  true,
	StatusCancelled: true,
	StatusVoid:      true,
}

// Invoice is a billing period's charge summary for one organisation.
// Unique on (OrgID, Month, Year) among rows whose Status != cancelled.
type Invoice struct {
	types.Entity
	ID                id.InvoiceID      `json:"id"`
	OrgID             id.OrgID          `json:"org_id"`
	Number            string            `json:"number"`
	Status            Status            `json:"status"`
	Subtotal          money.Amount      `json:"subtotal"`
	Tax               money.Amount      `json:"tax"`
	Discount          money.Amount      `json:"discount"`
	Total             money.Amount      `json:"total"`
	Currency          string            `json:"currency"`
	BillingPeriodStart time.Time        `json:"billing_period_start"`
	BillingPeriodEnd  time.Time         `json:"billing_period_end"`
	DueDate           time.Time         `json:"due_date"`
	Month             int               `json:"month"`
	Year              int               `json:"year"`
	FinalizedAt       *time.Time        `json:"finalized_at,omitempty"`
	IssuedAt          *time.Time        `json:"issued_at,omitempty"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	PDFURL            string            `json:"pdf_url,omitempty"`
	TemplateID        string            `json:"template_id,omitempty"`
	OriginalCurrency  string            `json:"original_currency,omitempty"`
	ExchangeRate      *money.Rate       `json:"exchange_rate,omitempty"`
	LineItems         []LineItem        `json:"line_items"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// LineItem is one charge on an Invoice. Unique on LineNumber within its
// parent invoice.
type LineItem struct {
	ID          id.LineItemID `json:"id"`
	InvoiceID   id.InvoiceID  `json:"invoice_id"`
	LineNumber  int           `json:"line_number"` // >= 1
	ProjectID   *id.ProjectID `json:"project_id,omitempty"`
	Description string        `json:"description"`
	Metric      string        `json:"metric,omitempty"`
	Quantity    money.Rate    `json:"quantity"`
	Unit        string        `json:"unit,omitempty"`
	UnitPrice   money.Rate    `json:"unit_price"`
	Total       money.Amount  `json:"total"`
	Currency    string        `json:"currency"`
}

// Finalized reports whether the invoice has passed C7's finalize step;
// from this point monetary fields, billing window, and line items are
// immutable and only transitions into postFinalize are permitted.
func (inv Invoice) Finalized() bool { return inv.FinalizedAt != nil }

// Terminal reports whether status cannot be left.
func (s Status) Terminal() bool { return terminal[s] }

// ValidPostFinalizeTransition reports whether moving a finalized invoice to s is
// allowed. Only called once Finalized() is true.
func (s Status) ValidPostFinalizeTransition() bool { return postFinalize[s] }
