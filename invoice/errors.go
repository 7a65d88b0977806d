package invoice

import "errors"

var (
	// ErrNotFound is returned by Store.Get/GetByPeriod when no matching
	// invoice exists.
	ErrNotFound = errors.New("invoice: not found")
	// ErrNotDraft is returned by Store.Finalize when the invoice's
	// current status is not draft.
	ErrNotDraft = errors.New("invoice: not in draft status")
	// ErrFinalized is returned when a caller attempts to mutate a
	// finalized invoice's monetary fields, billing window, or line
	// items (spec.md §6's immutability trigger).
	ErrFinalized = errors.New("invoice: finalized invoices are immutable")
	// ErrInvalidTransition is returned by Store.UpdateStatus when
	// expectedCurrent does not match the row's actual status, or next
	// is not a valid post-finalize transition.
	ErrInvalidTransition = errors.New("invoice: invalid status transition")
)
