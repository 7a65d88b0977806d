// Package memory provides an in-process invoice.Store for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/invoice"
)

type periodKey struct {
	org   string
	month int
	year  int
}

// Store is a map-backed invoice.Store.
type Store struct {
	mu       sync.RWMutex
	invoices map[string]*invoice.Invoice
	byPeriod map[periodKey]string // -> invoice id, for non-cancelled rows
}

var _ invoice.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		invoices: make(map[string]*invoice.Invoice),
		byPeriod: make(map[periodKey]string),
	}
}

func (s *Store) Create(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := periodKey{inv.OrgID.String(), inv.Month, inv.Year}
	if _, exists := s.byPeriod[key]; exists {
		return invoice.ErrInvalidTransition
	}

	cp := *inv
	s.invoices[cp.ID.String()] = &cp
	if cp.Status != invoice.StatusCancelled {
		s.byPeriod[key] = cp.ID.String()
	}
	return nil
}

func (s *Store) Get(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *Store) GetByPeriod(_ context.Context, orgID id.OrgID, month, year int) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invID, ok := s.byPeriod[periodKey{orgID.String(), month, year}]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	cp := *s.invoices[invID]
	return &cp, nil
}

func (s *Store) List(_ context.Context, orgID id.OrgID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if !inv.OrgID.Equal(orgID) {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Finalize(_ context.Context, invID id.InvoiceID, finalizedAt time.Time) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	if inv.Status != invoice.StatusDraft {
		return nil, invoice.ErrNotDraft
	}
	inv.Status = invoice.StatusFinalized
	stamped := finalizedAt
	inv.FinalizedAt = &stamped
	inv.Touch()

	cp := *inv
	return &cp, nil
}

func (s *Store) UpdateStatus(_ context.Context, invID id.InvoiceID, expectedCurrent, next invoice.Status, ts time.Time) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	if inv.Status != expectedCurrent {
		return nil, invoice.ErrInvalidTransition
	}
	if inv.Finalized() && !next.ValidPostFinalizeTransition() {
		return nil, invoice.ErrFinalized
	}

	inv.Status = next
	if next == invoice.StatusPaid {
		stamped := ts
		inv.PaidAt = &stamped
	}
	// Only cancelled invoices are excluded from the (org, month, year)
	// uniqueness constraint (spec.md §3); a void invoice still occupies
	// its period slot.
	if next == invoice.StatusCancelled {
		delete(s.byPeriod, periodKey{inv.OrgID.String(), inv.Month, inv.Year})
	}
	inv.Touch()

	cp := *inv
	return &cp, nil
}
