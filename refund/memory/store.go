// Package memory is an in-process refund.Store for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/refund"
)

type notFoundError struct{ id string }

func (e notFoundError) Error() string { return fmt.Sprintf("refund: %s not found", e.id) }

// Store is a mutex-guarded in-memory refund.Store.
type Store struct {
	mu            sync.RWMutex
	refunds       map[string]*refund.Refund
	byGatewayID   map[string]string
	byPayment     map[string][]string
}

func New() *Store {
	return &Store{
		refunds:     make(map[string]*refund.Refund),
		byGatewayID: make(map[string]string),
		byPayment:   make(map[string][]string),
	}
}

func (s *Store) Create(ctx context.Context, r *refund.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.refunds[r.ID.String()] = &cp
	s.byPayment[r.PaymentID.String()] = append(s.byPayment[r.PaymentID.String()], r.ID.String())
	if r.GatewayRefundID != "" {
		s.byGatewayID[r.GatewayRefundID] = r.ID.String()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, refundID id.RefundID) (*refund.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.refunds[refundID.String()]
	if !ok {
		return nil, notFoundError{refundID.String()}
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetByGatewayRefundID(ctx context.Context, gatewayRefundID string) (*refund.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refID, ok := s.byGatewayID[gatewayRefundID]
	if !ok {
		return nil, notFoundError{gatewayRefundID}
	}
	cp := *s.refunds[refID]
	return &cp, nil
}

func (s *Store) UpdateStatus(ctx context.Context, refundID id.RefundID, next refund.Status, processedAt *time.Time) (*refund.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[refundID.String()]
	if !ok {
		return nil, notFoundError{refundID.String()}
	}
	r.Status = next
	r.ProcessedAt = processedAt
	if r.GatewayRefundID != "" {
		s.byGatewayID[r.GatewayRefundID] = r.ID.String()
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]*refund.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*refund.Refund
	for _, rid := range s.byPayment[paymentID.String()] {
		cp := *s.refunds[rid]
		out = append(out, &cp)
	}
	return out, nil
}
