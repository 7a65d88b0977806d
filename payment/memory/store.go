// Package memory is an in-process Store implementation for payment,
// used by tests and by the single-process reference deployment.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
)

type notFoundError struct {
	id string
}

func (e notFoundError) Error() string { return fmt.Sprintf("payment: %s not found", e.id) }

// Store is a mutex-guarded in-memory payment.Store.
type Store struct {
	mu           sync.RWMutex
	payments     map[string]*payment.Payment
	byGatewayOrd map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		payments:     make(map[string]*payment.Payment),
		byGatewayOrd: make(map[string]string),
	}
}

func (s *Store) Create(ctx context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payments[p.ID.String()] = &cp
	if p.GatewayOrderID != "" {
		s.byGatewayOrd[p.GatewayOrderID] = p.ID.String()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[payID.String()]
	if !ok {
		return nil, notFoundError{payID.String()}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payID, ok := s.byGatewayOrd[gatewayOrderID]
	if !ok {
		return nil, notFoundError{gatewayOrderID}
	}
	cp := *s.payments[payID]
	return &cp, nil
}

func (s *Store) UpdateFromWebhook(ctx context.Context, payID id.PaymentID, next payment.Status, method string, reconciledAt time.Time, nextRetryAt *time.Time) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[payID.String()]
	if !ok {
		return nil, notFoundError{payID.String()}
	}
	p.Status = next
	if method != "" {
		p.Method = method
	}
	p.ReconciledAt = &reconciledAt
	p.NextRetryAt = nextRetryAt
	if next == payment.StatusCaptured {
		t := reconciledAt
		p.PaidAt = &t
	}
	cp := *p
	return &cp, nil
}

func (s *Store) RecordRetryAttempt(ctx context.Context, payID id.PaymentID, attempt payment.RetryAttempt, nextRetryAt *time.Time, finalFailure bool) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[payID.String()]
	if !ok {
		return nil, notFoundError{payID.String()}
	}
	p.RetryCount++
	t := attempt.AttemptedAt
	p.LastRetryAt = &t
	p.RetryHistory = append(p.RetryHistory, attempt)
	p.NextRetryAt = nextRetryAt
	if finalFailure {
		if p.Metadata == nil {
			p.Metadata = make(map[string]string)
		}
		p.Metadata["final_failure"] = "true"
		p.NextRetryAt = nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ApplyRefund(ctx context.Context, payID id.PaymentID, amount money.Amount, refundedAt time.Time) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[payID.String()]
	if !ok {
		return nil, notFoundError{payID.String()}
	}
	p.RefundAmount = p.RefundAmount.Add(amount)
	t := refundedAt
	p.RefundedAt = &t
	if p.RefundAmount.Cmp(p.Amount) >= 0 {
		p.Status = payment.StatusRefunded
	} else {
		p.Status = payment.StatusPartiallyRefunded
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListRetryable(ctx context.Context, now time.Time) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*payment.Payment
	for _, p := range s.payments {
		if p.Status != payment.StatusFailed {
			continue
		}
		if p.FinalFailure() {
			continue
		}
		if p.NextRetryAt == nil || p.NextRetryAt.After(now) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListUnreconciled(ctx context.Context, orgID id.OrgID, date time.Time) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, m, d := date.Date()
	var out []*payment.Payment
	for _, p := range s.payments {
		if !p.OrgID.Equal(orgID) {
			continue
		}
		if p.GatewayPaymentID != "" {
			continue
		}
		if p.ReconciledAt != nil {
			continue
		}
		ty, tm, td := p.CreatedAt.Date()
		if ty != y || tm != m || td != d {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}
