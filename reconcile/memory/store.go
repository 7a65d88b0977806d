// Package memory is an in-process reconcile.Store for tests.
package memory

import (
	"context"
	"sync"

	"github.com/invoiceflow/billing/reconcile"
)

// Store is a mutex-guarded in-memory reconcile.Store.
type Store struct {
	mu   sync.Mutex
	runs []*reconcile.Run
}

func New() *Store {
	return &Store{}
}

func (s *Store) Create(_ context.Context, r *reconcile.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *Store) ListByScope(_ context.Context, scope reconcile.Scope) ([]*reconcile.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reconcile.Run
	for _, r := range s.runs {
		if r.Scope == scope {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}
