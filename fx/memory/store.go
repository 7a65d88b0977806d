// Package memory provides an in-process fx.Store for tests.
package memory

import (
	"context"
	"sync"

	"github.com/invoiceflow/billing/fx"
)

type pairKey struct{ base, target string }

// Store is a map-backed fx.Store.
type Store struct {
	mu   sync.RWMutex
	rows map[pairKey][]fx.ExchangeRate
}

var _ fx.Store = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[pairKey][]fx.ExchangeRate)}
}

func (s *Store) Upsert(_ context.Context, rate fx.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{rate.Base, rate.Target}
	rows := s.rows[key]

	// Close out the previous active row (EffectiveTo == nil) at the new
	// row's EffectiveFrom.
	for i, r := range rows {
		if r.EffectiveTo == nil {
			closed := rate.EffectiveFrom
			rows[i].EffectiveTo = &closed
		}
	}

	s.rows[key] = append(rows, rate)
	return nil
}

func (s *Store) Table(_ context.Context) (fx.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out fx.Table
	for _, rows := range s.rows {
		out = append(out, rows...)
	}
	return out, nil
}
