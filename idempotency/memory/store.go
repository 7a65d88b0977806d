// Package memory provides an in-process idempotency.Store backed by a
// map and a mutex, for unit tests and the in-memory store driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/invoiceflow/billing/idempotency"
)

// Store is a map-backed idempotency.Store. The zero value is ready to use.
type Store struct {
	mu      sync.Mutex
	records map[string]idempotency.Record
}

var _ idempotency.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]idempotency.Record)}
}

func (s *Store) Get(_ context.Context, key string) (idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lockedGet(key)
	return rec, ok, nil
}

func (s *Store) Reserve(_ context.Context, key, entityType, requestHash string, expiresAt *time.Time) (bool, idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		s.records = make(map[string]idempotency.Record)
	}

	if existing, ok := s.lockedGet(key); ok {
		return false, existing, nil
	}

	rec := idempotency.Record{
		Key:         key,
		EntityType:  entityType,
		RequestHash: requestHash,
		ExpiresAt:   expiresAt,
	}
	s.records[key] = rec
	return true, idempotency.Record{}, nil
}

func (s *Store) Complete(_ context.Context, key, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return errNotReserved(key)
	}
	rec.EntityID = entityID
	s.records[key] = rec
	return nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for k, rec := range s.records {
		if rec.ExpiresAt != nil && rec.ExpiresAt.Before(before) {
			delete(s.records, k)
			purged++
		}
	}
	return purged, nil
}

// lockedGet returns the record for key if present and not expired,
// evicting it lazily if its expiry has passed. Caller must hold s.mu.
func (s *Store) lockedGet(key string) (idempotency.Record, bool) {
	rec, ok := s.records[key]
	if !ok {
		return idempotency.Record{}, false
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		delete(s.records, key)
		return idempotency.Record{}, false
	}
	return rec, true
}

func errNotReserved(key string) error {
	return &notReservedError{key: key}
}

type notReservedError struct{ key string }

func (e *notReservedError) Error() string {
	return "idempotency/memory: key " + e.key + " was never reserved"
}
