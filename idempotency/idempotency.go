// Package idempotency implements the single-flight idempotency registry
// described in spec.md §4.2 (C2).
//
// register(key, entity-type, producer) -> entity-id: if key is unseen,
// producer runs once under a transaction and its result is stored under
// key; if key is already present, producer is never invoked and the
// stored entity id is returned instead. Concurrent first-time callers
// for the same key are serialized — in-process via
// golang.org/x/sync/singleflight, cross-process via the Store's unique
// constraint on key (spec.md §5).
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrConflict is returned when a caller opted into ReturnConflict and a
// producer for the same key is already in flight elsewhere.
var ErrConflict = errors.New("idempotency: producer already in flight for key")

// ErrRequestHashMismatch is returned when a key is reused with a
// different request payload than the one that originally claimed it.
var ErrRequestHashMismatch = errors.New("idempotency: request payload does not match the original request for this key")

// ConflictMode controls what a losing concurrent caller observes.
type ConflictMode int

const (
	// WaitForWinner polls until the in-flight producer completes and then
	// returns its result.
	WaitForWinner ConflictMode = iota
	// ReturnConflict fails fast with ErrConflict instead of waiting.
	ReturnConflict
)

// Record is the persisted row behind an idempotency key.
type Record struct {
	Key         string
	EntityType  string
	EntityID    string // empty while the producer for this key is still in flight
	RequestHash string
	ExpiresAt   *time.Time
}

// Completed reports whether a producer has already finished for this key.
func (r Record) Completed() bool { return r.EntityID != "" }

// Store is the durable half of the registry: it must enforce a unique
// constraint on Key so that concurrent first-time Reserve calls across
// processes race safely.
type Store interface {
	// Get returns the record for key, or (Record{}, false, nil) if unseen.
	Get(ctx context.Context, key string) (Record, bool, error)
	// Reserve atomically inserts a placeholder record for key if (and only
	// if) none exists yet. claimed is true iff this call created the row —
	// the caller is then responsible for running the producer and calling
	// Complete. If claimed is false, existing holds the record that won
	// the race (which may or may not be Completed yet).
	Reserve(ctx context.Context, key, entityType, requestHash string, expiresAt *time.Time) (claimed bool, existing Record, err error)
	// Complete stores the producer's result against an already-reserved key.
	Complete(ctx context.Context, key, entityID string) error
	// Release deletes a reservation, used when the producer fails so the
	// key can be retried from scratch.
	Release(ctx context.Context, key string) error
	// Purge deletes expired records.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Registry is the single-flight idempotency primitive.
type Registry struct {
	store Store
	group singleflight.Group

	// PollInterval controls how often WaitForWinner re-checks the store
	// for a cross-process winner's completion. Defaults to 50ms.
	PollInterval time.Duration
}

// New creates a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{store: store, PollInterval: 50 * time.Millisecond}
}

// Producer performs the side-effecting work whose result should be
// deduplicated by key. It returns the id of the entity it produced.
type Producer func(ctx context.Context) (entityID string, err error)

// Register runs producer at most once for key. It returns the entity id
// (either freshly produced or previously stored) and whether this call
// was the one that actually invoked producer.
func (r *Registry) Register(ctx context.Context, key, entityType, requestHash string, expiresAt *time.Time, mode ConflictMode, producer Producer) (entityID string, isNew bool, err error) {
	// Collapse concurrent in-process callers for the same key onto one
	// flight; the singleflight.Group result is shared verbatim.
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.registerOnce(ctx, key, entityType, requestHash, expiresAt, mode, producer)
	})
	if err != nil {
		return "", false, err
	}
	res := v.(registerResult)
	return res.entityID, res.isNew, nil
}

type registerResult struct {
	entityID string
	isNew    bool
}

func (r *Registry) registerOnce(ctx context.Context, key, entityType, requestHash string, expiresAt *time.Time, mode ConflictMode, producer Producer) (registerResult, error) {
	claimed, existing, err := r.store.Reserve(ctx, key, entityType, requestHash, expiresAt)
	if err != nil {
		return registerResult{}, fmt.Errorf("idempotency: reserve %q: %w", key, err)
	}

	if !claimed {
		if err := checkRequestHash(existing, requestHash); err != nil {
			return registerResult{}, err
		}
		if existing.Completed() {
			return registerResult{entityID: existing.EntityID, isNew: false}, nil
		}
		return r.awaitWinner(ctx, key, requestHash, mode)
	}

	if producer == nil {
		_ = r.store.Release(ctx, key)
		return registerResult{}, fmt.Errorf("idempotency: no producer supplied for unseen key %q", key)
	}

	entityID, err := producer(ctx)
	if err != nil {
		// Release the reservation so a future call can retry from scratch
		// instead of being stuck behind a permanently incomplete row.
		if relErr := r.store.Release(ctx, key); relErr != nil {
			return registerResult{}, fmt.Errorf("idempotency: producer failed (%w) and release failed: %v", err, relErr)
		}
		return registerResult{}, err
	}

	if err := r.store.Complete(ctx, key, entityID); err != nil {
		return registerResult{}, fmt.Errorf("idempotency: complete %q: %w", key, err)
	}
	return registerResult{entityID: entityID, isNew: true}, nil
}

func (r *Registry) awaitWinner(ctx context.Context, key, requestHash string, mode ConflictMode) (registerResult, error) {
	if mode == ReturnConflict {
		return registerResult{}, ErrConflict
	}

	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return registerResult{}, ctx.Err()
		case <-ticker.C:
			rec, ok, err := r.store.Get(ctx, key)
			if err != nil {
				return registerResult{}, err
			}
			if !ok {
				// The winner released its reservation (producer failed);
				// nothing to wait for anymore.
				return registerResult{}, fmt.Errorf("idempotency: winner for %q released the key, retry", key)
			}
			if err := checkRequestHash(rec, requestHash); err != nil {
				return registerResult{}, err
			}
			if rec.Completed() {
				return registerResult{entityID: rec.EntityID, isNew: false}, nil
			}
		}
	}
}

func (r *Registry) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return 50 * time.Millisecond
	}
	return r.PollInterval
}

func checkRequestHash(rec Record, requestHash string) error {
	if rec.RequestHash != "" && requestHash != "" && rec.RequestHash != requestHash {
		return ErrRequestHashMismatch
	}
	return nil
}
