package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/idempotency"
)

// IdempotencyStore is an idempotency.Store backed by idempotency_records.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

func (s *IdempotencyStore) Get(ctx context.Context, key string) (idempotency.Record, bool, error) {
	var rec idempotency.Record
	var entityID, requestHash string
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT entity_type, entity_id, request_hash, expires_at FROM idempotency_records WHERE key = $1`, key).
		Scan(&rec.EntityType, &entityID, &requestHash, &expiresAt)
	if isNoRows(err) {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("postgres: get idempotency record: %w", err)
	}
	rec.Key = key
	rec.EntityID = entityID
	rec.RequestHash = requestHash
	rec.ExpiresAt = expiresAt
	return rec, true, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key, entityType, requestHash string, expiresAt *time.Time) (bool, idempotency.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, idempotency.Record{}, fmt.Errorf("postgres: begin reserve: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	var existing idempotency.Record
	var entityID, existingHash string
	var existingExpiry *time.Time
	err = tx.QueryRow(ctx, `
SELECT entity_type, entity_id, request_hash, expires_at FROM idempotency_records WHERE key = $1 FOR UPDATE`, key).
		Scan(&existing.EntityType, &entityID, &existingHash, &existingExpiry)
	if err == nil {
		existing.Key = key
		existing.EntityID = entityID
		existing.RequestHash = existingHash
		existing.ExpiresAt = existingExpiry
		return false, existing, nil
	}
	if !isNoRows(err) {
		return false, idempotency.Record{}, fmt.Errorf("postgres: check existing reservation: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO idempotency_records (key, entity_type, entity_id, request_hash, expires_at)
VALUES ($1, $2, '', $3, $4)`, key, entityType, requestHash, expiresAt); err != nil {
		return false, idempotency.Record{}, fmt.Errorf("postgres: insert reservation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, idempotency.Record{}, fmt.Errorf("postgres: commit reserve: %w", err)
	}
	return true, idempotency.Record{Key: key, EntityType: entityType, RequestHash: requestHash, ExpiresAt: expiresAt}, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, entityID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE idempotency_records SET entity_id = $1 WHERE key = $2`, entityID, key)
	if err != nil {
		return fmt.Errorf("postgres: complete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError{"idempotency record", key}
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: release reservation: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at IS NOT NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
