// Package sqlite implements usage.HotStore against a local SQLite
// database via modernc.org/sqlite, as the single-process alternative to
// store/redis for the hot event store (C3).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/usage"
)

// Store is a usage.HotStore backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ usage.HotStore = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and
// returns a Store. Callers should call Migrate before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention
	return &Store{db: db}, nil
}

// Migrate creates the hot_events table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Put(ctx context.Context, event *usage.Event) (usage.PutResult, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marshal event: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO hot_events (id, org_id, project_id, metric, idempotency_key, ingested_at, processed_at, data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(), event.OrgID.String(), event.ProjectID.String(), event.Metric, event.IdempotencyKey,
		event.IngestedAt, event.ProcessedAt, data)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return usage.Duplicate, nil
	}
	return usage.New, nil
}

func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*usage.Event, error) {
	query := `SELECT data FROM hot_events WHERE processed_at IS NULL ORDER BY ingested_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch unprocessed: %w", err)
	}
	defer rows.Close()

	var out []*usage.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		var e usage.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, ids []string, ts time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, ts)
	for i, evID := range ids {
		placeholders[i] = "?"
		args = append(args, evID)
	}

	query := fmt.Sprintf(`UPDATE hot_events SET processed_at = ? WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: mark processed: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hot_events WHERE processed_at IS NOT NULL AND processed_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountEventsFor(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int64
	err := s.db.QueryRowContext(ctx, `
SELECT count(*) FROM hot_events
WHERE org_id = ? AND project_id = ? AND metric = ? AND ingested_at >= ? AND ingested_at < ?`,
		orgID.String(), projectID.String(), metric, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count events: %w", err)
	}
	return count, nil
}
