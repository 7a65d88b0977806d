package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/reconcile"
)

// ReconcileStore is a reconcile.Store backed by the reconciliation_runs
// table.
type ReconcileStore struct {
	pool *pgxpool.Pool
}

var _ reconcile.Store = (*ReconcileStore)(nil)

func (s *ReconcileStore) Create(ctx context.Context, r *reconcile.Run) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal reconciliation run: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO reconciliation_runs (id, scope, created_at, data) VALUES ($1, $2, $3, $4)`,
		r.ID.String(), string(r.Scope), r.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("postgres: insert reconciliation run: %w", err)
	}
	return nil
}

func (s *ReconcileStore) ListByScope(ctx context.Context, scope reconcile.Scope) ([]*reconcile.Run, error) {
	rows, err := s.pool.Query(ctx, `
SELECT data FROM reconciliation_runs WHERE scope = $1 ORDER BY created_at DESC`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("postgres: list reconciliation runs: %w", err)
	}
	defer rows.Close()

	var out []*reconcile.Run
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan reconciliation run: %w", err)
		}
		var r reconcile.Run
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal reconciliation run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
