package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/fx"
)

// FXStore is an fx.Store backed by the fx_rates table.
type FXStore struct {
	pool *pgxpool.Pool
}

var _ fx.Store = (*FXStore)(nil)

func (s *FXStore) Upsert(ctx context.Context, rate fx.ExchangeRate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin fx upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	// close out the previous active row for this pair, if any
	rows, err := tx.Query(ctx, `
SELECT effective_from, data FROM fx_rates
WHERE base = $1 AND target = $2 AND effective_from < $3`, rate.Base, rate.Target, rate.EffectiveFrom)
	if err != nil {
		return fmt.Errorf("postgres: select prior fx rows: %w", err)
	}
	type prior struct {
		effectiveFrom time.Time
		rate          fx.ExchangeRate
	}
	var priors []prior
	for rows.Next() {
		var effFrom time.Time
		var data []byte
		if err := rows.Scan(&effFrom, &data); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan prior fx row: %w", err)
		}
		var r fx.ExchangeRate
		if err := json.Unmarshal(data, &r); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: unmarshal prior fx row: %w", err)
		}
		if r.EffectiveTo == nil {
			priors = append(priors, prior{effFrom, r})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: iterate prior fx rows: %w", err)
	}

	for _, p := range priors {
		closedAt := rate.EffectiveFrom
		p.rate.EffectiveTo = &closedAt
		data, err := json.Marshal(p.rate)
		if err != nil {
			return fmt.Errorf("postgres: marshal closed fx row: %w", err)
		}
		if _, err := tx.Exec(ctx, `
UPDATE fx_rates SET data = $1 WHERE base = $2 AND target = $3 AND effective_from = $4`,
			data, rate.Base, rate.Target, p.effectiveFrom); err != nil {
			return fmt.Errorf("postgres: close prior fx row: %w", err)
		}
	}

	data, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("postgres: marshal fx rate: %w", err)
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO fx_rates (base, target, effective_from, data) VALUES ($1, $2, $3, $4)
ON CONFLICT (base, target, effective_from) DO UPDATE SET data = EXCLUDED.data`,
		rate.Base, rate.Target, rate.EffectiveFrom, data); err != nil {
		return fmt.Errorf("postgres: insert fx rate: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit fx upsert: %w", err)
	}
	return nil
}

func (s *FXStore) Table(ctx context.Context) (fx.Table, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM fx_rates ORDER BY base, target, effective_from`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load fx table: %w", err)
	}
	defer rows.Close()

	var out fx.Table
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan fx row: %w", err)
		}
		var r fx.ExchangeRate
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal fx row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
