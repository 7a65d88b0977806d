package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/usage"
)

// DurableStore is a usage.DurableStore backed by durable_events and
// usage_aggregates.
type DurableStore struct {
	pool *pgxpool.Pool
}

var _ usage.DurableStore = (*DurableStore)(nil)

func (s *DurableStore) InsertEvents(ctx context.Context, batch []*usage.Event) ([]string, error) {
	var inserted []string
	for _, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			return inserted, fmt.Errorf("postgres: marshal event: %w", err)
		}

		tag, err := s.pool.Exec(ctx, `
INSERT INTO durable_events (id, org_id, project_id, metric, idempotency_key, ts, data)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (idempotency_key) DO NOTHING`,
			e.ID.String(), e.OrgID.String(), e.ProjectID.String(), e.Metric, e.IdempotencyKey, e.Timestamp, data)
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert durable event: %w", err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, e.ID.String())
		}
	}
	return inserted, nil
}

func (s *DurableStore) Aggregate(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric, unit string, month, year int) (usage.Aggregate, error) {
	periodStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	rows, err := s.pool.Query(ctx, `
SELECT data FROM durable_events
WHERE org_id = $1 AND project_id = $2 AND metric = $3 AND ts >= $4 AND ts < $5`,
		orgID.String(), projectID.String(), metric, periodStart, periodEnd)
	if err != nil {
		return usage.Aggregate{}, fmt.Errorf("postgres: select events for aggregate: %w", err)
	}

	total := money.ZeroRate()
	var count int64
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return usage.Aggregate{}, fmt.Errorf("postgres: scan event: %w", err)
		}
		var e usage.Event
		if err := json.Unmarshal(data, &e); err != nil {
			rows.Close()
			return usage.Aggregate{}, fmt.Errorf("postgres: unmarshal event: %w", err)
		}
		total = total.Add(e.Value)
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return usage.Aggregate{}, fmt.Errorf("postgres: iterate events: %w", err)
	}

	agg := usage.Aggregate{
		OrgID:      orgID,
		ProjectID:  projectID,
		Metric:     metric,
		Unit:       unit,
		Month:      month,
		Year:       year,
		TotalValue: total,
		EventCount: count,
	}
	aggData, err := json.Marshal(agg)
	if err != nil {
		return usage.Aggregate{}, fmt.Errorf("postgres: marshal aggregate: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO usage_aggregates (org_id, project_id, metric, unit, month, year, data)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (org_id, project_id, metric, unit, month, year)
DO UPDATE SET data = EXCLUDED.data`,
		orgID.String(), projectID.String(), metric, unit, month, year, aggData)
	if err != nil {
		return usage.Aggregate{}, fmt.Errorf("postgres: upsert aggregate: %w", err)
	}
	return agg, nil
}

func (s *DurableStore) AggregatesFor(ctx context.Context, orgID id.OrgID, month, year int) ([]usage.Aggregate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT data FROM usage_aggregates WHERE org_id = $1 AND month = $2 AND year = $3`,
		orgID.String(), month, year)
	if err != nil {
		return nil, fmt.Errorf("postgres: list aggregates: %w", err)
	}
	defer rows.Close()

	var out []usage.Aggregate
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan aggregate: %w", err)
		}
		var agg usage.Aggregate
		if err := json.Unmarshal(data, &agg); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

func (s *DurableStore) CountEventsFor(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int64
	err := s.pool.QueryRow(ctx, `
SELECT count(*) FROM durable_events
WHERE org_id = $1 AND project_id = $2 AND metric = $3 AND ts >= $4 AND ts < $5`,
		orgID.String(), projectID.String(), metric, dayStart, dayEnd).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count durable events: %w", err)
	}
	return count, nil
}
