package usage

import (
	"context"
	"time"

	"github.com/invoiceflow/billing/id"
)

// HotStore is the append-mostly C3 store: optimized for write
// throughput and short reads, feeding the migration worker.
type HotStore interface {
	// Put inserts event. The store's unique constraint on
	// IdempotencyKey makes a repeat insert a silent no-op, reported as
	// Duplicate rather than an error.
	Put(ctx context.Context, event *Event) (PutResult, error)
	// FetchUnprocessed returns up to limit events with ProcessedAt
	// unset, oldest-first by IngestedAt.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Event, error)
	// MarkProcessed stamps ProcessedAt = ts on the given event ids.
	MarkProcessed(ctx context.Context, ids []string, ts time.Time) error
	// Purge deletes rows whose ProcessedAt is older than before. Rows
	// with ProcessedAt unset are never touched, regardless of age.
	Purge(ctx context.Context, before time.Time) (int64, error)
	// CountEventsFor counts HES events for (org, project, metric) on the
	// given calendar date, used by the HES<->DES reconciliation loop.
	CountEventsFor(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error)
}

// DurableStore is the authoritative C4 event table plus its aggregator.
type DurableStore interface {
	// InsertEvents inserts batch using insert-on-conflict-do-nothing on
	// IdempotencyKey. inserted holds the ids that were newly created;
	// every id in batch not present in inserted was skipped because DES
	// already held it.
	InsertEvents(ctx context.Context, batch []*Event) (inserted []string, err error)
	// Aggregate sums Value over events whose Timestamp falls within
	// month/year for (org, project, metric) and upserts the matching
	// Aggregate row. Idempotent: re-running produces identical values.
	Aggregate(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric, unit string, month, year int) (Aggregate, error)
	// AggregatesFor returns every stored aggregate for org across all of
	// its projects in the given month/year, one per (project, metric,
	// unit) — the full input the billing calculator needs for a month.
	AggregatesFor(ctx context.Context, orgID id.OrgID, month, year int) ([]Aggregate, error)
	// CountEventsFor counts DES events for (org, project, metric) on the
	// given calendar date, used by the HES<->DES reconciliation loop.
	CountEventsFor(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error)
}
