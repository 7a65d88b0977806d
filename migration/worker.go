// Package migration implements the C5 migration worker that drains the
// hot event store (HES) into the durable event store (DES) in bounded
// batches, failing fast on the first unrecoverable row.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/billing/usage"
)

// maxSubBatch caps how many rows are inserted in a single DES call, to
// respect parameter-count limits on the underlying driver.
const maxSubBatch = 100

// Config controls how much work a single Run does.
type Config struct {
	// BatchSize is how many unprocessed events are fetched from HES per
	// iteration. Defaults to 1000 (MIGRATION_BATCH_SIZE).
	BatchSize int
	// MaxBatches caps the number of fetch/insert iterations per Run.
	// Defaults to 10 (MIGRATION_MAX_BATCHES).
	MaxBatches int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = 10
	}
	return c
}

// Result summarizes one Run.
type Result struct {
	BatchesRun     int
	EventsMigrated int
	EventsSkipped  int
}

// Worker drains HES into DES.
type Worker struct {
	Hot     usage.HotStore
	Durable usage.DurableStore
	Config  Config

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// New builds a Worker with the given stores and config.
func New(hot usage.HotStore, durable usage.DurableStore, cfg Config) *Worker {
	return &Worker{Hot: hot, Durable: durable, Config: cfg.withDefaults(), Now: time.Now}
}

// Run performs up to Config.MaxBatches fetch-insert-mark iterations,
// stopping early once a fetch returns fewer rows than requested.
//
// Fail-fast: any per-row insert error aborts the run and is returned.
// Progress already committed in prior sub-batches and prior iterations
// is preserved — only the unprocessed watermark in HES is left
// unchanged for events that were never reached.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	var result Result
	now := w.now()

	for i := 0; i < w.Config.MaxBatches; i++ {
		batch, err := w.Hot.FetchUnprocessed(ctx, w.Config.BatchSize)
		if err != nil {
			return result, fmt.Errorf("migration: fetch unprocessed: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		result.BatchesRun++

		inserted, err := w.insertBatch(ctx, batch)
		if err != nil {
			return result, err
		}

		if len(inserted) > 0 {
			if err := w.Hot.MarkProcessed(ctx, inserted, now); err != nil {
				return result, fmt.Errorf("migration: mark processed: %w", err)
			}
		}

		result.EventsMigrated += len(inserted)
		result.EventsSkipped += len(batch) - len(inserted)

		if len(batch) < w.Config.BatchSize {
			break
		}
	}

	return result, nil
}

// insertBatch chunks batch into sub-batches of at most maxSubBatch rows
// and inserts each. On a sub-batch failure it falls back to per-row
// inserts so the faulty row is identified and its error surfaced,
// instead of discarding the whole sub-batch's progress.
func (w *Worker) insertBatch(ctx context.Context, batch []*usage.Event) ([]string, error) {
	var inserted []string
	for start := 0; start < len(batch); start += maxSubBatch {
		end := start + maxSubBatch
		if end > len(batch) {
			end = len(batch)
		}
		sub := batch[start:end]

		ids, err := w.Durable.InsertEvents(ctx, sub)
		if err == nil {
			inserted = append(inserted, ids...)
			continue
		}

		// Sub-batch insert failed; fall back to per-row so we can pin
		// down exactly which event is at fault.
		for _, e := range sub {
			ids, rowErr := w.Durable.InsertEvents(ctx, []*usage.Event{e})
			if rowErr != nil {
				return inserted, fmt.Errorf("migration: insert event %s: %w", e.ID.String(), rowErr)
			}
			inserted = append(inserted, ids...)
		}
	}
	return inserted, nil
}

func (w *Worker) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}
