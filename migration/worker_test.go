package migration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/migration"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/usage"
	memstore "github.com/invoiceflow/billing/usage/memory"
)

func newEvent(org id.OrgID, proj id.ProjectID, key string) *usage.Event {
	return &usage.Event{
		ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj,
		Metric: "api_calls", Value: money.MustRate("1"), Unit: "calls",
		Timestamp: time.Now(), IdempotencyKey: key, IngestedAt: time.Now(),
	}
}

func TestWorkerMigratesUnprocessedEvents(t *testing.T) {
	hot := memstore.NewHotStore()
	durable := memstore.NewDurableStore()
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()

	for i := 0; i < 5; i++ {
		if _, err := hot.Put(ctx, newEvent(org, proj, string(rune('a'+i)))); err != nil {
			t.Fatal(err)
		}
	}

	w := migration.New(hot, durable, migration.Config{BatchSize: 2, MaxBatches: 10})
	result, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EventsMigrated != 5 {
		t.Errorf("migrated %d events, want 5", result.EventsMigrated)
	}

	remaining, err := hot.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected all events marked processed, %d remain", len(remaining))
	}
}

func TestWorkerStopsAfterShortBatch(t *testing.T) {
	hot := memstore.NewHotStore()
	durable := memstore.NewDurableStore()
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()

	if _, err := hot.Put(ctx, newEvent(org, proj, "only-one")); err != nil {
		t.Fatal(err)
	}

	w := migration.New(hot, durable, migration.Config{BatchSize: 100, MaxBatches: 10})
	result, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.BatchesRun != 1 {
		t.Errorf("got %d batches, want 1 (fetch returned fewer than batch size)", result.BatchesRun)
	}
}

// failOnceDurableStore wraps a DurableStore and forces the first
// InsertEvents call with more than one row to fail, so the worker must
// fall back to per-row inserts.
type failOnceDurableStore struct {
	usage.DurableStore
	failed bool
}

func (f *failOnceDurableStore) InsertEvents(ctx context.Context, batch []*usage.Event) ([]string, error) {
	if !f.failed && len(batch) > 1 {
		f.failed = true
		return nil, errors.New("simulated sub-batch failure")
	}
	return f.DurableStore.InsertEvents(ctx, batch)
}

func TestWorkerFallsBackToPerRowOnSubBatchFailure(t *testing.T) {
	hot := memstore.NewHotStore()
	durable := &failOnceDurableStore{DurableStore: memstore.NewDurableStore()}
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()

	for i := 0; i < 3; i++ {
		if _, err := hot.Put(ctx, newEvent(org, proj, string(rune('a'+i)))); err != nil {
			t.Fatal(err)
		}
	}

	w := migration.New(hot, durable, migration.Config{BatchSize: 10, MaxBatches: 1})
	result, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EventsMigrated != 3 {
		t.Errorf("migrated %d events, want 3 after per-row fallback", result.EventsMigrated)
	}
}
