package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/usage"
	memstore "github.com/invoiceflow/billing/usage/memory"
)

func TestHotStorePutDedupesByIdempotencyKey(t *testing.T) {
	hs := memstore.NewHotStore()
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()

	e := &usage.Event{
		ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj,
		Metric: "api_calls", Value: money.MustRate("100"), Unit: "calls",
		Timestamp: time.Now(), IdempotencyKey: "evt-1", IngestedAt: time.Now(),
	}

	res, err := hs.Put(ctx, e)
	if err != nil || res != usage.New {
		t.Fatalf("first Put: got (%v, %v), want (New, nil)", res, err)
	}

	dup := *e
	dup.ID = id.NewUsageEventID()
	res2, err := hs.Put(ctx, &dup)
	if err != nil || res2 != usage.Duplicate {
		t.Fatalf("duplicate Put: got (%v, %v), want (Duplicate, nil)", res2, err)
	}
}

func TestHotStoreFetchUnprocessedOrderedByIngestedAt(t *testing.T) {
	hs := memstore.NewHotStore()
	ctx := context.Background()
	base := time.Now()
	org, proj := id.NewOrgID(), id.NewProjectID()

	for i := 0; i < 3; i++ {
		e := &usage.Event{
			ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj,
			Metric: "x", Value: money.MustRate("1"), Unit: "u",
			Timestamp: base, IdempotencyKey: "k" + string(rune('a'+i)),
			IngestedAt: base.Add(time.Duration(2-i) * time.Minute),
		}
		if _, err := hs.Put(ctx, e); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	batch, err := hs.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnprocessed: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("got %d events, want 3", len(batch))
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].IngestedAt.Before(batch[i-1].IngestedAt) {
			t.Fatalf("batch not ordered oldest-first by IngestedAt")
		}
	}
}

func TestHotStorePurgeOnlyTouchesProcessedRows(t *testing.T) {
	hs := memstore.NewHotStore()
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()
	old := time.Now().Add(-10 * 24 * time.Hour)

	processed := &usage.Event{
		ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "x",
		Value: money.MustRate("1"), Unit: "u", Timestamp: old,
		IdempotencyKey: "processed", IngestedAt: old, ProcessedAt: &old,
	}
	unprocessed := &usage.Event{
		ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "x",
		Value: money.MustRate("1"), Unit: "u", Timestamp: old,
		IdempotencyKey: "unprocessed", IngestedAt: old,
	}
	if _, err := hs.Put(ctx, processed); err != nil {
		t.Fatal(err)
	}
	if _, err := hs.Put(ctx, unprocessed); err != nil {
		t.Fatal(err)
	}

	purged, err := hs.Purge(ctx, time.Now())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged %d rows, want 1", purged)
	}

	remaining, err := hs.FetchUnprocessed(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].IdempotencyKey != "unprocessed" {
		t.Fatalf("unprocessed row should survive purge, got %+v", remaining)
	}
}

func TestDurableStoreInsertEventsSkipsDuplicates(t *testing.T) {
	ds := memstore.NewDurableStore()
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()

	e1 := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "m", Value: money.MustRate("1"), Unit: "u", Timestamp: time.Now(), IdempotencyKey: "dup-key"}
	e2 := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "m", Value: money.MustRate("1"), Unit: "u", Timestamp: time.Now(), IdempotencyKey: "dup-key"}

	inserted, err := ds.InsertEvents(ctx, []*usage.Event{e1})
	if err != nil || len(inserted) != 1 {
		t.Fatalf("first insert: got (%v, %v)", inserted, err)
	}

	inserted2, err := ds.InsertEvents(ctx, []*usage.Event{e2})
	if err != nil {
		t.Fatal(err)
	}
	if len(inserted2) != 0 {
		t.Fatalf("second insert should be skipped as duplicate, got %v", inserted2)
	}
}

func TestDurableStoreAggregateIsIdempotent(t *testing.T) {
	ds := memstore.NewDurableStore()
	ctx := context.Background()
	org, proj := id.NewOrgID(), id.NewProjectID()
	ts := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	events := []*usage.Event{
		{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("100"), Unit: "calls", Timestamp: ts, IdempotencyKey: "a"},
		{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("50"), Unit: "calls", Timestamp: ts, IdempotencyKey: "b"},
	}
	if _, err := ds.InsertEvents(ctx, events); err != nil {
		t.Fatal(err)
	}

	agg1, err := ds.Aggregate(ctx, org, proj, "api_calls", "calls", 3, 2026)
	if err != nil {
		t.Fatalf("first Aggregate: %v", err)
	}
	if agg1.TotalValue.String() != "150.00000000" {
		t.Errorf("got total %s, want 150.00000000", agg1.TotalValue.String())
	}
	if agg1.EventCount != 2 {
		t.Errorf("got event count %d, want 2", agg1.EventCount)
	}

	agg2, err := ds.Aggregate(ctx, org, proj, "api_calls", "calls", 3, 2026)
	if err != nil {
		t.Fatalf("second Aggregate: %v", err)
	}
	if agg2.TotalValue.Cmp(agg1.TotalValue) != 0 || agg2.EventCount != agg1.EventCount {
		t.Errorf("re-running Aggregate should be idempotent: got %+v, then %+v", agg1, agg2)
	}
}
