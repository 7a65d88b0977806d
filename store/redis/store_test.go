package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	redisstore "github.com/invoiceflow/billing/store/redis"
	"github.com/invoiceflow/billing/usage"
)

// dialTestRedis connects to a local Redis instance and skips the test
// if one isn't reachable, since these tests exercise real Redis
// commands rather than a mock.
func dialTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379", DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at localhost:6379: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestPutSkipsDuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := redisstore.New(dialTestRedis(t))

	org, proj := id.NewOrgID(), id.NewProjectID()
	e1 := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("1"), Unit: "calls", Timestamp: time.Now(), IdempotencyKey: "dup", IngestedAt: time.Now()}
	e2 := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls", Value: money.MustRate("1"), Unit: "calls", Timestamp: time.Now(), IdempotencyKey: "dup", IngestedAt: time.Now()}

	res, err := s.Put(ctx, e1)
	if err != nil || res != usage.New {
		t.Fatalf("first Put() = (%v, %v), want (New, nil)", res, err)
	}
	res, err = s.Put(ctx, e2)
	if err != nil || res != usage.Duplicate {
		t.Fatalf("second Put() = (%v, %v), want (Duplicate, nil)", res, err)
	}
}

func TestMarkProcessedRemovesFromUnprocessed(t *testing.T) {
	ctx := context.Background()
	s := redisstore.New(dialTestRedis(t))
	org, proj := id.NewOrgID(), id.NewProjectID()

	e := &usage.Event{ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "m", Value: money.MustRate("1"), Unit: "u", Timestamp: time.Now(), IdempotencyKey: "k", IngestedAt: time.Now()}
	if _, err := s.Put(ctx, e); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkProcessed(ctx, []string{e.ID.String()}, time.Now()); err != nil {
		t.Fatal(err)
	}

	events, err := s.FetchUnprocessed(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("FetchUnprocessed() returned %d events after MarkProcessed, want 0", len(events))
	}
}

func TestCountEventsForCountsPutsOnTheSameDay(t *testing.T) {
	ctx := context.Background()
	s := redisstore.New(dialTestRedis(t))
	org, proj := id.NewOrgID(), id.NewProjectID()
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e := &usage.Event{
			ID: id.NewUsageEventID(), OrgID: org, ProjectID: proj, Metric: "api_calls",
			Value: money.MustRate("1"), Unit: "calls", Timestamp: day.Add(time.Duration(i) * time.Hour),
			IdempotencyKey: time.Now().Format(time.RFC3339Nano) + string(rune('a'+i)), IngestedAt: time.Now(),
		}
		if _, err := s.Put(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	count, err := s.CountEventsFor(ctx, org, proj, "api_calls", day)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("CountEventsFor() = %d, want 3", count)
	}
}
