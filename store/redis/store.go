// Package redis implements usage.HotStore against Redis, as the
// primary hot event store (C3) driver: a JSON string per event keyed
// by its id, giving HES the write throughput a hand-rolled SQL
// table can't match under bursty ingestion.
//
// Each event is held as a JSON string ("hes:event:<id>") and indexed three
// ways: a sorted set scored by ingestion time for the
// oldest-first unprocessed scan the migration worker drives, a string
// key per idempotency key for the dedup check Put needs, and a daily
// counter per (org, project, metric) for the reconciliation loop's
// CountEventsFor.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/usage"
)

const (
	keyEvent         = "hes:event:"      // + event id -> JSON string
	keyIdemp         = "hes:idemp:"      // + idempotency key -> event id
	keyUnprocessed   = "hes:unprocessed" // zset, score = ingested_at unix nano
	keyCountPrefix   = "hes:count:"      // + org:project:metric:date -> count
	countTTL         = 48 * time.Hour
)

// Store is a usage.HotStore backed by Redis.
type Store struct {
	client *redis.Client
}

var _ usage.HotStore = (*Store)(nil)

// New wraps an existing Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Put(ctx context.Context, event *usage.Event) (usage.PutResult, error) {
	idempKey := keyIdemp + event.IdempotencyKey

	claimed, err := s.client.SetNX(ctx, idempKey, event.ID.String(), 0).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: claim idempotency key: %w", err)
	}
	if !claimed {
		return usage.Duplicate, nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("redis: marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyEvent+event.ID.String(), data, 0)
	pipe.ZAdd(ctx, keyUnprocessed, redis.Z{Score: float64(event.IngestedAt.UnixNano()), Member: event.ID.String()})
	pipe.Incr(ctx, countKey(event.OrgID, event.ProjectID, event.Metric, event.Timestamp))
	pipe.Expire(ctx, countKey(event.OrgID, event.ProjectID, event.Metric, event.Timestamp), countTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: store event: %w", err)
	}
	return usage.New, nil
}

func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*usage.Event, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if limit > 0 {
		opt.Offset, opt.Count = 0, int64(limit)
	}

	ids, err := s.client.ZRangeByScore(ctx, keyUnprocessed, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list unprocessed ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, evID := range ids {
		keys[i] = keyEvent + evID
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: fetch events: %w", err)
	}

	out := make([]*usage.Event, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue // event was purged between the ZRANGE and MGET calls
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e usage.Event
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			return nil, fmt.Errorf("redis: unmarshal event: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

func (s *Store) MarkProcessed(ctx context.Context, ids []string, ts time.Time) error {
	pipe := s.client.TxPipeline()
	for _, evID := range ids {
		data, err := s.client.Get(ctx, keyEvent+evID).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: load event %s: %w", evID, err)
		}
		var e usage.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("redis: unmarshal event %s: %w", evID, err)
		}
		stamped := ts
		e.ProcessedAt = &stamped

		newData, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis: marshal event %s: %w", evID, err)
		}
		pipe.Set(ctx, keyEvent+evID, newData, 0)
		pipe.ZRem(ctx, keyUnprocessed, evID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mark processed: %w", err)
	}
	return nil
}

// Purge deletes processed events ingested before cutoff. Redis has no
// secondary index on ProcessedAt, so this scans every event key via a
// key-pattern SCAN and skips the unprocessed ones; deployments with a large retained
// backlog should prefer store/postgres's DES for long-term retention
// and keep HES itself small (spec.md's cleanup job already runs daily).
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyEvent+"*", 200).Result()
		if err != nil {
			return purged, fmt.Errorf("redis: scan events: %w", err)
		}
		for _, k := range keys {
			data, err := s.client.Get(ctx, k).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return purged, fmt.Errorf("redis: load event: %w", err)
			}
			var e usage.Event
			if err := json.Unmarshal([]byte(data), &e); err != nil {
				return purged, fmt.Errorf("redis: unmarshal event: %w", err)
			}
			if e.ProcessedAt == nil || !e.ProcessedAt.Before(before) {
				continue
			}
			if err := s.client.Del(ctx, k).Err(); err != nil {
				return purged, fmt.Errorf("redis: delete event: %w", err)
			}
			purged++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return purged, nil
}

func (s *Store) CountEventsFor(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error) {
	count, err := s.client.Get(ctx, countKey(orgID, projectID, metric, date)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: count events: %w", err)
	}
	return count, nil
}

func countKey(orgID id.OrgID, projectID id.ProjectID, metric string, at time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", keyCountPrefix, orgID.String(), projectID.String(), metric, at.Format("2006-01-02"))
}
