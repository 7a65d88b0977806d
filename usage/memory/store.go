// Package memory provides in-process HotStore and DurableStore
// implementations backed by maps and a mutex, for tests and the
// in-memory store driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/usage"
)

// HotStore is a map-backed usage.HotStore.
type HotStore struct {
	mu     sync.RWMutex
	events map[string]*usage.Event // by event id
	byKey  map[string]string       // idempotency key -> event id
}

var _ usage.HotStore = (*HotStore)(nil)

func NewHotStore() *HotStore {
	return &HotStore{
		events: make(map[string]*usage.Event),
		byKey:  make(map[string]string),
	}
}

func (s *HotStore) Put(_ context.Context, event *usage.Event) (usage.PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[event.IdempotencyKey]; exists {
		return usage.Duplicate, nil
	}
	cp := *event
	s.events[cp.ID.String()] = &cp
	s.byKey[cp.IdempotencyKey] = cp.ID.String()
	return usage.New, nil
}

func (s *HotStore) FetchUnprocessed(_ context.Context, limit int) ([]*usage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*usage.Event
	for _, e := range s.events {
		if !e.Processed() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.Before(out[j].IngestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *HotStore) MarkProcessed(_ context.Context, ids []string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evID := range ids {
		if e, ok := s.events[evID]; ok {
			stamped := ts
			e.ProcessedAt = &stamped
		}
	}
	return nil
}

func (s *HotStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for evID, e := range s.events {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(s.byKey, e.IdempotencyKey)
			delete(s.events, evID)
			purged++
		}
	}
	return purged, nil
}

func (s *HotStore) CountEventsFor(_ context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := date.Date()
	var count int64
	for _, e := range s.events {
		if !e.OrgID.Equal(orgID) || !e.ProjectID.Equal(projectID) || e.Metric != metric {
			continue
		}
		ey, em, ed := e.Timestamp.Date()
		if ey == y && em == m && ed == d {
			count++
		}
	}
	return count, nil
}

// DurableStore is a map-backed usage.DurableStore.
type DurableStore struct {
	mu         sync.RWMutex
	events     map[string]*usage.Event // by event id
	byKey      map[string]string       // idempotency key -> event id
	aggregates map[usage.AggregateKey]usage.Aggregate
}

var _ usage.DurableStore = (*DurableStore)(nil)

func NewDurableStore() *DurableStore {
	return &DurableStore{
		events:     make(map[string]*usage.Event),
		byKey:      make(map[string]string),
		aggregates: make(map[usage.AggregateKey]usage.Aggregate),
	}
}

func (s *DurableStore) InsertEvents(_ context.Context, batch []*usage.Event) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []string
	for _, e := range batch {
		if _, exists := s.byKey[e.IdempotencyKey]; exists {
			continue
		}
		cp := *e
		s.events[cp.ID.String()] = &cp
		s.byKey[cp.IdempotencyKey] = cp.ID.String()
		inserted = append(inserted, cp.ID.String())
	}
	return inserted, nil
}

func (s *DurableStore) Aggregate(_ context.Context, orgID id.OrgID, projectID id.ProjectID, metric, unit string, month, year int) (usage.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := money.ZeroRate()
	var count int64
	for _, e := range s.events {
		if !e.OrgID.Equal(orgID) || !e.ProjectID.Equal(projectID) || e.Metric != metric {
			continue
		}
		if int(e.Timestamp.Month()) != month || e.Timestamp.Year() != year {
			continue
		}
		total = total.Add(e.Value)
		count++
	}

	key := usage.AggregateKey{OrgID: orgID, ProjectID: projectID, Metric: metric, Unit: unit, Month: month, Year: year}
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
	s.aggregates[key] = agg
	return agg, nil
}

func (s *DurableStore) AggregatesFor(_ context.Context, orgID id.OrgID, month, year int) ([]usage.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []usage.Aggregate
	for k, agg := range s.aggregates {
		if k.OrgID.Equal(orgID) && k.Month == month && k.Year == year {
			out = append(out, agg)
		}
	}
	return out, nil
}

func (s *DurableStore) CountEventsFor(_ context.Context, orgID id.OrgID, projectID id.ProjectID, metric string, date time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := date.Date()
	var count int64
	for _, e := range s.events {
		if !e.OrgID.Equal(orgID) || !e.ProjectID.Equal(projectID) || e.Metric != metric {
			continue
		}
		ey, em, ed := e.Timestamp.Date()
		if ey == y && em == m && ed == d {
			count++
		}
	}
	return count, nil
}
