// Package usage implements the two-tier event ingestion pipeline from
// spec.md C3 (hot event store) and C4 (durable event store + aggregator).
package usage

import (
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
)

// Event is a single metered usage record. It is unique on IdempotencyKey
// across both the hot and durable stores.
type Event struct {
	ID             id.UsageEventID `json:"id"`
	OrgID          id.OrgID        `json:"org_id"`
	ProjectID      id.ProjectID    `json:"project_id"`
	Metric         string          `json:"metric"`
	Value          money.Rate      `json:"value"` // quantity, not currency-denominated; Rate's scale-8 decimal is reused for exact fractional metering
	Unit           string          `json:"unit"`
	Timestamp      time.Time       `json:"ts"`
	IdempotencyKey string          `json:"idempotency_key"`
	IngestedAt     time.Time       `json:"ingested_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// Processed reports whether this event has been migrated into the
// durable store.
func (e Event) Processed() bool { return e.ProcessedAt != nil }

// PutResult tells the caller whether put(event) created a new row or
// silently absorbed a duplicate idempotency key.
type PutResult int

const (
	New PutResult = iota
	Duplicate
)

// Aggregate is the monthly rollup of events for one (org, project,
// metric, unit). Unique on (OrgID, ProjectID, Metric, Unit, Month, Year).
type Aggregate struct {
	OrgID      id.OrgID   `json:"org_id"`
	ProjectID  id.ProjectID `json:"project_id"`
	Metric     string     `json:"metric"`
	Unit       string     `json:"unit"`
	Month      int        `json:"month"` // 1-12
	Year       int        `json:"year"`  // >= 2020
	TotalValue money.Rate `json:"total_value"`
	EventCount int64      `json:"event_count"`
}

// Key identifies an Aggregate's unique row.
func (a Aggregate) Key() AggregateKey {
	return AggregateKey{OrgID: a.OrgID, ProjectID: a.ProjectID, Metric: a.Metric, Unit: a.Unit, Month: a.Month, Year: a.Year}
}

// AggregateKey is the natural key of an Aggregate, also used to look up
// the pricing rule that applies to it (spec.md §4.6).
type AggregateKey struct {
	OrgID     id.OrgID
	ProjectID id.ProjectID
	Metric    string
	Unit      string
	Month     int
	Year      int
}
