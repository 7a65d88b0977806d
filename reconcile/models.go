// Package reconcile implements the three reconciliation loops (spec.md
// C11): hot-store vs durable-store event counts, stored aggregates vs
// summed events, and local payment rows vs gateway-confirmed payments.
package reconcile

import (
	"time"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/types"
)

// Status is a reconciliation run's outcome.
type Status string

const (
	StatusReconciled  Status = "reconciled"
	StatusDiscrepancy Status = "discrepancy"
	StatusError       Status = "error"
)

// Scope names which reconciliation loop produced a Run.
type Scope string

const (
	ScopeHotDurable        Scope = "hes_des"
	ScopeAggregateEvents   Scope = "aggregate_events"
	ScopeLocalGatewayPay   Scope = "local_gateway_payments"
)

// Run is one reconciliation execution for a (scope, key, date).
type Run struct {
	types.Entity
	ID         id.ReconciliationID `json:"id"`
	Scope      Scope               `json:"scope"`
	Key        string              `json:"key"` // human-readable scope key, e.g. "org_x/proj_y/api_calls"
	Date       time.Time           `json:"date"`
	LeftCount  int64               `json:"left_count"`
	RightCount int64               `json:"right_count"`
	Status     Status              `json:"status"`
	Detail     string              `json:"detail,omitempty"`
}
