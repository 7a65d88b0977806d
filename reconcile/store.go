package reconcile

import "context"

// Store persists reconciliation runs.
type Store interface {
	Create(ctx context.Context, r *Run) error
	ListByScope(ctx context.Context, scope Scope) ([]*Run, error)
}
