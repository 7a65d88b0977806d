package fx

import "context"

// Store persists ExchangeRate rows and is refreshed by the daily
// exchange-rate sync job.
type Store interface {
	// Upsert inserts or replaces the active row for (base, target),
	// closing out the previous active row's EffectiveTo at the new
	// row's EffectiveFrom.
	Upsert(ctx context.Context, rate ExchangeRate) error
	// Table loads every row relevant to rate lookups. Implementations
	// may choose to filter by a time window if the table grows large;
	// Rate() only needs rows that could cover "at".
	Table(ctx context.Context) (Table, error)
}
