package fx

import (
	"context"
	"fmt"
	"time"
)

// Provider fetches live exchange rates from an external source. No
// concrete implementation ships in this module — live exchange-rate
// sourcing is out of scope — but the seam lets a deploy plug one in
// without touching the sync job that drives it.
type Provider interface {
	FetchRates(ctx context.Context, at time.Time) ([]ExchangeRate, error)
}

// Sync fetches the current rate set from provider and upserts each row
// into store. Returns the number of rows synced. Callers running this
// on a schedule should skip calling it entirely when no provider is
// configured, rather than treating a nil provider as zero rates synced.
func Sync(ctx context.Context, provider Provider, store Store, at time.Time) (int, error) {
	rates, err := provider.FetchRates(ctx, at)
	if err != nil {
		return 0, fmt.Errorf("fx: fetch rates: %w", err)
	}
	for _, r := range rates {
		if err := store.Upsert(ctx, r); err != nil {
			return 0, fmt.Errorf("fx: upsert %s->%s: %w", r.Base, r.Target, err)
		}
	}
	return len(rates), nil
}
