package interfaces

import (
	"context"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// Aggregator gathers every input for one ticker. It never fails; missing inputs are left empty.
type Aggregator interface {
	Aggregate(ctx context.Context, ticker string, providedPrice *float64) models.AggregateSnapshot
}

// ResolveOptions tunes a single resolve call
type ResolveOptions struct {
	// ProvidedPrice, when set, takes precedence over any fetched price
	ProvidedPrice *float64
}

// MetricsResolver is the compute-on-demand entry point used by the HTTP layer
type MetricsResolver interface {
	// Resolve returns the cached artifact or computes, stores and returns it
	Resolve(ctx context.Context, ticker string, opts ResolveOptions) (*models.CacheEntry, error)

	// Lookup serves from the cache only. On a miss it starts a background computation
	// and returns resolver.ErrNotComputedYet.
	Lookup(ctx context.Context, ticker string) (*models.CacheEntry, error)

	// Refresh recomputes unconditionally and overwrites the cached artifact
	Refresh(ctx context.Context, ticker string, opts ResolveOptions) (*models.CacheEntry, error)
}

// EventPublisher fans metrics lifecycle events out to subscribers. Publish must not block.
type EventPublisher interface {
	Publish(event models.MetricsEvent)
}
