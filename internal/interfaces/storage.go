package interfaces

import (
	"context"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// ArtifactCache is a durable ticker -> artifact map. Keys are normalised with
// models.NormalizeTicker; Put replaces the whole entry and the last writer wins.
type ArtifactCache interface {
	// Get returns (nil, nil) when no artifact is stored for the ticker
	Get(ctx context.Context, ticker string) (*models.CacheEntry, error)

	Put(ctx context.Context, entry *models.CacheEntry) error

	Delete(ctx context.Context, ticker string) error

	// List returns a summary of every stored entry, ordered by ticker
	List(ctx context.Context) ([]models.CacheSummary, error)

	Close() error
}
