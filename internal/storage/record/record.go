// Package record defines the persisted form of a cache entry shared by every
// storage backend. The artifact is kept as its encoded JSON so that a read
// returns exactly the bytes that were written.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// Record is a cache entry as stored by a backend
type Record struct {
	Ticker          string    `json:"ticker"`
	Artifact        []byte    `json:"artifact"`
	ComputedAt      time.Time `json:"computed_at"`
	MethodTag       string    `json:"method_tag"`
	ProviderSources []string  `json:"provider_sources_used"`
}

// FromEntry encodes an entry for storage. The ticker is normalised.
func FromEntry(entry *models.CacheEntry) (*Record, error) {
	if entry == nil {
		return nil, fmt.Errorf("nil cache entry")
	}
	ticker := models.NormalizeTicker(entry.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("cache entry has no ticker")
	}
	artifact, err := json.Marshal(entry.Artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact for %s: %w", ticker, err)
	}
	sources := entry.ProviderSources
	if sources == nil {
		sources = []string{}
	}
	return &Record{
		Ticker:          ticker,
		Artifact:        artifact,
		ComputedAt:      entry.ComputedAt.UTC(),
		MethodTag:       entry.MethodTag,
		ProviderSources: sources,
	}, nil
}

// Entry decodes a stored record back into a cache entry
func (r *Record) Entry() (*models.CacheEntry, error) {
	var artifact models.DerivedMetrics
	if err := json.Unmarshal(r.Artifact, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact for %s: %w", r.Ticker, err)
	}
	return &models.CacheEntry{
		Ticker:          r.Ticker,
		Artifact:        artifact,
		ComputedAt:      r.ComputedAt.UTC(),
		MethodTag:       r.MethodTag,
		ProviderSources: append([]string{}, r.ProviderSources...),
	}, nil
}

// Summary returns the listing view of the record
func (r *Record) Summary() models.CacheSummary {
	return models.CacheSummary{
		Ticker:     r.Ticker,
		ComputedAt: r.ComputedAt.UTC(),
		MethodTag:  r.MethodTag,
	}
}
