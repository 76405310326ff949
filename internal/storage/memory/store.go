// Package memory provides an in-process artifact cache. Entries do not
// survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
	"github.com/bobmcallan/tickermetrics/internal/storage/record"
)

// Store is a map-backed ArtifactCache
type Store struct {
	mu      sync.RWMutex
	records map[string]*record.Record
	logger  *common.Logger
}

// NewStore creates an empty in-memory cache
func NewStore(logger *common.Logger) *Store {
	return &Store{
		records: make(map[string]*record.Record),
		logger:  logger,
	}
}

func (s *Store) Get(_ context.Context, ticker string) (*models.CacheEntry, error) {
	s.mu.RLock()
	rec, ok := s.records[models.NormalizeTicker(ticker)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return rec.Entry()
}

func (s *Store) Put(_ context.Context, entry *models.CacheEntry) error {
	rec, err := record.FromEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.Ticker] = rec
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, ticker string) error {
	s.mu.Lock()
	delete(s.records, models.NormalizeTicker(ticker))
	s.mu.Unlock()
	return nil
}

func (s *Store) List(_ context.Context) ([]models.CacheSummary, error) {
	s.mu.RLock()
	out := make([]models.CacheSummary, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *Store) Close() error {
	s.logger.Debug().Msg("Memory cache closed")
	return nil
}

var _ interfaces.ArtifactCache = (*Store)(nil)
