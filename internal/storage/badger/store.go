// Package badger provides a BadgerHold-backed artifact cache for single-node
// deployments that need entries to survive a restart.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
	"github.com/bobmcallan/tickermetrics/internal/storage/record"
)

// artifactRecord is the BadgerHold row. The ticker is the key.
type artifactRecord struct {
	Ticker          string `badgerhold:"key"`
	Artifact        []byte
	ComputedAt      int64
	MethodTag       string
	ProviderSources []string
}

// Store wraps a BadgerHold database connection.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore creates a new BadgerHold store at the given directory path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if path == "" {
		path = "data/cache"
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("BadgerHold cache opened")

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// DB returns the underlying badgerhold store.
func (s *Store) DB() *badgerhold.Store {
	return s.db
}

func (s *Store) Get(_ context.Context, ticker string) (*models.CacheEntry, error) {
	key := models.NormalizeTicker(ticker)
	var row artifactRecord
	if err := s.db.Get(key, &row); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact '%s': %w", key, err)
	}
	return toRecord(&row).Entry()
}

func (s *Store) Put(_ context.Context, entry *models.CacheEntry) error {
	rec, err := record.FromEntry(entry)
	if err != nil {
		return err
	}
	row := fromRecord(rec)
	if err := s.db.Upsert(row.Ticker, row); err != nil {
		return fmt.Errorf("failed to save artifact '%s': %w", row.Ticker, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, ticker string) error {
	key := models.NormalizeTicker(ticker)
	err := s.db.Delete(key, artifactRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete artifact '%s': %w", key, err)
	}
	return nil
}

func (s *Store) List(_ context.Context) ([]models.CacheSummary, error) {
	var rows []artifactRecord
	if err := s.db.Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	out := make([]models.CacheSummary, 0, len(rows))
	for i := range rows {
		out = append(out, toRecord(&rows[i]).Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// Close closes the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func fromRecord(rec *record.Record) *artifactRecord {
	return &artifactRecord{
		Ticker:          rec.Ticker,
		Artifact:        rec.Artifact,
		ComputedAt:      rec.ComputedAt.UnixNano(),
		MethodTag:       rec.MethodTag,
		ProviderSources: rec.ProviderSources,
	}
}

func toRecord(row *artifactRecord) *record.Record {
	return &record.Record{
		Ticker:          row.Ticker,
		Artifact:        row.Artifact,
		ComputedAt:      unixNano(row.ComputedAt),
		MethodTag:       row.MethodTag,
		ProviderSources: row.ProviderSources,
	}
}

func unixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

var _ interfaces.ArtifactCache = (*Store)(nil)
