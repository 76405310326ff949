package surrealdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
	"github.com/bobmcallan/tickermetrics/internal/storage/record"
)

// cacheRow is the stored document. The artifact stays as JSON text so the
// database never re-encodes it.
type cacheRow struct {
	Ticker          string    `json:"ticker"`
	Artifact        string    `json:"artifact"`
	ComputedAt      time.Time `json:"computed_at"`
	MethodTag       string    `json:"method_tag"`
	ProviderSources []string  `json:"provider_sources_used"`
}

type CacheStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewCacheStore(db *surrealdb.DB, logger *common.Logger) *CacheStore {
	return &CacheStore{
		db:     db,
		logger: logger,
	}
}

func (s *CacheStore) Get(ctx context.Context, ticker string) (*models.CacheEntry, error) {
	key := models.NormalizeTicker(ticker)
	row, err := surrealdb.Select[cacheRow](ctx, s.db, surrealmodels.NewRecordID(cacheTable, key))
	if err != nil {
		return nil, fmt.Errorf("failed to select artifact: %w", err)
	}
	if row == nil || row.Ticker == "" {
		return nil, nil
	}
	return row.record().Entry()
}

func (s *CacheStore) Put(ctx context.Context, entry *models.CacheEntry) error {
	rec, err := record.FromEntry(entry)
	if err != nil {
		return err
	}

	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID(cacheTable, rec.Ticker),
		"data": fromRecord(rec),
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]cacheRow](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Debug().Str("ticker", rec.Ticker).Int("attempt", attempt).Err(err).Msg("Artifact upsert failed")
	}
	return fmt.Errorf("failed to save artifact after retries: %w", lastErr)
}

func (s *CacheStore) Delete(ctx context.Context, ticker string) error {
	key := models.NormalizeTicker(ticker)
	if _, err := surrealdb.Delete[cacheRow](ctx, s.db, surrealmodels.NewRecordID(cacheTable, key)); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func (s *CacheStore) List(ctx context.Context) ([]models.CacheSummary, error) {
	rows, err := surrealdb.Select[[]cacheRow](ctx, s.db, surrealmodels.Table(cacheTable))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	out := []models.CacheSummary{}
	if rows != nil {
		for i := range *rows {
			out = append(out, (*rows)[i].record().Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (s *CacheStore) Close() error {
	s.db.Close(context.Background())
	return nil
}

func fromRecord(rec *record.Record) cacheRow {
	return cacheRow{
		Ticker:          rec.Ticker,
		Artifact:        string(rec.Artifact),
		ComputedAt:      rec.ComputedAt,
		MethodTag:       rec.MethodTag,
		ProviderSources: rec.ProviderSources,
	}
}

func (r *cacheRow) record() *record.Record {
	return &record.Record{
		Ticker:          r.Ticker,
		Artifact:        []byte(r.Artifact),
		ComputedAt:      r.ComputedAt,
		MethodTag:       r.MethodTag,
		ProviderSources: r.ProviderSources,
	}
}

var _ interfaces.ArtifactCache = (*CacheStore)(nil)
