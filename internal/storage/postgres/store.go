// Package postgres provides a PostgreSQL-backed artifact cache.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
	"github.com/bobmcallan/tickermetrics/internal/storage/record"
)

// The artifact column is JSON rather than JSONB: JSONB reorders keys and
// the stored bytes must come back unchanged.
const schema = `
CREATE TABLE IF NOT EXISTS metrics_cache (
	ticker           TEXT PRIMARY KEY,
	artifact         JSON NOT NULL,
	computed_at      TIMESTAMPTZ NOT NULL,
	method_tag       TEXT NOT NULL,
	provider_sources TEXT[] NOT NULL DEFAULT '{}'
)`

// Store is a pgxpool-backed ArtifactCache
type Store struct {
	pool   *pgxpool.Pool
	logger *common.Logger
}

// NewStore opens a pool against the DSN and ensures the table exists.
func NewStore(ctx context.Context, logger *common.Logger, config common.PostgresConfig) (*Store, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres dsn not set")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create metrics_cache table: %w", err)
	}

	logger.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("PostgreSQL cache initialized")

	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, ticker string) (*models.CacheEntry, error) {
	key := models.NormalizeTicker(ticker)
	query := `
		SELECT ticker, artifact, computed_at, method_tag, provider_sources
		FROM metrics_cache
		WHERE ticker = $1
	`
	var rec record.Record
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&rec.Ticker, &rec.Artifact, &rec.ComputedAt, &rec.MethodTag, &rec.ProviderSources,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact '%s': %w", key, err)
	}
	return rec.Entry()
}

func (s *Store) Put(ctx context.Context, entry *models.CacheEntry) error {
	rec, err := record.FromEntry(entry)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO metrics_cache (ticker, artifact, computed_at, method_tag, provider_sources)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticker) DO UPDATE SET
			artifact = EXCLUDED.artifact,
			computed_at = EXCLUDED.computed_at,
			method_tag = EXCLUDED.method_tag,
			provider_sources = EXCLUDED.provider_sources
	`
	if _, err := s.pool.Exec(ctx, query,
		rec.Ticker, string(rec.Artifact), rec.ComputedAt, rec.MethodTag, rec.ProviderSources,
	); err != nil {
		return fmt.Errorf("failed to save artifact '%s': %w", rec.Ticker, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ticker string) error {
	key := models.NormalizeTicker(ticker)
	if _, err := s.pool.Exec(ctx, `DELETE FROM metrics_cache WHERE ticker = $1`, key); err != nil {
		return fmt.Errorf("failed to delete artifact '%s': %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]models.CacheSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker, computed_at, method_tag FROM metrics_cache ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	out := []models.CacheSummary{}
	for rows.Next() {
		var (
			summary    models.CacheSummary
			computedAt time.Time
		)
		if err := rows.Scan(&summary.Ticker, &computedAt, &summary.MethodTag); err != nil {
			return nil, fmt.Errorf("failed to scan artifact summary: %w", err)
		}
		summary.ComputedAt = computedAt.UTC()
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ interfaces.ArtifactCache = (*Store)(nil)
