// Package surrealdb provides a SurrealDB-backed artifact cache shared by
// several server replicas.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/tickermetrics/internal/common"
)

// cacheTable holds one record per ticker
const cacheTable = "metrics_cache"

// Manager owns the SurrealDB connection and the stores built on it.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger
	cache  *CacheStore
}

// NewManager connects, signs in and prepares the schema.
func NewManager(ctx context.Context, logger *common.Logger, config common.SurrealDBConfig) (*Manager, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// SurrealDB v3 errors on querying non-existent tables
	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", cacheTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to define table %s: %w", cacheTable, err)
	}

	m := &Manager{
		db:     db,
		logger: logger,
		cache:  NewCacheStore(db, logger),
	}

	logger.Info().
		Str("address", config.Address).
		Str("namespace", config.Namespace).
		Str("database", config.Database).
		Msg("SurrealDB cache initialized")

	return m, nil
}

// Cache returns the artifact cache. Closing it closes the connection.
func (m *Manager) Cache() *CacheStore {
	return m.cache
}

func (m *Manager) Close() error {
	return m.cache.Close()
}
