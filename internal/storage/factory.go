// Package storage selects and opens the configured artifact cache backend.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/storage/badger"
	"github.com/bobmcallan/tickermetrics/internal/storage/memory"
	"github.com/bobmcallan/tickermetrics/internal/storage/postgres"
	"github.com/bobmcallan/tickermetrics/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendMemory    = "memory"
	BackendBadger    = "badger"
	BackendSurrealDB = "surrealdb"
	BackendPostgres  = "postgres"
)

// NewArtifactCache opens the cache named by config.Cache.Backend.
// An empty backend selects the in-memory cache.
func NewArtifactCache(ctx context.Context, config *common.Config, logger *common.Logger) (interfaces.ArtifactCache, error) {
	backend := config.Cache.Backend
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return memory.NewStore(logger), nil

	case BackendBadger:
		return badger.NewStore(logger, config.Storage.Badger.Path)

	case BackendSurrealDB:
		mgr, err := surrealdb.NewManager(ctx, logger, config.Storage.SurrealDB)
		if err != nil {
			return nil, err
		}
		return mgr.Cache(), nil

	case BackendPostgres:
		return postgres.NewStore(ctx, logger, config.Storage.Postgres)

	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, badger, surrealdb, postgres)", backend)
	}
}
