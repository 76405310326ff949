package surrealdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/storage/storagetest"
)

func TestCacheStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) interfaces.ArtifactCache {
		return testManager(t).Cache()
	})
}

func TestNewManager_BadAddress(t *testing.T) {
	cfg := common.SurrealDBConfig{Address: "ws://127.0.0.1:1/rpc", Username: "root", Password: "root"}
	_, err := NewManager(context.Background(), common.NewSilentLogger(), cfg)
	assert.Error(t, err)
}

func TestCacheStore_HostileTickerIsJustAKey(t *testing.T) {
	cache := testManager(t).Cache()
	ctx := context.Background()

	got, err := cache.Get(ctx, "AAPL'; DELETE metrics_cache; --")
	require.NoError(t, err)
	assert.Nil(t, got)
}
