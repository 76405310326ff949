package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) interfaces.ArtifactCache {
		return newTestStore(t)
	})
}

func TestStore_OpenClose(t *testing.T) {
	store, err := NewStore(common.NewSilentLogger(), filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	assert.NotNil(t, store.DB())
	assert.NoError(t, store.Close())
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{}
	assert.NoError(t, store.Close())
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	first, err := NewStore(common.NewSilentLogger(), dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, storagetest.Entry("AAPL", at)))
	require.NoError(t, first.Close())

	second, err := NewStore(common.NewSilentLogger(), dir)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, at.Equal(got.ComputedAt))
	assert.Equal(t, 12.0, got.Artifact.CurrentYearEPSGrowth.Float64)
}
