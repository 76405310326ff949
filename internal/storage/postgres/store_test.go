package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/storage/storagetest"
	tcommon "github.com/bobmcallan/tickermetrics/tests/common"
)

// testDSN prefers an externally provided database and otherwise starts a
// container.
func testDSN(t *testing.T) string {
	t.Helper()
	_ = godotenv.Load("../../../.env")
	if dsn := os.Getenv("TICKERMETRICS_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return tcommon.StartPostgres(t).PostgresDSN()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := NewStore(ctx, common.NewSilentLogger(), common.PostgresConfig{DSN: testDSN(t), MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Each test starts from an empty table
	_, err = store.pool.Exec(ctx, `TRUNCATE metrics_cache`)
	require.NoError(t, err)
	return store
}

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) interfaces.ArtifactCache {
		return newTestStore(t)
	})
}

func TestNewStore_RequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), common.NewSilentLogger(), common.PostgresConfig{})
	assert.Error(t, err)
}

func TestStore_ArtifactTextIsPreserved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, storagetest.Entry("AAPL", at)))

	var raw string
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT artifact::text FROM metrics_cache WHERE ticker = 'AAPL'`).Scan(&raw))
	assert.Contains(t, raw, `"current_price":178.01`)
	assert.Contains(t, raw, fmt.Sprintf(`"ticker":%q`, "AAPL"))
}
