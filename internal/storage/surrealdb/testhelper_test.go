package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/common"
	tcommon "github.com/bobmcallan/tickermetrics/tests/common"
)

// testConfig points at the shared container with a unique database per test.
// Subtests produce names like "Test/subtest" and SurrealDB rejects "/".
func testConfig(t *testing.T) common.SurrealDBConfig {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)

	sanitized := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return common.SurrealDBConfig{
		Address:   sc.SurrealAddress(),
		Namespace: "tickermetrics_test",
		Database:  fmt.Sprintf("t_%s_%d", sanitized, time.Now().UnixNano()%100000),
		Username:  "root",
		Password:  "root",
	}
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(context.Background(), common.NewSilentLogger(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}
