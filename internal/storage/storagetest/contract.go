// Package storagetest holds the behaviour every ArtifactCache backend must
// share, so each backend's tests run the same suite.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

// Entry builds a realistic cache entry for the given ticker
func Entry(ticker string, computedAt time.Time) *models.CacheEntry {
	return &models.CacheEntry{
		Ticker: ticker,
		Artifact: models.DerivedMetrics{
			Ticker:               models.NormalizeTicker(ticker),
			CurrentPrice:         models.MetricFrom(178.01),
			CurrentPriceSource:   models.PriceFetched,
			MarketCap:            models.MetricFrom(2.75e12),
			TTMPE:                models.MetricFrom(29.4),
			CurrentYearEPSGrowth: models.MetricFrom(12),
			NetMargin:            models.MetricFrom(25.12),
		},
		ComputedAt:      computedAt,
		MethodTag:       "method_1c",
		ProviderSources: []string{"alphavantage:fundamentals", "fmp:estimates"},
	}
}

// Run exercises an ArtifactCache implementation. newCache must return an
// empty cache; the suite does not close it.
func Run(t *testing.T, newCache func(t *testing.T) interfaces.ArtifactCache) {
	t.Helper()
	ctx := context.Background()
	computedAt := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		c := newCache(t)
		got, err := c.Get(ctx, "NOPE")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("PutThenGetIsByteIdentical", func(t *testing.T) {
		c := newCache(t)
		in := Entry("AAPL", computedAt)
		require.NoError(t, c.Put(ctx, in))

		got, err := c.Get(ctx, "AAPL")
		require.NoError(t, err)
		require.NotNil(t, got)

		want, _ := json.Marshal(in.Artifact)
		have, _ := json.Marshal(got.Artifact)
		assert.Equal(t, string(want), string(have))
		assert.True(t, computedAt.Equal(got.ComputedAt))
		assert.Equal(t, "method_1c", got.MethodTag)
		assert.Equal(t, in.ProviderSources, got.ProviderSources)
	})

	t.Run("KeysAreNormalised", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, Entry(" msft ", computedAt)))

		got, err := c.Get(ctx, "Msft")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "MSFT", got.Ticker)
	})

	t.Run("PutReplacesWholeEntry", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, Entry("AAPL", computedAt)))

		replacement := Entry("AAPL", computedAt.Add(time.Hour))
		replacement.Artifact = models.DerivedMetrics{
			Ticker:             "AAPL",
			CurrentPrice:       models.MetricFrom(150),
			CurrentPriceSource: models.PriceProvided,
		}
		replacement.ProviderSources = nil
		require.NoError(t, c.Put(ctx, replacement))

		got, err := c.Get(ctx, "AAPL")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Artifact.MarketCap.Valid, "no field survives from the old entry")
		assert.Equal(t, models.PriceProvided, got.Artifact.CurrentPriceSource)
		assert.Empty(t, got.ProviderSources)
		assert.True(t, computedAt.Add(time.Hour).Equal(got.ComputedAt))
	})

	t.Run("Delete", func(t *testing.T) {
		c := newCache(t)
		require.NoError(t, c.Put(ctx, Entry("AAPL", computedAt)))
		require.NoError(t, c.Delete(ctx, "aapl"))

		got, err := c.Get(ctx, "AAPL")
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.NoError(t, c.Delete(ctx, "AAPL"), "deleting a missing key is not an error")
	})

	t.Run("ListIsSortedByTicker", func(t *testing.T) {
		c := newCache(t)
		for _, ticker := range []string{"MSFT", "AAPL", "IBM"} {
			require.NoError(t, c.Put(ctx, Entry(ticker, computedAt)))
		}

		list, err := c.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "AAPL", list[0].Ticker)
		assert.Equal(t, "IBM", list[1].Ticker)
		assert.Equal(t, "MSFT", list[2].Ticker)
		assert.Equal(t, "method_1c", list[0].MethodTag)
	})

	t.Run("RejectsEntryWithoutTicker", func(t *testing.T) {
		c := newCache(t)
		assert.Error(t, c.Put(ctx, Entry("  ", computedAt)))
		assert.Error(t, c.Put(ctx, nil))
	})

	t.Run("ConcurrentWritersLastOneWins", func(t *testing.T) {
		c := newCache(t)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e := Entry("NVDA", computedAt.Add(time.Duration(i)*time.Minute))
				e.MethodTag = fmt.Sprintf("method_%d", i)
				assert.NoError(t, c.Put(ctx, e))
			}(i)
		}
		wg.Wait()

		got, err := c.Get(ctx, "NVDA")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Contains(t, got.MethodTag, "method_")
		// whichever write won, its fields are consistent with each other
		minutes := int(got.ComputedAt.Sub(computedAt) / time.Minute)
		assert.Equal(t, fmt.Sprintf("method_%d", minutes), got.MethodTag)
	})
}
