package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

// warmCache computes metrics for the configured tickers so the first query
// for each is served from cache. With force set every ticker is recomputed;
// otherwise cached tickers are left alone.
func warmCache(ctx context.Context, res interfaces.MetricsResolver, tickers []string, force bool, logger *common.Logger) int {
	if os.Getenv("TICKERMETRICS_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via TICKERMETRICS_WARM_CACHE=off")
		return 0
	}
	if len(tickers) == 0 {
		logger.Debug().Msg("Warm cache: no tickers configured, skipping")
		return 0
	}

	start := time.Now()
	warmed := 0
	for _, raw := range tickers {
		if ctx.Err() != nil {
			logger.Warn().Err(ctx.Err()).Int("warmed", warmed).Msg("Warm cache: interrupted")
			return warmed
		}

		ticker := models.NormalizeTicker(raw)
		if ticker == "" {
			continue
		}

		var err error
		if force {
			_, err = res.Refresh(ctx, ticker, interfaces.ResolveOptions{})
		} else {
			_, err = res.Resolve(ctx, ticker, interfaces.ResolveOptions{})
		}
		if err != nil {
			logger.Warn().Str("ticker", ticker).Err(err).Msg("Warm cache: ticker failed")
			continue
		}
		warmed++
	}

	logger.Info().
		Int("tickers", len(tickers)).
		Int("warmed", warmed).
		Bool("forced", force).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")

	return warmed
}
