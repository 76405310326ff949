package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
)

// warmRunTimeout bounds one scheduled refresh pass
const warmRunTimeout = 10 * time.Minute

// newWarmScheduler builds a cron that recomputes the warm tickers on the
// given standard 5-field schedule. It returns nil when there is nothing to do.
func newWarmScheduler(schedule string, res interfaces.MetricsResolver, tickers []string, logger *common.Logger) (*cron.Cron, error) {
	if schedule == "" || len(tickers) == 0 {
		logger.Debug().Msg("Warm scheduler: no schedule or tickers, not started")
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmRunTimeout)
		defer cancel()
		warmCache(ctx, res, tickers, true, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid warm schedule %q: %w", schedule, err)
	}

	logger.Info().
		Str("schedule", schedule).
		Int("tickers", len(tickers)).
		Msg("Warm scheduler: registered")

	return c, nil
}
