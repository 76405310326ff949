// Package interfaces defines service contracts for tickermetrics
package interfaces

import (
	"context"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// EstimatesProvider supplies forward-looking analyst estimates.
// Errors are always *provider.Error so callers can classify them.
type EstimatesProvider interface {
	// FetchEstimates retrieves per-period consensus estimates, newest first
	FetchEstimates(ctx context.Context, ticker string) ([]models.PeriodEstimate, error)
}

// QuoteProvider supplies a spot price
type QuoteProvider interface {
	FetchQuote(ctx context.Context, ticker string) (*models.PriceQuote, error)
}

// FundamentalsProvider supplies trailing fundamentals
type FundamentalsProvider interface {
	FetchFundamentals(ctx context.Context, ticker string) (*models.FundamentalsSnapshot, error)
}
