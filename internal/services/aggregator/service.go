// Package aggregator fans out to the upstream providers and collects every outcome
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/tickermetrics/internal/clients/provider"
	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

// DefaultPrice is used when no price is provided and every quote source fails
const DefaultPrice = 100.0

// Sources wires the providers the aggregator calls. Any of them may be nil.
type Sources struct {
	Estimates    interfaces.EstimatesProvider
	Fundamentals interfaces.FundamentalsProvider
	// Quotes are tried in order until one returns a price
	Quotes []interfaces.QuoteProvider
}

// Service implements interfaces.Aggregator
type Service struct {
	sources      Sources
	defaultPrice float64
	logger       *common.Logger
	now          func() time.Time
}

var _ interfaces.Aggregator = (*Service)(nil)

// NewService creates an aggregator. A non-positive defaultPrice falls back to DefaultPrice.
func NewService(sources Sources, defaultPrice float64, logger *common.Logger) *Service {
	if defaultPrice <= 0 {
		defaultPrice = DefaultPrice
	}
	return &Service{
		sources:      sources,
		defaultPrice: defaultPrice,
		logger:       logger,
		now:          time.Now,
	}
}

// named is implemented by provider clients that can label their output
type named interface {
	Name() string
}

func sourceLabel(p any, kind string) string {
	if n, ok := p.(named); ok {
		return n.Name() + ":" + kind
	}
	return kind
}

// Aggregate issues the estimates, fundamentals and (when providedPrice is nil) price fetches
// concurrently and waits for all of them. Failures are logged and leave their slot empty.
func (s *Service) Aggregate(ctx context.Context, ticker string, providedPrice *float64) models.AggregateSnapshot {
	ticker = models.NormalizeTicker(ticker)
	snap := models.AggregateSnapshot{Ticker: ticker}

	var (
		mu      sync.Mutex
		sources []string
		fetched *models.PriceQuote
	)

	// Every branch returns nil so one failure never cancels the others
	g, gctx := errgroup.WithContext(ctx)

	if s.sources.Estimates != nil {
		g.Go(func() error {
			estimates, err := s.sources.Estimates.FetchEstimates(gctx, ticker)
			if err != nil {
				s.logFailure(ticker, "estimates", err)
				return nil
			}
			mu.Lock()
			snap.Estimates = estimates
			sources = append(sources, sourceLabel(s.sources.Estimates, "estimates"))
			mu.Unlock()
			return nil
		})
	}

	if s.sources.Fundamentals != nil {
		g.Go(func() error {
			f, err := s.sources.Fundamentals.FetchFundamentals(gctx, ticker)
			if err != nil {
				s.logFailure(ticker, "fundamentals", err)
				return nil
			}
			mu.Lock()
			snap.Fundamentals = f
			sources = append(sources, sourceLabel(s.sources.Fundamentals, "fundamentals"))
			mu.Unlock()
			return nil
		})
	}

	hasProvided := providedPrice != nil && *providedPrice > 0
	if !hasProvided && len(s.sources.Quotes) > 0 {
		g.Go(func() error {
			for i, qp := range s.sources.Quotes {
				if qp == nil {
					continue
				}
				q, err := qp.FetchQuote(gctx, ticker)
				if err != nil {
					s.logFailure(ticker, fmt.Sprintf("quote[%d]", i), err)
					continue
				}
				if q == nil || q.Price <= 0 {
					s.logger.Warn().Str("ticker", ticker).Int("source", i).Msg("Quote without a usable price, trying next source")
					continue
				}
				mu.Lock()
				fetched = q
				sources = append(sources, sourceLabel(qp, "quote"))
				mu.Unlock()
				return nil
			}
			return nil
		})
	}

	_ = g.Wait()

	snap.Price = s.resolvePrice(ticker, providedPrice, fetched)
	sort.Strings(sources)
	snap.SourcesUsed = sources

	s.logger.Debug().
		Str("ticker", ticker).
		Int("estimates", len(snap.Estimates)).
		Bool("fundamentals", snap.Fundamentals != nil).
		Str("price_source", string(snap.Price.SourceRank)).
		Msg("Aggregate complete")

	return snap
}

// resolvePrice applies provided > fetched > default
func (s *Service) resolvePrice(ticker string, providedPrice *float64, fetched *models.PriceQuote) models.PriceQuote {
	now := s.now()
	switch {
	case providedPrice != nil && *providedPrice > 0:
		return models.PriceQuote{Ticker: ticker, Price: *providedPrice, AsOf: now, SourceRank: models.PriceProvided}
	case fetched != nil && fetched.Price > 0:
		q := *fetched
		q.Ticker = ticker
		q.SourceRank = models.PriceFetched
		return q
	default:
		return models.PriceQuote{Ticker: ticker, Price: s.defaultPrice, AsOf: now, SourceRank: models.PriceDefault}
	}
}

func (s *Service) logFailure(ticker, input string, err error) {
	s.logger.Warn().
		Str("ticker", ticker).
		Str("input", input).
		Str("classification", provider.KindOf(err).String()).
		Err(err).
		Msg("Provider fetch failed, continuing without it")
}
