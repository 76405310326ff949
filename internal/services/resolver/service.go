// Package resolver serves derived metrics from the artifact cache and
// computes them on demand when the cache has nothing usable.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/interfaces"
	"github.com/bobmcallan/tickermetrics/internal/models"
	"github.com/bobmcallan/tickermetrics/internal/services/metrics"
)

// DefaultMethodTag identifies the calculation variant stored with each artifact
const DefaultMethodTag = "method_1c"

// Options configures a Service
type Options struct {
	MethodTag string
	// MaxAge marks cached artifacts older than this as misses. Zero never expires.
	MaxAge time.Duration
	// CurrentYear pins the year used by the computation. Zero follows the clock.
	CurrentYear int
	// Events receives one event per finished computation. Optional.
	Events interfaces.EventPublisher
}

// Service implements interfaces.MetricsResolver
type Service struct {
	aggregator  interfaces.Aggregator
	cache       interfaces.ArtifactCache
	logger      *common.Logger
	methodTag   string
	maxAge      time.Duration
	currentYear int
	events      interfaces.EventPublisher
	now         func() time.Time // injectable clock for testing

	flights    singleflight.Group
	background sync.WaitGroup

	// failures holds the last background failure per ticker until a Lookup
	// reports it or a later computation succeeds.
	failuresMu sync.Mutex
	failures   map[string]*ComputationFailed
}

// NewService creates a resolver over the given aggregator and cache.
func NewService(aggregator interfaces.Aggregator, cache interfaces.ArtifactCache, logger *common.Logger, opts Options) *Service {
	tag := opts.MethodTag
	if tag == "" {
		tag = DefaultMethodTag
	}
	return &Service{
		aggregator:  aggregator,
		cache:       cache,
		logger:      logger,
		methodTag:   tag,
		maxAge:      opts.MaxAge,
		currentYear: opts.CurrentYear,
		events:      opts.Events,
		now:         time.Now,
		failures:    make(map[string]*ComputationFailed),
	}
}

// Resolve returns the cached artifact for the ticker, computing and storing it
// on a miss. A provided price skips the cache read since it changes the result;
// the computed artifact is still written back.
func (s *Service) Resolve(ctx context.Context, ticker string, opts interfaces.ResolveOptions) (*models.CacheEntry, error) {
	key := models.NormalizeTicker(ticker)
	if key == "" {
		return nil, ErrInvalidTicker
	}

	if opts.ProvidedPrice == nil {
		entry, err := s.cached(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			s.logger.Debug().Str("ticker", key).Msg("Serving cached metrics")
			return entry, nil
		}
	}

	return s.compute(ctx, key, opts.ProvidedPrice)
}

// Lookup serves from the cache only. On a miss it starts a background
// computation and returns ErrNotComputedYet. If the previous background
// computation for the ticker failed, that failure is returned once instead
// and the next Lookup starts over.
func (s *Service) Lookup(ctx context.Context, ticker string) (*models.CacheEntry, error) {
	key := models.NormalizeTicker(ticker)
	if key == "" {
		return nil, ErrInvalidTicker
	}

	entry, err := s.cached(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}
	if failed := s.takeFailure(key); failed != nil {
		return nil, failed
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bg := context.WithoutCancel(ctx)
		if _, err := s.compute(bg, key, nil); err != nil {
			s.logger.Warn().Str("ticker", key).Err(err).Msg("Background metrics computation failed")
			s.recordFailure(key, err)
		}
	}()

	return nil, ErrNotComputedYet
}

// Refresh recomputes unconditionally and overwrites the cached artifact.
func (s *Service) Refresh(ctx context.Context, ticker string, opts interfaces.ResolveOptions) (*models.CacheEntry, error) {
	key := models.NormalizeTicker(ticker)
	if key == "" {
		return nil, ErrInvalidTicker
	}
	return s.compute(ctx, key, opts.ProvidedPrice)
}

// Wait blocks until every background computation started by Lookup has finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// cached returns a usable cache entry, or nil when absent or stale.
func (s *Service) cached(ctx context.Context, key string) (*models.CacheEntry, error) {
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, &ComputationFailed{Ticker: key, Err: fmt.Errorf("cache read: %w", err)}
	}
	if entry == nil {
		return nil, nil
	}
	if s.maxAge > 0 && !common.IsFresh(entry.ComputedAt, s.maxAge, s.now()) {
		s.logger.Debug().Str("ticker", key).Str("computed_at", entry.ComputedAt.Format(time.RFC3339)).Msg("Cached metrics are stale")
		return nil, nil
	}
	return entry, nil
}

// compute runs one aggregate, compute and store pass. Concurrent callers for
// the same ticker and price share a single pass.
func (s *Service) compute(ctx context.Context, key string, providedPrice *float64) (*models.CacheEntry, error) {
	flight := key
	if providedPrice != nil {
		flight = key + "@" + strconv.FormatFloat(*providedPrice, 'f', -1, 64)
	}

	// The shared pass must not die with whichever caller happened to start it
	shared := context.WithoutCancel(ctx)

	v, err, joined := s.flights.Do(flight, func() (interface{}, error) {
		entry, err := s.run(shared, key, providedPrice)
		s.publish(key, entry, err)
		return entry, err
	})
	if joined {
		s.logger.Debug().Str("ticker", key).Msg("Joined in-flight metrics computation")
	}
	if err != nil {
		return nil, err
	}
	return cloneEntry(v.(*models.CacheEntry)), nil
}

func (s *Service) run(ctx context.Context, key string, providedPrice *float64) (entry *models.CacheEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("ticker", key).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Metrics computation panicked")
			entry = nil
			err = &ComputationFailed{Ticker: key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := s.now()
	snap := s.aggregator.Aggregate(ctx, key, providedPrice)
	artifact := metrics.Compute(snap, metrics.Options{CurrentYear: s.year()})

	entry = &models.CacheEntry{
		Ticker:          key,
		Artifact:        artifact,
		ComputedAt:      s.now().UTC().Truncate(time.Microsecond),
		MethodTag:       s.methodTag,
		ProviderSources: append([]string{}, snap.SourcesUsed...),
	}

	if err := s.cache.Put(ctx, entry); err != nil {
		return nil, &ComputationFailed{Ticker: key, Err: fmt.Errorf("cache write: %w", err)}
	}
	s.clearFailure(key)

	s.logger.Info().
		Str("ticker", key).
		Str("price_source", string(artifact.CurrentPriceSource)).
		Int("sources", len(entry.ProviderSources)).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Metrics computed")

	return entry, nil
}

func (s *Service) recordFailure(key string, err error) {
	var failed *ComputationFailed
	if !errors.As(err, &failed) {
		failed = &ComputationFailed{Ticker: key, Err: err}
	}
	s.failuresMu.Lock()
	s.failures[key] = failed
	s.failuresMu.Unlock()
}

func (s *Service) clearFailure(key string) {
	s.failuresMu.Lock()
	delete(s.failures, key)
	s.failuresMu.Unlock()
}

// takeFailure returns and forgets the recorded failure for the ticker.
func (s *Service) takeFailure(key string) *ComputationFailed {
	s.failuresMu.Lock()
	defer s.failuresMu.Unlock()
	failed := s.failures[key]
	delete(s.failures, key)
	return failed
}

func (s *Service) publish(key string, entry *models.CacheEntry, err error) {
	if s.events == nil {
		return
	}
	event := models.MetricsEvent{
		Type:      models.EventMetricsComputed,
		Ticker:    key,
		Timestamp: s.now().UTC(),
	}
	if err != nil {
		event.Type = models.EventMetricsFailed
		event.Error = err.Error()
	} else {
		computedAt := entry.ComputedAt
		event.ComputedAt = &computedAt
		event.MethodTag = entry.MethodTag
	}
	s.events.Publish(event)
}

func (s *Service) year() int {
	cfg := common.MetricsConfig{CurrentYear: s.currentYear}
	return cfg.ResolveCurrentYear(s.now())
}

func cloneEntry(e *models.CacheEntry) *models.CacheEntry {
	out := *e
	out.ProviderSources = append([]string{}, e.ProviderSources...)
	return &out
}

var _ interfaces.MetricsResolver = (*Service)(nil)
