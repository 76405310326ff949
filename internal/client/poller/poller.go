// Package poller implements the client side of the poll-mode metrics
// protocol: fetch, retry on not-computed at a fixed interval, give up after a
// bounded number of attempts.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/common"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 15
)

var (
	// ErrNotComputedYet is returned by a Fetcher when the server has no
	// artifact yet but has started computing one.
	ErrNotComputedYet = errors.New("metrics not computed yet")

	ErrCancelled      = errors.New("polling cancelled")
	ErrAlreadyStarted = errors.New("polling already started")
)

// ExhaustedError reports that every attempt came back not-computed.
type ExhaustedError struct {
	Ticker   string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("metrics for %s not available after %d attempts", e.Ticker, e.Attempts)
}

func (e *ExhaustedError) Unwrap() error { return ErrNotComputedYet }

// Fetcher performs one metrics request.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string) (*models.DerivedMetrics, error)
}

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Poller. Zero values take the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Scheduler   Scheduler
	Logger      *common.Logger
}

// Poller drives one polling session for one ticker. A Poller is single-use.
type Poller struct {
	fetcher   Fetcher
	scheduler Scheduler
	logger    *common.Logger
	now       func() time.Time

	mu        sync.Mutex
	session   models.PollingSession
	cancelled bool
	timer     Timer
	ctx       context.Context
	stop      context.CancelFunc
	result    *models.DerivedMetrics
	err       error
	done      chan struct{}
}

// New creates an idle poller for ticker.
func New(fetcher Fetcher, ticker string, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = common.NewSilentLogger()
	}
	return &Poller{
		fetcher:   fetcher,
		scheduler: opts.Scheduler,
		logger:    opts.Logger,
		now:       time.Now,
		session: models.PollingSession{
			Ticker:      strings.ToUpper(strings.TrimSpace(ticker)),
			MaxAttempts: opts.MaxAttempts,
			Interval:    opts.Interval,
			State:       models.PollIdle,
		},
		done: make(chan struct{}),
	}
}

// Start issues the first fetch in the background. Cancelling ctx cancels the session.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.session.State != models.PollIdle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.ctx, p.stop = context.WithCancel(ctx)
	p.session.StartedAt = p.now()
	p.session.State = models.PollFetching
	runCtx := p.ctx
	p.logger.Debug().
		Str("ticker", p.session.Ticker).
		Int("max_attempts", p.session.MaxAttempts).
		Dur("interval", p.session.Interval).
		Msg("Polling started")
	p.mu.Unlock()

	go func() {
		select {
		case <-runCtx.Done():
			p.Cancel()
		case <-p.done:
		}
	}()
	go p.attempt()
	return nil
}

// attempt performs one fetch and decides the next transition.
func (p *Poller) attempt() {
	p.mu.Lock()
	if p.cancelled || p.session.State.Terminal() {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.session.AttemptCount++
	p.session.State = models.PollFetching
	n := p.session.AttemptCount
	ctx := p.ctx
	ticker := p.session.Ticker
	p.mu.Unlock()

	metrics, err := p.fetcher.Fetch(ctx, ticker)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Cancel may have run while the request was in flight
	if p.cancelled || p.session.State.Terminal() {
		return
	}
	if ctx.Err() != nil {
		p.cancelLocked()
		return
	}

	switch {
	case err == nil:
		p.logger.Debug().Str("ticker", ticker).Int("attempt", n).Msg("Polling succeeded")
		p.finishLocked(models.PollSucceeded, metrics, nil)
	case errors.Is(err, ErrNotComputedYet):
		if n >= p.session.MaxAttempts {
			p.logger.Warn().Str("ticker", ticker).Int("attempts", n).Msg("Polling attempts exhausted")
			p.finishLocked(models.PollFailed, nil, &ExhaustedError{Ticker: ticker, Attempts: n})
			return
		}
		p.session.State = models.PollPolling
		p.timer = p.scheduler.AfterFunc(p.session.Interval, p.attempt)
	default:
		p.logger.Warn().Str("ticker", ticker).Int("attempt", n).Err(err).Msg("Polling failed")
		p.finishLocked(models.PollFailed, nil, err)
	}
}

// Cancel stops the session. Results of any in-flight request are discarded.
// Cancel is a no-op once the session is terminal.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session.State.Terminal() {
		return
	}
	p.cancelLocked()
}

func (p *Poller) cancelLocked() {
	p.cancelled = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.finishLocked(models.PollCancelled, nil, ErrCancelled)
}

func (p *Poller) finishLocked(state models.PollState, metrics *models.DerivedMetrics, err error) {
	p.session.State = state
	p.result = metrics
	p.err = err
	if p.stop != nil {
		p.stop()
	}
	close(p.done)
}

// Wait blocks until the session is terminal or ctx is done.
func (p *Poller) Wait(ctx context.Context) (*models.DerivedMetrics, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns a copy of the session.
func (p *Poller) Snapshot() models.PollingSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Poll runs a session to completion.
func Poll(ctx context.Context, fetcher Fetcher, ticker string, opts Options) (*models.DerivedMetrics, error) {
	p := New(fetcher, ticker, opts)
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p.Wait(context.Background())
}
