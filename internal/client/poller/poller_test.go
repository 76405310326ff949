package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// --- Test doubles ---

type manualTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// manualScheduler queues callbacks until the test fires them.
type manualScheduler struct {
	mu        sync.Mutex
	pending   []*manualTimer
	scheduled chan time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{scheduled: make(chan time.Duration, 64)}
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{f: f}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	s.scheduled <- d
	return t
}

// fire runs the oldest pending callback on the calling goroutine.
func (s *manualScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	require.NotEmpty(t, s.pending, "no timer pending")
	timer := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	timer.mu.Lock()
	run := !timer.stopped
	timer.fired = true
	timer.mu.Unlock()
	if run {
		timer.f()
	}
}

func (s *manualScheduler) awaitScheduled(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-s.scheduled:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a retry to be scheduled")
		return 0
	}
}

type scriptedFetcher struct {
	calls   atomic.Int32
	respond func(n int32) (*models.DerivedMetrics, error)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, ticker string) (*models.DerivedMetrics, error) {
	return f.respond(f.calls.Add(1))
}

func artifact(ticker string) *models.DerivedMetrics {
	return &models.DerivedMetrics{Ticker: ticker, CurrentPrice: models.MetricFrom(178.01)}
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --- Tests ---

func TestPoller_SucceedsOnThirdAttempt(t *testing.T) {
	sched := newManualScheduler()
	fetcher := &scriptedFetcher{respond: func(n int32) (*models.DerivedMetrics, error) {
		if n < 3 {
			return nil, ErrNotComputedYet
		}
		return artifact("AAPL"), nil
	}}
	p := New(fetcher, "aapl", Options{Scheduler: sched})

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, DefaultInterval, sched.awaitScheduled(t))
	assert.Equal(t, models.PollPolling, p.Snapshot().State)

	sched.fire(t)
	sched.awaitScheduled(t)
	sched.fire(t)

	got, err := p.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)

	snap := p.Snapshot()
	assert.Equal(t, models.PollSucceeded, snap.State)
	assert.Equal(t, 3, snap.AttemptCount)
	assert.Equal(t, int32(3), fetcher.calls.Load())
	assert.Empty(t, sched.scheduled, "no retry after success")
}

func TestPoller_ExhaustsAfterMaxAttempts(t *testing.T) {
	sched := newManualScheduler()
	fetcher := &scriptedFetcher{respond: func(int32) (*models.DerivedMetrics, error) {
		return nil, ErrNotComputedYet
	}}
	p := New(fetcher, "NVDA", Options{Scheduler: sched})

	require.NoError(t, p.Start(context.Background()))
	for i := 1; i < DefaultMaxAttempts; i++ {
		sched.awaitScheduled(t)
		sched.fire(t)
	}

	_, err := p.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Equal(t, "metrics for NVDA not available after 15 attempts", err.Error())
	assert.True(t, errors.Is(err, ErrNotComputedYet))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 15, exhausted.Attempts)

	assert.Equal(t, int32(15), fetcher.calls.Load(), "no 16th request")
	assert.Empty(t, sched.scheduled)
	assert.Equal(t, models.PollFailed, p.Snapshot().State)
}

func TestPoller_CancelDuringSecondAttemptSuppressesThird(t *testing.T) {
	sched := newManualScheduler()
	inFlight := make(chan struct{})
	release := make(chan struct{})
	fetcher := &scriptedFetcher{respond: func(n int32) (*models.DerivedMetrics, error) {
		if n == 2 {
			close(inFlight)
			<-release
		}
		return nil, ErrNotComputedYet
	}}
	p := New(fetcher, "MSFT", Options{Scheduler: sched})

	require.NoError(t, p.Start(context.Background()))
	sched.awaitScheduled(t)

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		sched.fire(t)
	}()
	<-inFlight

	p.Cancel()
	close(release)
	<-fired

	_, err := p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCancelled)

	snap := p.Snapshot()
	assert.Equal(t, models.PollCancelled, snap.State)
	assert.Equal(t, 2, snap.AttemptCount)
	assert.Empty(t, sched.scheduled, "late response must not schedule attempt 3")
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestPoller_CancelWhileWaitingStopsTimer(t *testing.T) {
	sched := newManualScheduler()
	fetcher := &scriptedFetcher{respond: func(int32) (*models.DerivedMetrics, error) {
		return nil, ErrNotComputedYet
	}}
	p := New(fetcher, "MSFT", Options{Scheduler: sched})

	require.NoError(t, p.Start(context.Background()))
	sched.awaitScheduled(t)

	p.Cancel()
	sched.fire(t)

	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, models.PollCancelled, p.Snapshot().State)
	assert.Equal(t, 1, p.Snapshot().AttemptCount)
}

func TestPoller_OtherErrorsFailImmediately(t *testing.T) {
	sched := newManualScheduler()
	serverErr := &HTTPError{Status: 500, Envelope: ErrorEnvelope{Error: "computation_failed", Message: "boom"}}
	fetcher := &scriptedFetcher{respond: func(int32) (*models.DerivedMetrics, error) {
		return nil, serverErr
	}}
	p := New(fetcher, "AAPL", Options{Scheduler: sched})

	require.NoError(t, p.Start(context.Background()))
	_, err := p.Wait(waitCtx(t))

	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, 500, herr.Status)
	assert.False(t, errors.Is(err, ErrNotComputedYet))
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Empty(t, sched.scheduled)
	assert.Equal(t, models.PollFailed, p.Snapshot().State)
}

func TestPoller_ContextCancellation(t *testing.T) {
	fetcher := &scriptedFetcher{respond: func(int32) (*models.DerivedMetrics, error) {
		return nil, ErrNotComputedYet
	}}
	ctx, cancel := context.WithCancel(context.Background())
	p := New(fetcher, "AAPL", Options{Interval: 5 * time.Millisecond, MaxAttempts: 1000})

	require.NoError(t, p.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	cancel()

	_, err := p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCancelled)

	calls := fetcher.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fetcher.calls.Load(), "no requests after cancellation")
}

func TestPoller_StartTwice(t *testing.T) {
	fetcher := &scriptedFetcher{respond: func(int32) (*models.DerivedMetrics, error) {
		return artifact("AAPL"), nil
	}}
	p := New(fetcher, "AAPL", Options{})

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
}

func TestPoll_RealScheduler(t *testing.T) {
	fetcher := &scriptedFetcher{respond: func(n int32) (*models.DerivedMetrics, error) {
		if n < 2 {
			return nil, ErrNotComputedYet
		}
		return artifact("IBM"), nil
	}}

	got, err := Poll(context.Background(), fetcher, "IBM", Options{Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "IBM", got.Ticker)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestNew_Defaults(t *testing.T) {
	p := New(&scriptedFetcher{}, " tsla ", Options{})
	snap := p.Snapshot()

	assert.Equal(t, "TSLA", snap.Ticker)
	assert.Equal(t, DefaultMaxAttempts, snap.MaxAttempts)
	assert.Equal(t, DefaultInterval, snap.Interval)
	assert.Equal(t, models.PollIdle, snap.State)
}
