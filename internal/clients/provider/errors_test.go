package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New("fmp", RateLimited, "/api/v3/quote/AAPL", "limit reached")

	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("estimates: %w", err)
	assert.True(t, errors.Is(wrapped, ErrRateLimited))
	assert.Equal(t, RateLimited, KindOf(wrapped))
}

func TestKindOf_NonProviderError(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("boom")))
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestTransport_TimeoutIsNetworkFailure(t *testing.T) {
	err := Transport("alphavantage", "/query", context.DeadlineExceeded)

	assert.Equal(t, NetworkFailure, err.Kind)
	assert.Equal(t, "timeout", err.Message)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStatus_Classification(t *testing.T) {
	assert.Equal(t, RateLimited, Status("fmp", "/x", 429, "").Kind)
	assert.Equal(t, NotFound, Status("fmp", "/x", 404, "").Kind)
	assert.Equal(t, NetworkFailure, Status("fmp", "/x", 502, "bad gateway").Kind)
}

func TestError_MessageFormat(t *testing.T) {
	err := Status("fmp", "/api/v3/quote/AAPL", 500, "oops")
	assert.Equal(t, "fmp network_failure (endpoint: /api/v3/quote/AAPL, status: 500): oops", err.Error())
}
