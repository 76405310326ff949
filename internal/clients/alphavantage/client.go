// Package alphavantage provides a client for the Alpha Vantage fundamentals API
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/tickermetrics/internal/clients/provider"
	"github.com/bobmcallan/tickermetrics/internal/common"
)

const (
	ProviderName     = "alphavantage"
	DefaultBaseURL   = "https://www.alphavantage.co"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 1 // requests per second
)

// Client implements interfaces.FundamentalsProvider and interfaces.QuoteProvider
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit. Zero disables pacing.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// query performs a rate-limited, time-bounded call to /query and returns the flat object.
// Every Alpha Vantage function answers 200, so refusals are detected from the body.
func (c *Client) query(ctx context.Context, function, symbol string) (map[string]json.RawMessage, error) {
	const path = "/query"
	endpoint := path + "?function=" + function

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, provider.Transport(ProviderName, endpoint, fmt.Errorf("rate limit wait: %w", err))
	}

	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, provider.Transport(ProviderName, endpoint, fmt.Errorf("failed to create request: %w", err))
	}

	c.logger.Debug().Str("function", function).Str("symbol", symbol).Msg("Alpha Vantage API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.Transport(ProviderName, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Transport(ProviderName, endpoint, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, provider.Status(ProviderName, endpoint, resp.StatusCode, string(body))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, provider.Decode(ProviderName, endpoint, err)
	}

	for _, marker := range []string{"Note", "Information"} {
		if msg, ok := raw[marker]; ok {
			return nil, provider.New(ProviderName, provider.RateLimited, endpoint, rawString(msg))
		}
	}
	if msg, ok := raw["Error Message"]; ok {
		return nil, provider.New(ProviderName, provider.NotFound, endpoint, rawString(msg))
	}
	if len(raw) == 0 {
		return nil, provider.New(ProviderName, provider.NotFound, endpoint, "empty response for "+symbol)
	}

	return raw, nil
}

func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return string(v)
	}
	return s
}

// Name identifies the provider in cache entries and logs
func (c *Client) Name() string {
	return ProviderName
}
