// Package fmp provides a client for the Financial Modeling Prep estimates and quote API
package fmp

import (
	"bytes"
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
	ProviderName     = "fmp"
	DefaultBaseURL   = "https://financialmodelingprep.com"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second

	// Estimates window requested per call
	DefaultPeriod = "annual"
	DefaultLimit  = 10
)

// Client implements interfaces.EstimatesProvider and interfaces.QuoteProvider
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *common.Logger
	limiter    *rate.Limiter
	period     string
	limit      int
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

// WithPeriod selects annual or quarterly estimates. Empty keeps the default.
func WithPeriod(period string) ClientOption {
	return func(c *Client) {
		if period != "" {
			c.period = period
		}
	}
}

// WithLimit sets how many estimate periods are requested. Zero keeps the default.
func WithLimit(limit int) ClientOption {
	return func(c *Client) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new FMP client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		period:     DefaultPeriod,
		limit:      DefaultLimit,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// errorBody is what FMP sends instead of data when a call is refused
type errorBody struct {
	ErrorMessage string `json:"Error Message"`
}

// get performs a rate-limited, time-bounded GET and returns the raw body.
// A refusal object in an otherwise successful response is classified here.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, provider.Transport(ProviderName, path, fmt.Errorf("rate limit wait: %w", err))
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, provider.Transport(ProviderName, path, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL+path).Msg("FMP API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.Transport(ProviderName, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Transport(ProviderName, path, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, provider.Status(ProviderName, path, resp.StatusCode, string(body))
	}

	if err := checkRefusal(path, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkRefusal inspects an object-shaped body for the "Error Message" marker.
// FMP reports exhausted quotas this way with a 200 status. An empty object
// means the symbol is unknown.
func checkRefusal(path string, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return provider.Decode(ProviderName, path, err)
	}
	if len(fields) == 0 {
		return provider.New(ProviderName, provider.NotFound, path, "empty response object")
	}

	var eb errorBody
	if err := json.Unmarshal(trimmed, &eb); err != nil {
		return provider.Decode(ProviderName, path, err)
	}
	if eb.ErrorMessage == "" {
		return nil
	}

	msg := strings.ToLower(eb.ErrorMessage)
	if strings.Contains(msg, "limit") {
		return provider.New(ProviderName, provider.RateLimited, path, eb.ErrorMessage)
	}
	return provider.New(ProviderName, provider.Malformed, path, eb.ErrorMessage)
}

// Name identifies the provider in cache entries and logs
func (c *Client) Name() string {
	return ProviderName
}
