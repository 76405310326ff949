package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// notComputedCode is the envelope error code for a pending computation
const notComputedCode = "not_computed"

// ErrorEnvelope is the JSON error body returned by the metrics server.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Ticker  string `json:"ticker,omitempty"`
}

// HTTPError is any error response other than the server's not_computed 404.
type HTTPError struct {
	Status   int
	Envelope ErrorEnvelope
}

func (e *HTTPError) Error() string {
	if e.Envelope.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Envelope.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// HTTPFetcher reads metrics from the REST API in poll mode.
type HTTPFetcher struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.httpClient = hc
	}
}

// WithBearerToken sends the token in the Authorization header
func WithBearerToken(token string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.token = token
	}
}

// NewHTTPFetcher creates a fetcher for the server at baseURL.
func NewHTTPFetcher(baseURL string, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one poll-mode request. Only a 404 carrying the not_computed
// envelope maps to ErrNotComputedYet; any other 404 is an HTTPError.
func (f *HTTPFetcher) Fetch(ctx context.Context, ticker string) (*models.DerivedMetrics, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("mode", "poll")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/metrics?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var metrics models.DerivedMetrics
		if err := json.Unmarshal(body, &metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics: %w", err)
		}
		return &metrics, nil
	}

	herr := &HTTPError{Status: resp.StatusCode}
	// A non-JSON body leaves the envelope empty
	_ = json.Unmarshal(body, &herr.Envelope)
	if resp.StatusCode == http.StatusNotFound && herr.Envelope.Error == notComputedCode {
		return nil, ErrNotComputedYet
	}
	return nil, herr
}
