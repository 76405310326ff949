package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/clients/provider"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

type quoteResponse struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
	Timestamp int64   `json:"timestamp"`
}

// FetchQuote retrieves the latest traded price for a ticker
func (c *Client) FetchQuote(ctx context.Context, ticker string) (*models.PriceQuote, error) {
	ticker = models.NormalizeTicker(ticker)
	path := fmt.Sprintf("/api/v3/quote/%s", url.PathEscape(ticker))

	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var raw []quoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, provider.Decode(ProviderName, path, err)
	}
	if len(raw) == 0 {
		return nil, provider.New(ProviderName, provider.NotFound, path, "no quote for "+ticker)
	}

	q := raw[0]
	if q.Symbol == "" || !strings.EqualFold(q.Symbol, ticker) {
		return nil, provider.New(ProviderName, provider.Malformed, path, "quote symbol missing or mismatched")
	}
	if q.Price <= 0 {
		return nil, provider.New(ProviderName, provider.Malformed, path, "quote has no positive price")
	}

	asOf := time.Now()
	if q.Timestamp > 0 {
		asOf = time.Unix(q.Timestamp, 0)
	}

	return &models.PriceQuote{
		Ticker:     ticker,
		Price:      q.Price,
		AsOf:       asOf,
		SourceRank: models.PriceFetched,
	}, nil
}
