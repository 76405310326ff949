package alphavantage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bobmcallan/tickermetrics/internal/clients/provider"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

// FetchQuote retrieves the latest price from GLOBAL_QUOTE. Used as the price fallback.
func (c *Client) FetchQuote(ctx context.Context, ticker string) (*models.PriceQuote, error) {
	const endpoint = "/query?function=GLOBAL_QUOTE"
	ticker = models.NormalizeTicker(ticker)

	raw, err := c.query(ctx, "GLOBAL_QUOTE", ticker)
	if err != nil {
		return nil, err
	}

	body, ok := raw["Global Quote"]
	if !ok {
		return nil, provider.New(ProviderName, provider.Malformed, endpoint, "missing Global Quote")
	}

	var gq map[string]json.RawMessage
	if err := json.Unmarshal(body, &gq); err != nil {
		return nil, provider.Decode(ProviderName, endpoint, err)
	}
	if len(gq) == 0 {
		return nil, provider.New(ProviderName, provider.NotFound, endpoint, "no quote for "+ticker)
	}
	if sym := rawString(gq["01. symbol"]); sym == "" {
		return nil, provider.New(ProviderName, provider.Malformed, endpoint, "quote without symbol")
	}

	price := parseNumber(gq["05. price"])
	if !price.Valid || price.Float64 <= 0 {
		return nil, provider.New(ProviderName, provider.Malformed, endpoint, "quote has no positive price")
	}

	asOf := time.Now()
	if day := rawString(gq["07. latest trading day"]); day != "" {
		if t, err := time.Parse("2006-01-02", day); err == nil {
			asOf = t
		}
	}

	return &models.PriceQuote{
		Ticker:     ticker,
		Price:      price.Float64,
		AsOf:       asOf,
		SourceRank: models.PriceFetched,
	}, nil
}
