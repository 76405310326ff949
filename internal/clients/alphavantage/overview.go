package alphavantage

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"github.com/bobmcallan/tickermetrics/internal/clients/provider"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

// FetchFundamentals retrieves the OVERVIEW snapshot for a ticker
func (c *Client) FetchFundamentals(ctx context.Context, ticker string) (*models.FundamentalsSnapshot, error) {
	ticker = models.NormalizeTicker(ticker)

	raw, err := c.query(ctx, "OVERVIEW", ticker)
	if err != nil {
		return nil, err
	}

	symbol := rawString(raw["Symbol"])
	if _, ok := raw["Symbol"]; !ok || symbol == "" {
		return nil, provider.New(ProviderName, provider.Malformed, "/query?function=OVERVIEW", "overview without Symbol")
	}
	if !strings.EqualFold(symbol, ticker) {
		return nil, provider.New(ProviderName, provider.Malformed, "/query?function=OVERVIEW",
			"overview for "+symbol+" returned for "+ticker)
	}

	trailing := parseNumber(raw["TrailingPE"])
	if !trailing.Valid {
		trailing = parseNumber(raw["PERatio"])
	}

	asOf := time.Now()
	if lq := rawString(raw["LatestQuarter"]); lq != "" {
		if t, err := time.Parse("2006-01-02", lq); err == nil {
			asOf = t
		}
	}

	snap := &models.FundamentalsSnapshot{
		Ticker:          ticker,
		Name:            rawString(raw["Name"]),
		TrailingPE:      trailing,
		ForwardPE:       parseNumber(raw["ForwardPE"]),
		MarketCap:       parseNumber(raw["MarketCapitalization"]),
		ProfitMargin:    parseNumber(raw["ProfitMargin"]),
		PriceToSalesTTM: parseNumber(raw["PriceToSalesRatioTTM"]),
		GrossProfitTTM:  parseNumber(raw["GrossProfitTTM"]),
		RevenueTTM:      parseNumber(raw["RevenueTTM"]),
		AsOf:            asOf,
	}

	c.logger.Debug().Str("ticker", ticker).Msg("Alpha Vantage overview fetched")
	return snap, nil
}

// parseNumber decodes a string-encoded number. Sentinels ("None", "-", "") and
// anything non-numeric become null rather than NaN or zero.
func parseNumber(v json.RawMessage) null.Float {
	if len(v) == 0 {
		return null.Float{}
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		// Occasionally a bare number
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return null.Float{}
		}
		return finite(f)
	}

	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "-", "n/a", "null", "nan":
		return null.Float{}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}
	}
	return finite(f)
}

func finite(f float64) null.Float {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}
