package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"

	"github.com/bobmcallan/tickermetrics/internal/clients/provider"
	"github.com/bobmcallan/tickermetrics/internal/models"
)

type analystEstimate struct {
	Symbol                     string   `json:"symbol"`
	Date                       string   `json:"date"`
	EstimatedRevenueLow        *float64 `json:"estimatedRevenueLow"`
	EstimatedRevenueHigh       *float64 `json:"estimatedRevenueHigh"`
	EstimatedRevenueAvg        *float64 `json:"estimatedRevenueAvg"`
	EstimatedNetIncomeAvg      *float64 `json:"estimatedNetIncomeAvg"`
	EstimatedEpsAvg            *float64 `json:"estimatedEpsAvg"`
	EstimatedEpsHigh           *float64 `json:"estimatedEpsHigh"`
	EstimatedEpsLow            *float64 `json:"estimatedEpsLow"`
	NumberAnalystEstimatedRev  int      `json:"numberAnalystEstimatedRevenue"`
	NumberAnalystsEstimatedEps int      `json:"numberAnalystsEstimatedEps"`
}

// FetchEstimates retrieves analyst consensus estimates for a ticker, as returned by the
// provider (newest period first).
func (c *Client) FetchEstimates(ctx context.Context, ticker string) ([]models.PeriodEstimate, error) {
	ticker = models.NormalizeTicker(ticker)
	path := fmt.Sprintf("/api/v3/analyst-estimates/%s", url.PathEscape(ticker))

	params := url.Values{}
	params.Set("period", c.period)
	params.Set("page", "0")
	params.Set("limit", strconv.Itoa(c.limit))

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var raw []analystEstimate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, provider.Decode(ProviderName, path, err)
	}
	if len(raw) == 0 {
		return nil, provider.New(ProviderName, provider.NotFound, path, "no estimates for "+ticker)
	}

	periodType := models.PeriodAnnual
	if strings.HasPrefix(c.period, "quarter") {
		periodType = models.PeriodQuarter
	}

	out := make([]models.PeriodEstimate, 0, len(raw))
	for _, r := range raw {
		if r.Symbol == "" || r.Date == "" {
			return nil, provider.New(ProviderName, provider.Malformed, path, "estimate without symbol or date")
		}
		if !strings.EqualFold(r.Symbol, ticker) {
			return nil, provider.New(ProviderName, provider.Malformed, path,
				fmt.Sprintf("estimate for %s returned for %s", r.Symbol, ticker))
		}
		out = append(out, models.PeriodEstimate{
			Ticker: ticker,
			Period: models.FiscalPeriod{
				Label: r.Date,
				Year:  yearFromLabel(r.Date),
				Type:  periodType,
			},
			RevenueLow:          null.FloatFromPtr(r.EstimatedRevenueLow),
			RevenueAvg:          null.FloatFromPtr(r.EstimatedRevenueAvg),
			RevenueHigh:         null.FloatFromPtr(r.EstimatedRevenueHigh),
			EPSLow:              null.FloatFromPtr(r.EstimatedEpsLow),
			EPSAvg:              null.FloatFromPtr(r.EstimatedEpsAvg),
			EPSHigh:             null.FloatFromPtr(r.EstimatedEpsHigh),
			NetIncomeAvg:        null.FloatFromPtr(r.EstimatedNetIncomeAvg),
			AnalystCountRevenue: r.NumberAnalystEstimatedRev,
			AnalystCountEPS:     r.NumberAnalystsEstimatedEps,
		})
	}

	c.logger.Debug().Str("ticker", ticker).Int("periods", len(out)).Msg("FMP estimates fetched")
	return out, nil
}

// yearFromLabel reads the leading YYYY of a "YYYY-MM-DD" label; zero when absent.
func yearFromLabel(label string) int {
	head, _, _ := strings.Cut(label, "-")
	y, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return y
}
