// Package models defines data structures for tickermetrics
package models

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// NormalizeTicker trims and upper-cases a ticker symbol. Every cache key goes through it.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// PeriodType marks an estimate as annual or quarterly
type PeriodType string

const (
	PeriodAnnual  PeriodType = "annual"
	PeriodQuarter PeriodType = "quarter"
)

// FiscalPeriod identifies the period an estimate covers.
// Label is the provider's identifier (a "YYYY-MM-DD" date for the estimates provider).
type FiscalPeriod struct {
	Label string     `json:"label"`
	Year  int        `json:"year"`
	Type  PeriodType `json:"type"`
}

// PeriodEstimate holds the analyst consensus for one (ticker, period)
type PeriodEstimate struct {
	Ticker              string       `json:"ticker"`
	Period              FiscalPeriod `json:"period"`
	RevenueLow          null.Float   `json:"revenue_low"`
	RevenueAvg          null.Float   `json:"revenue_avg"`
	RevenueHigh         null.Float   `json:"revenue_high"`
	EPSLow              null.Float   `json:"eps_low"`
	EPSAvg              null.Float   `json:"eps_avg"`
	EPSHigh             null.Float   `json:"eps_high"`
	NetIncomeAvg        null.Float   `json:"net_income_avg"`
	AnalystCountRevenue int          `json:"analyst_count_revenue"`
	AnalystCountEPS     int          `json:"analyst_count_eps"`
}

// FundamentalsSnapshot holds trailing fundamentals as reported by the fundamentals provider.
// Any field the provider reported as missing stays null.
type FundamentalsSnapshot struct {
	Ticker          string     `json:"ticker"`
	Name            string     `json:"name,omitempty"`
	TrailingPE      null.Float `json:"trailing_pe"`
	ForwardPE       null.Float `json:"forward_pe"`
	MarketCap       null.Float `json:"market_cap"`
	ProfitMargin    null.Float `json:"profit_margin"`
	PriceToSalesTTM null.Float `json:"price_to_sales_ttm"`
	GrossProfitTTM  null.Float `json:"gross_profit_ttm"`
	RevenueTTM      null.Float `json:"revenue_ttm"`
	AsOf            time.Time  `json:"as_of"`
}

// PriceSource records which tier produced the price used in a computation
type PriceSource string

const (
	PriceProvided PriceSource = "provided"
	PriceFetched  PriceSource = "fetched"
	PriceDefault  PriceSource = "default"
)

// PriceQuote is the single price that feeds a computation
type PriceQuote struct {
	Ticker     string      `json:"ticker"`
	Price      float64     `json:"price"`
	AsOf       time.Time   `json:"as_of"`
	SourceRank PriceSource `json:"source_rank"`
}

// AggregateSnapshot is everything the aggregator gathered for one ticker.
// Estimates may be empty and Fundamentals nil; Price is always set.
type AggregateSnapshot struct {
	Ticker       string                `json:"ticker"`
	Estimates    []PeriodEstimate      `json:"estimates"`
	Fundamentals *FundamentalsSnapshot `json:"fundamentals,omitempty"`
	Price        PriceQuote            `json:"price"`
	SourcesUsed  []string              `json:"sources_used"`
}
