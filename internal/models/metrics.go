package models

import (
	"bytes"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// Metric is a nullable derived value. It serialises with exactly two decimals, or null.
type Metric struct {
	null.Float
}

// NullMetric returns an absent metric
func NullMetric() Metric {
	return Metric{}
}

// MetricFrom wraps a present value
func MetricFrom(v float64) Metric {
	return Metric{Float: null.FloatFrom(v)}
}

// MarshalJSON writes the value as a fixed two-decimal number
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return []byte(decimal.NewFromFloat(m.Float64).StringFixed(2)), nil
}

// UnmarshalJSON accepts a number or null
func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Metric{}
		return nil
	}
	return m.Float.UnmarshalJSON(data)
}

// DerivedMetrics is the cached artifact for one ticker.
// A null field means the value could not be derived from the available inputs.
type DerivedMetrics struct {
	Ticker                   string      `json:"ticker"`
	CurrentPrice             Metric      `json:"current_price"`
	CurrentPriceSource       PriceSource `json:"current_price_source"`
	MarketCap                Metric      `json:"market_cap"`
	TTMPE                    Metric      `json:"ttm_pe"`
	ForwardPE                Metric      `json:"forward_pe"`
	TwoYearForwardPE         Metric      `json:"two_year_forward_pe"`
	TTMEPSGrowth             Metric      `json:"ttm_eps_growth"`
	CurrentYearEPSGrowth     Metric      `json:"current_year_eps_growth"`
	NextYearEPSGrowth        Metric      `json:"next_year_eps_growth"`
	TTMRevenueGrowth         Metric      `json:"ttm_revenue_growth"`
	CurrentYearRevenueGrowth Metric      `json:"current_year_revenue_growth"`
	NextYearRevenueGrowth    Metric      `json:"next_year_revenue_growth"`
	GrossMargin              Metric      `json:"gross_margin"`
	NetMargin                Metric      `json:"net_margin"`
	TTMPriceToSales          Metric      `json:"ttm_price_to_sales"`
	ForwardPriceToSales      Metric      `json:"forward_price_to_sales"`
}

// CacheEntry is one stored artifact. Entries are replaced whole, never merged.
type CacheEntry struct {
	Ticker          string         `json:"ticker"`
	Artifact        DerivedMetrics `json:"artifact"`
	ComputedAt      time.Time      `json:"computed_at"`
	MethodTag       string         `json:"method_tag"`
	ProviderSources []string       `json:"provider_sources_used"`
}

// CacheSummary is the listing view of a cache entry
type CacheSummary struct {
	Ticker     string    `json:"ticker"`
	ComputedAt time.Time `json:"computed_at"`
	MethodTag  string    `json:"method_tag"`
}
