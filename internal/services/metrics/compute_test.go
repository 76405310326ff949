package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

func est(label string, eps, revenue float64) models.PeriodEstimate {
	return models.PeriodEstimate{
		Ticker:     "AAPL",
		Period:     models.FiscalPeriod{Label: label, Type: models.PeriodAnnual},
		EPSAvg:     null.FloatFrom(eps),
		RevenueAvg: null.FloatFrom(revenue),
	}
}

func price(p float64, src models.PriceSource) models.PriceQuote {
	return models.PriceQuote{Ticker: "AAPL", Price: p, SourceRank: src}
}

func assertMetric(t *testing.T, want float64, got models.Metric, name string) {
	t.Helper()
	require.True(t, got.Valid, "%s should be present", name)
	assert.InDelta(t, want, got.Float64, 1e-9, name)
}

func TestCompute_CurrentYearGrowth(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker:    "AAPL",
		Estimates: []models.PeriodEstimate{est("2024", 5.0, 100), est("2025", 5.6, 110)},
		Price:     price(150, models.PriceProvided),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})

	assertMetric(t, 12.00, dm.CurrentYearEPSGrowth, "current_year_eps_growth")
	assertMetric(t, 10.00, dm.CurrentYearRevenueGrowth, "current_year_revenue_growth")

	b, err := json.Marshal(dm.CurrentYearEPSGrowth)
	require.NoError(t, err)
	assert.Equal(t, "12.00", string(b))
}

func TestCompute_DateLabelsMatchBySubstring(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker: "AAPL",
		Estimates: []models.PeriodEstimate{
			est("2025-09-27", 7.0, 400),
			est("2026-09-27", 7.7, 440),
			est("2027-09-27", 8.47, 484),
			est("2028-09-27", 10.0, 500),
		},
		Price: price(200, models.PriceFetched),
	}

	dm := Compute(snap, Options{CurrentYear: 2026})

	assertMetric(t, 10.00, dm.CurrentYearEPSGrowth, "current_year_eps_growth")
	assertMetric(t, 10.00, dm.NextYearEPSGrowth, "next_year_eps_growth")
	assertMetric(t, 10.00, dm.NextYearRevenueGrowth, "next_year_revenue_growth")
	// 200 / 10.0 for the 2028 period
	assertMetric(t, 20.00, dm.TwoYearForwardPE, "two_year_forward_pe")
}

func TestCompute_TTMGrowthUsesTwoMostRecentPeriods(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker: "AAPL",
		// Deliberately unsorted
		Estimates: []models.PeriodEstimate{
			est("2023-12-31", 1.0, 50),
			est("2025-12-31", 2.2, 80),
			est("2024-12-31", 2.0, 64),
		},
		Price: price(10, models.PriceFetched),
	}

	dm := Compute(snap, Options{CurrentYear: 2030})

	// 2025 vs 2024
	assertMetric(t, 10.00, dm.TTMEPSGrowth, "ttm_eps_growth")
	assertMetric(t, 25.00, dm.TTMRevenueGrowth, "ttm_revenue_growth")
	assert.False(t, dm.CurrentYearEPSGrowth.Valid, "no 2030 period")
	assert.False(t, dm.NextYearEPSGrowth.Valid)
	assert.False(t, dm.TwoYearForwardPE.Valid)
}

func TestCompute_InputOrderDoesNotMatter(t *testing.T) {
	a := []models.PeriodEstimate{est("2024", 5.0, 100), est("2025", 5.6, 110), est("2026", 6.0, 120)}
	b := []models.PeriodEstimate{a[2], a[0], a[1]}

	dmA := Compute(models.AggregateSnapshot{Ticker: "X", Estimates: a, Price: price(60, models.PriceFetched)}, Options{CurrentYear: 2025})
	dmB := Compute(models.AggregateSnapshot{Ticker: "X", Estimates: b, Price: price(60, models.PriceFetched)}, Options{CurrentYear: 2025})

	ja, _ := json.Marshal(dmA)
	jb, _ := json.Marshal(dmB)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	in := []models.PeriodEstimate{est("2024", 5.0, 100), est("2025", 5.6, 110)}
	Compute(models.AggregateSnapshot{Ticker: "X", Estimates: in, Price: price(1, models.PriceFetched)}, Options{CurrentYear: 2025})

	assert.Equal(t, "2024", in[0].Period.Label)
	assert.Equal(t, "2025", in[1].Period.Label)
}

func TestCompute_GrowthNullOnNonPositiveDenominator(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker:    "AAPL",
		Estimates: []models.PeriodEstimate{est("2024", -1.0, 0), est("2025", 2.0, 50)},
		Price:     price(10, models.PriceFetched),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})

	assert.False(t, dm.CurrentYearEPSGrowth.Valid, "negative prior eps")
	assert.False(t, dm.CurrentYearRevenueGrowth.Valid, "zero prior revenue")
	assert.False(t, dm.TTMEPSGrowth.Valid)
}

func TestCompute_GrowthNullWhenEitherSideMissing(t *testing.T) {
	e2025 := est("2025", 5.6, 110)
	e2025.EPSAvg = null.Float{}
	snap := models.AggregateSnapshot{
		Ticker:    "AAPL",
		Estimates: []models.PeriodEstimate{est("2024", 5.0, 100), e2025},
		Price:     price(10, models.PriceFetched),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})

	assert.False(t, dm.CurrentYearEPSGrowth.Valid)
	assertMetric(t, 10.00, dm.CurrentYearRevenueGrowth, "revenue side still derivable")
}

func TestCompute_TwoYearForwardPENullOnNonPositiveEPS(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker:    "AAPL",
		Estimates: []models.PeriodEstimate{est("2027", 0, 100)},
		Price:     price(100, models.PriceFetched),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})
	assert.False(t, dm.TwoYearForwardPE.Valid)
}

func TestCompute_Rounding(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker:    "AAPL",
		Estimates: []models.PeriodEstimate{est("2027", 10, 100)},
		Price:     price(178.01234, models.PriceProvided),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})

	b, err := json.Marshal(dm.TwoYearForwardPE)
	require.NoError(t, err)
	assert.Equal(t, "17.80", string(b))

	b, err = json.Marshal(dm.CurrentPrice)
	require.NoError(t, err)
	assert.Equal(t, "178.01", string(b))
}

func TestCompute_FundamentalsDerivedFields(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker: "AAPL",
		Estimates: []models.PeriodEstimate{
			est("2025-09-27", 7.0, 400e9),
			est("2026-09-27", 7.7, 500e9),
		},
		Fundamentals: &models.FundamentalsSnapshot{
			Ticker:         "AAPL",
			TrailingPE:     null.FloatFrom(31.456),
			ForwardPE:      null.FloatFrom(27.1),
			MarketCap:      null.FloatFrom(3000e9),
			ProfitMargin:   null.FloatFrom(0.2512),
			GrossProfitTTM: null.FloatFrom(180e9),
			RevenueTTM:     null.FloatFrom(400e9),
		},
		Price: price(200, models.PriceFetched),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})

	assertMetric(t, 31.46, dm.TTMPE, "ttm_pe")
	assertMetric(t, 27.10, dm.ForwardPE, "forward_pe")
	assertMetric(t, 3000e9, dm.MarketCap, "market_cap")
	assertMetric(t, 45.00, dm.GrossMargin, "gross_margin")
	assertMetric(t, 25.12, dm.NetMargin, "net_margin")
	// most recent period is 2026: 3000 / 500
	assertMetric(t, 6.00, dm.TTMPriceToSales, "ttm_price_to_sales")
	// current year 2025: 3000 / 400
	assertMetric(t, 7.50, dm.ForwardPriceToSales, "forward_price_to_sales")
}

func TestCompute_NetMarginNormalisation(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{0.2512, 25.12},
		{25.12, 25.12},
		{-0.05, -5.00},
		{1, 100},
		{-12.5, -12.5},
	}

	for _, tt := range tests {
		snap := models.AggregateSnapshot{
			Ticker:       "X",
			Fundamentals: &models.FundamentalsSnapshot{ProfitMargin: null.FloatFrom(tt.raw)},
			Price:        price(1, models.PriceDefault),
		}
		dm := Compute(snap, Options{CurrentYear: 2025})
		assertMetric(t, tt.want, dm.NetMargin, "net_margin")
	}
}

func TestCompute_GrossMarginNullOnZeroRevenue(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker: "X",
		Fundamentals: &models.FundamentalsSnapshot{
			GrossProfitTTM: null.FloatFrom(10),
			RevenueTTM:     null.FloatFrom(0),
		},
		Price: price(1, models.PriceDefault),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})
	assert.False(t, dm.GrossMargin.Valid)
}

func TestCompute_PriceToSalesNullWithoutMarketCap(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker:       "X",
		Estimates:    []models.PeriodEstimate{est("2025", 1, 100)},
		Fundamentals: &models.FundamentalsSnapshot{},
		Price:        price(1, models.PriceDefault),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})
	assert.False(t, dm.TTMPriceToSales.Valid)
	assert.False(t, dm.ForwardPriceToSales.Valid)
	assert.False(t, dm.MarketCap.Valid)
}

func TestCompute_NonPositivePEIsNull(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker: "X",
		Fundamentals: &models.FundamentalsSnapshot{
			TrailingPE: null.FloatFrom(-4.2),
			ForwardPE:  null.FloatFrom(0),
		},
		Price: price(1, models.PriceDefault),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})
	assert.False(t, dm.TTMPE.Valid)
	assert.False(t, dm.ForwardPE.Valid)
}

func TestCompute_EmptySnapshotOnlyCarriesPrice(t *testing.T) {
	snap := models.AggregateSnapshot{
		Ticker: "aapl",
		Price:  price(100, models.PriceDefault),
	}

	dm := Compute(snap, Options{CurrentYear: 2025})

	assert.Equal(t, "AAPL", dm.Ticker)
	assertMetric(t, 100, dm.CurrentPrice, "current_price")
	assert.Equal(t, models.PriceDefault, dm.CurrentPriceSource)

	b, err := json.Marshal(dm)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for k, v := range raw {
		switch k {
		case "ticker", "current_price", "current_price_source":
			assert.NotNil(t, v, k)
		default:
			assert.Nil(t, v, "%s should be null", k)
		}
	}
}

func TestCompute_NonFiniteInputsNeverPanic(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	snap := models.AggregateSnapshot{
		Ticker:    "X",
		Estimates: []models.PeriodEstimate{est("2024", nan, inf), est("2025", inf, nan), est("2027", nan, 1)},
		Fundamentals: &models.FundamentalsSnapshot{
			TrailingPE:     null.FloatFrom(nan),
			MarketCap:      null.FloatFrom(inf),
			ProfitMargin:   null.FloatFrom(nan),
			GrossProfitTTM: null.FloatFrom(inf),
			RevenueTTM:     null.FloatFrom(1),
		},
		Price: price(nan, models.PriceFetched),
	}

	var dm models.DerivedMetrics
	assert.NotPanics(t, func() { dm = Compute(snap, Options{CurrentYear: 2025}) })

	assert.False(t, dm.CurrentPrice.Valid)
	assert.False(t, dm.TTMPE.Valid)
	assert.False(t, dm.GrossMargin.Valid)
	assert.False(t, dm.NetMargin.Valid)
	assert.False(t, dm.CurrentYearEPSGrowth.Valid)
	assert.False(t, dm.TwoYearForwardPE.Valid)

	_, err := json.Marshal(dm)
	assert.NoError(t, err)
}

func TestFindYear(t *testing.T) {
	estimates := []models.PeriodEstimate{est("2026-09-27", 1, 1), est("2025", 1, 1)}

	assert.Equal(t, "2026-09-27", findYear(estimates, 2026).Period.Label)
	assert.Equal(t, "2025", findYear(estimates, 2025).Period.Label)
	assert.Nil(t, findYear(estimates, 2024))
	assert.Nil(t, findYear(estimates, 0))
}
