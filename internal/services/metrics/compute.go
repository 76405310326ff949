// Package metrics derives the fixed ratio set from an aggregate snapshot.
// Everything here is pure: no I/O, no clock, no shared state.
package metrics

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/tickermetrics/internal/models"
)

// Options pins the inputs that would otherwise come from the environment
type Options struct {
	// CurrentYear anchors the "current year" and "next year" lookups
	CurrentYear int
}

// Compute derives the metrics for one snapshot. It never panics; anything that cannot be
// derived from the inputs is left null.
func Compute(snap models.AggregateSnapshot, opts Options) models.DerivedMetrics {
	out := models.DerivedMetrics{
		Ticker:             models.NormalizeTicker(snap.Ticker),
		CurrentPrice:       round2(positive(snap.Price.Price)),
		CurrentPriceSource: snap.Price.SourceRank,
	}
	price := positive(snap.Price.Price)

	estimates := sortedByPeriodDesc(snap.Estimates)
	cur := findYear(estimates, opts.CurrentYear)
	prev := findYear(estimates, opts.CurrentYear-1)
	next := findYear(estimates, opts.CurrentYear+1)
	twoAhead := findYear(estimates, opts.CurrentYear+2)

	if len(estimates) >= 2 {
		out.TTMEPSGrowth = growth(estimates[0].EPSAvg, estimates[1].EPSAvg)
		out.TTMRevenueGrowth = growth(estimates[0].RevenueAvg, estimates[1].RevenueAvg)
	}

	if cur != nil && prev != nil {
		out.CurrentYearEPSGrowth = growth(cur.EPSAvg, prev.EPSAvg)
		out.CurrentYearRevenueGrowth = growth(cur.RevenueAvg, prev.RevenueAvg)
	}
	if next != nil && cur != nil {
		out.NextYearEPSGrowth = growth(next.EPSAvg, cur.EPSAvg)
		out.NextYearRevenueGrowth = growth(next.RevenueAvg, cur.RevenueAvg)
	}

	if twoAhead != nil {
		out.TwoYearForwardPE = ratio(price, twoAhead.EPSAvg, 1)
	}

	if f := snap.Fundamentals; f != nil {
		out.MarketCap = round2(f.MarketCap)
		out.TTMPE = round2(positiveOf(f.TrailingPE))
		out.ForwardPE = round2(positiveOf(f.ForwardPE))
		out.GrossMargin = ratio(f.GrossProfitTTM, f.RevenueTTM, 100)
		out.NetMargin = round2(percentage(f.ProfitMargin))

		if len(estimates) > 0 {
			out.TTMPriceToSales = ratio(f.MarketCap, estimates[0].RevenueAvg, 1)
		}
		if cur != nil {
			out.ForwardPriceToSales = ratio(f.MarketCap, cur.RevenueAvg, 1)
		}
	}

	return out
}

// sortedByPeriodDesc returns a copy ordered newest period first. Labels are "YYYY-MM-DD"
// so lexical order is chronological; the parsed year breaks ties for odd labels.
func sortedByPeriodDesc(in []models.PeriodEstimate) []models.PeriodEstimate {
	out := make([]models.PeriodEstimate, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Period.Label != out[j].Period.Label {
			return out[i].Period.Label > out[j].Period.Label
		}
		return out[i].Period.Year > out[j].Period.Year
	})
	return out
}

// findYear returns the first estimate whose label equals or contains the year string
func findYear(estimates []models.PeriodEstimate, year int) *models.PeriodEstimate {
	if year <= 0 {
		return nil
	}
	y := strconv.Itoa(year)
	for i := range estimates {
		label := estimates[i].Period.Label
		if label == y || strings.Contains(label, y) {
			return &estimates[i]
		}
	}
	return nil
}

// growth is (cur - prev) / prev as a percentage; null when either side is missing or prev <= 0
func growth(cur, prev null.Float) models.Metric {
	if !usable(cur) || !usable(prev) || prev.Float64 <= 0 {
		return models.NullMetric()
	}
	return round2(null.FloatFrom((cur.Float64 - prev.Float64) / prev.Float64 * 100))
}

// ratio is num / den * scale; null when either side is missing or den <= 0
func ratio(num, den null.Float, scale float64) models.Metric {
	if !usable(num) || !usable(den) || den.Float64 <= 0 {
		return models.NullMetric()
	}
	return round2(null.FloatFrom(num.Float64 / den.Float64 * scale))
}

// percentage treats magnitudes up to 1 as fractions
func percentage(v null.Float) null.Float {
	if !usable(v) {
		return null.Float{}
	}
	if math.Abs(v.Float64) <= 1 {
		return null.FloatFrom(v.Float64 * 100)
	}
	return v
}

// positive keeps v only when it is a finite number above zero
func positive(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

func positiveOf(v null.Float) null.Float {
	if !v.Valid {
		return null.Float{}
	}
	return positive(v.Float64)
}

func usable(v null.Float) bool {
	return v.Valid && !math.IsNaN(v.Float64) && !math.IsInf(v.Float64, 0)
}

// round2 rounds half away from zero to two decimals
func round2(v null.Float) models.Metric {
	if !usable(v) {
		return models.NullMetric()
	}
	f, _ := decimal.NewFromFloat(v.Float64).Round(2).Float64()
	return models.MetricFrom(f)
}
