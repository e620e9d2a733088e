// ABOUTME: Financial projection engine for the 12-month predictive burn chart
// ABOUTME: Builds actual/projected series, the monthly-to-yearly optimized path, and annual savings
package finance

import (
	"time"

	"github.com/harperreed/subzero/models"
	"github.com/shopspring/decimal"
)

const (
	// MonthLabelLayout renders "Mar 25".
	MonthLabelLayout = "Jan 06"

	pastMonths   = 5
	futureMonths = 6
	// PivotIndex is the position of the current month in the series.
	PivotIndex = pastMonths
	// SeriesLength is the number of points in every burn series.
	SeriesLength = pastMonths + 1 + futureMonths
)

var (
	yearlyDiscount   = decimal.RequireFromString("0.20")
	optimizedFactor  = decimal.RequireFromString("0.80")
	monthsPerYear    = decimal.NewFromInt(12)
	roundingDecimals = int32(2)
)

// baseAmount uses the normalized amount, falling back to the raw amount.
func baseAmount(s models.Subscription) decimal.Decimal {
	return decimal.NewFromFloat(s.BaseAmount())
}

// monthStart returns the first instant of now's month shifted by offset months.
func monthStart(now time.Time, offset int) time.Time {
	return time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
}

// renewsIn reports whether a renewal date falls in month's calendar month.
// Renewal dates are calendar dates stored at UTC midnight, so they are read
// in UTC and never shifted into month's zone.
func renewsIn(month, renewal time.Time) bool {
	r := renewal.UTC()
	return r.Year() == month.Year() && r.Month() == month.Month()
}

// MonthlyBaseline is the monthly-equivalent cost: monthly amounts plus yearly amounts over 12.
func MonthlyBaseline(subs []models.Subscription) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subs {
		amt := baseAmount(s)
		if s.BillingCycle == models.CycleYearly {
			total = total.Add(amt.Div(monthsPerYear))
			continue
		}
		total = total.Add(amt)
	}
	return total
}

// optimizedBaseline assumes every monthly plan converts to yearly at the discount.
func optimizedBaseline(subs []models.Subscription) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subs {
		amt := baseAmount(s)
		if s.BillingCycle == models.CycleYearly {
			total = total.Add(amt.Div(monthsPerYear))
			continue
		}
		total = total.Add(amt.Mul(optimizedFactor))
	}
	return total
}

// yearlyHit sums yearly subscriptions renewing in the calendar month of target.
func yearlyHit(subs []models.Subscription, target time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subs {
		if s.BillingCycle == models.CycleYearly && renewsIn(target, s.RenewalDate) {
			total = total.Add(baseAmount(s))
		}
	}
	return total
}

func money(d decimal.Decimal) *float64 {
	v := d.Round(roundingDecimals).InexactFloat64()
	return &v
}

// MonthLabels returns the 12 labels of the series anchored at now.
func MonthLabels(now time.Time) []string {
	labels := make([]string, SeriesLength)
	for i := range labels {
		labels[i] = monthStart(now, i-PivotIndex).Format(MonthLabelLayout)
	}
	return labels
}

// Project builds the 12-point burn series: five past months of actual spend,
// the pivot month carrying actual and projected, and six projected months
// that include each yearly renewal in its own month.
func Project(subs []models.Subscription, now time.Time) []models.BurnDataPoint {
	baseline := MonthlyBaseline(subs)
	points := make([]models.BurnDataPoint, SeriesLength)

	for i := range points {
		offset := i - PivotIndex
		month := monthStart(now, offset)
		p := models.BurnDataPoint{Month: month.Format(MonthLabelLayout)}

		switch {
		case offset < 0:
			p.Actual = money(baseline)
		case offset == 0:
			p.Actual = money(baseline)
			p.Projected = money(baseline)
		default:
			p.Projected = money(baseline.Add(yearlyHit(subs, month)))
		}
		points[i] = p
	}
	return points
}

// Optimize builds the optimized path aligned to months, where index
// PivotIndex is the current month. Past months carry no value. The pivot
// carries the optimized baseline and later months add their yearly hit.
func Optimize(subs []models.Subscription, months []string, now time.Time) []models.OptimizedPoint {
	base := optimizedBaseline(subs)
	out := make([]models.OptimizedPoint, len(months))

	for i, label := range months {
		offset := i - PivotIndex
		out[i] = models.OptimizedPoint{Month: label}
		if offset < 0 {
			continue
		}
		value := base
		if offset > 0 {
			value = value.Add(yearlyHit(subs, monthStart(now, offset)))
		}
		out[i].Optimized = money(value)
	}
	return out
}

// Burn returns the projected series with the optimized path merged in.
func Burn(subs []models.Subscription, now time.Time) []models.BurnDataPoint {
	points := Project(subs, now)
	labels := make([]string, len(points))
	for i, p := range points {
		labels[i] = p.Month
	}
	for i, o := range Optimize(subs, labels, now) {
		points[i].Optimized = o.Optimized
	}
	return points
}

// AnnualSavings is the yearly discount forgone by paying monthly.
func AnnualSavings(subs []models.Subscription) float64 {
	total := decimal.Zero
	for _, s := range subs {
		if s.BillingCycle != models.CycleMonthly {
			continue
		}
		total = total.Add(baseAmount(s).Mul(monthsPerYear).Mul(yearlyDiscount))
	}
	return total.Round(roundingDecimals).InexactFloat64()
}

// Forecast bundles the burn chart with its headline numbers.
type Forecast struct {
	Points          []models.BurnDataPoint `json:"points"`
	MonthlyBaseline float64                `json:"monthly_baseline"`
	AnnualSavings   float64                `json:"annual_savings"`
}

func NewForecast(subs []models.Subscription, now time.Time) Forecast {
	return Forecast{
		Points:          Burn(subs, now),
		MonthlyBaseline: MonthlyBaseline(subs).Round(roundingDecimals).InexactFloat64(),
		AnnualSavings:   AnnualSavings(subs),
	}
}
