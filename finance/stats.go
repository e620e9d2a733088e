// ABOUTME: Dashboard summary statistics over a user's subscriptions
// ABOUTME: Computes monthly and yearly spend, counts, and renewals due within a week
package finance

import (
	"time"

	"github.com/harperreed/subzero/models"
	"github.com/shopspring/decimal"
)

// UpcomingWindowDays bounds the renewals counted as upcoming.
const UpcomingWindowDays = 7

// DaysUntil counts calendar days from now's date to the renewal date t.
// t is read as a UTC calendar date and now in its own zone, so a renewal
// earlier today is 0 and one yesterday is -1 regardless of the hour.
func DaysUntil(now, t time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(today).Hours() / 24)
}

func Stats(subs []models.Subscription, now time.Time) models.DashboardStats {
	monthly := MonthlyBaseline(subs)

	stats := models.DashboardStats{
		TotalMonthlySpend: monthly.Round(roundingDecimals).InexactFloat64(),
		TotalYearlySpend:  monthly.Mul(monthsPerYear).Round(roundingDecimals).InexactFloat64(),
		ActiveCount:       len(subs),
	}
	for _, s := range subs {
		if s.Source == models.SourceAIDetected {
			stats.AIDetectedCount++
		}
		if d := DaysUntil(now, s.RenewalDate); d >= 0 && d <= UpcomingWindowDays {
			stats.UpcomingRenewals++
		}
	}
	return stats
}

// ConvertAmount is a float convenience around Converter.ToBase.
func ConvertAmount(c Converter, amount float64, currency string) float64 {
	return c.ToBase(decimal.NewFromFloat(amount), currency).InexactFloat64()
}
