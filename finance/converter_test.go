// ABOUTME: Tests for currency conversion and dashboard statistics
// ABOUTME: Covers the static rate table, rebasing, unknown codes, and renewal counting
package finance

import (
	"testing"
	"time"

	"github.com/harperreed/subzero/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRates_ToBase(t *testing.T) {
	rates := DefaultRates()

	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"10", "USD", "830"},
		{"9.99", "usd", "829.17"},
		{"100", "INR", "100"},
		{"1000", "JPY", "560"},
		{"15", "AED", "339"},
		{"12.345", "XYZ", "12.35"},
	}
	for _, tt := range tests {
		got := rates.ToBase(decimal.RequireFromString(tt.amount), tt.currency)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s %s: got %s want %s", tt.amount, tt.currency, got, tt.want)
	}
}

func TestStaticRates_Rebase(t *testing.T) {
	rates, err := NewStaticRates("usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", rates.Base())

	assert.Equal(t, 10.0, ConvertAmount(rates, 10, "USD"))
	assert.Equal(t, 1.0, ConvertAmount(rates, 83, "INR"))

	_, err = NewStaticRates("BTC")
	assert.Error(t, err)
}

func TestStaticRates_Supported(t *testing.T) {
	rates := DefaultRates()
	assert.True(t, rates.Supported("gbp"))
	assert.False(t, rates.Supported("XYZ"))
}

func TestStats(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	subs := []models.Subscription{
		{Amount: 100, BillingCycle: models.CycleMonthly, Source: models.SourceManual, RenewalDate: now.AddDate(0, 0, 3)},
		{Amount: 1200, BillingCycle: models.CycleYearly, Source: models.SourceAIDetected, RenewalDate: now.AddDate(0, 0, 30)},
		{Amount: 10, AmountInBase: 830, BillingCycle: models.CycleMonthly, Source: models.SourceAIDetected, RenewalDate: now.Add(7*24*time.Hour + time.Hour)},
		{Amount: 50, BillingCycle: models.CycleMonthly, Source: models.SourceManual, RenewalDate: now.AddDate(0, 0, -2)},
		{Amount: 20, BillingCycle: models.CycleMonthly, Source: models.SourceManual, RenewalDate: now.Add(-22 * time.Hour)},
	}

	stats := Stats(subs, now)

	assert.Equal(t, 1100.0, stats.TotalMonthlySpend)
	assert.Equal(t, 13200.0, stats.TotalYearlySpend)
	assert.Equal(t, 5, stats.ActiveCount)
	assert.Equal(t, 2, stats.AIDetectedCount)
	assert.Equal(t, 2, stats.UpcomingRenewals)
}

func TestDaysUntil(t *testing.T) {
	utcNow := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	eveningEST := time.Date(2025, 3, 15, 21, 0, 0, 0, time.FixedZone("EST", -5*3600))
	morningJST := time.Date(2025, 3, 15, 7, 0, 0, 0, time.FixedZone("JST", 9*3600))
	date := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		now     time.Time
		renewal time.Time
		want    int
	}{
		{"later today", utcNow, utcNow.Add(5 * time.Hour), 0},
		{"earlier today", utcNow, utcNow.Add(-5 * time.Hour), 0},
		{"yesterday less than a day ago", utcNow, date(14).Add(12 * time.Hour), -1},
		{"two days ago", utcNow, utcNow.AddDate(0, 0, -2), -2},
		{"three days ahead", utcNow, utcNow.Add(3*24*time.Hour + 5*time.Hour), 3},
		{"midnight renewal five days ahead", time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC), date(20), 5},
		{"west of UTC reads the local date", eveningEST, date(16), 1},
		{"west of UTC today", eveningEST, date(15), 0},
		{"east of UTC today", morningJST, date(15), 0},
		{"east of UTC yesterday", morningJST, date(14), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.now, tt.renewal))
		})
	}
}
