// ABOUTME: Data models for subscription tracking entities
// ABOUTME: Defines Subscription, ConnectedMailAccount, Candidate, Notification, and burn chart points
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BillingCycle constants.
const (
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Category constants.
const (
	CategoryStreaming = "Streaming"
	CategorySoftware  = "Software"
	CategoryCloud     = "Cloud"
	CategoryEducation = "Education"
	CategoryUtilities = "Utilities"
	CategoryOthers    = "Others"
)

// Source constants.
const (
	SourceManual     = "manual"
	SourceAIDetected = "ai-detected"
)

// NotificationType constants.
const (
	NotificationRenewal = "renewal"
	NotificationSaving  = "saving"
	NotificationWarning = "warning"
	NotificationInfo    = "info"
)

// BillingCycles lists the accepted billing cycles.
var BillingCycles = []string{CycleMonthly, CycleYearly}

// Categories lists the closed set of subscription categories.
var Categories = []string{
	CategoryStreaming,
	CategorySoftware,
	CategoryCloud,
	CategoryEducation,
	CategoryUtilities,
	CategoryOthers,
}

// IsValidCycle reports whether cycle is one of the billing cycles.
func IsValidCycle(cycle string) bool {
	return cycle == CycleMonthly || cycle == CycleYearly
}

// IsValidCategory reports whether category is one of the six categories.
func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// IsValidSource reports whether source is a known provenance.
func IsValidSource(source string) bool {
	return source == SourceManual || source == SourceAIDetected
}

type User struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	NotifyEmail     bool      `json:"notify_email"`
	NotifyDashboard bool      `json:"notify_dashboard"`
	CreatedAt       time.Time `json:"created_at"`
}

type ConnectedMailAccount struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               string     `json:"user_id"`
	Email                string     `json:"email"`
	EncryptedCredentials string     `json:"-"`
	ConnectedAt          time.Time  `json:"connected_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	LastSyncedAt         *time.Time `json:"last_synced_at,omitempty"`
	LastSyncCount        int        `json:"last_sync_count"`
}

type Subscription struct {
	ID               uuid.UUID  `json:"id"`
	UserID           string     `json:"user_id"`
	Name             string     `json:"name"`
	Amount           float64    `json:"amount"`
	BillingCycle     string     `json:"billing_cycle"`
	Category         string     `json:"category"`
	RenewalDate      time.Time  `json:"renewal_date"`
	OriginalCurrency string     `json:"original_currency"`
	AmountInBase     float64    `json:"amount_in_base"`
	Source           string     `json:"source"`
	Verified         bool       `json:"verified"`
	ReminderSentAt   *time.Time `json:"reminder_sent_at,omitempty"`
	LastDetectedAt   *time.Time `json:"last_detected_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BaseAmount returns the amount normalized to the base currency, falling
// back to the raw amount for records stored before normalization existed.
func (s *Subscription) BaseAmount() float64 {
	if s.AmountInBase > 0 {
		return s.AmountInBase
	}
	return s.Amount
}

// Candidate is a provisional subscription produced by the extraction oracle.
type Candidate struct {
	Name         string    `json:"name"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency,omitempty"`
	BillingCycle string    `json:"billing_cycle"`
	Category     string    `json:"category"`
	RenewalDate  time.Time `json:"renewal_date"`
	Confidence   float64   `json:"confidence"`
	EmailSubject string    `json:"email_subject,omitempty"`
}

// BurnDataPoint is one month of the 12-month predictive burn chart.
type BurnDataPoint struct {
	Month     string   `json:"month"`
	Actual    *float64 `json:"actual,omitempty"`
	Projected *float64 `json:"projected,omitempty"`
	Optimized *float64 `json:"optimized,omitempty"`
}

// OptimizedPoint is one month of the optimized-path series.
type OptimizedPoint struct {
	Month     string   `json:"month"`
	Optimized *float64 `json:"optimized,omitempty"`
}

type Notification struct {
	ID             uuid.UUID  `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Type           string     `json:"type"`
	Read           bool       `json:"read"`
	Link           string     `json:"link,omitempty"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	Amount         float64    `json:"amount,omitempty"`
	DaysLeft       *int       `json:"days_left,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DashboardStats summarizes a user's subscription set.
type DashboardStats struct {
	TotalMonthlySpend float64 `json:"total_monthly_spend"`
	TotalYearlySpend  float64 `json:"total_yearly_spend"`
	ActiveCount       int     `json:"active_count"`
	AIDetectedCount   int     `json:"ai_detected_count"`
	UpcomingRenewals  int     `json:"upcoming_renewals"`
}

// NormalizeName folds a subscription name for duplicate matching.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
