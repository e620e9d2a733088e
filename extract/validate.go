// ABOUTME: Schema validation for oracle output before it becomes a candidate
// ABOUTME: Normalizes enums, applies date and category defaults, and names every rejection reason
package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/harperreed/subzero/models"
)

// Rejection reasons reported to metrics.
const (
	ReasonMalformed     = "malformed"
	ReasonName          = "invalid_name"
	ReasonAmount        = "invalid_amount"
	ReasonCycle         = "invalid_cycle"
	ReasonCategory      = "invalid_category"
	ReasonDate          = "invalid_date"
	ReasonConfidence    = "invalid_confidence"
	ReasonCurrency      = "invalid_currency"
	ReasonLowConfidence = "low_confidence"
)

// DefaultRenewalDays is used when the email gives no renewal date.
const DefaultRenewalDays = 30

type rawCandidate struct {
	Name         *string  `json:"name"`
	Amount       *float64 `json:"amount"`
	Currency     *string  `json:"currency"`
	BillingCycle *string  `json:"billingCycle"`
	Category     *string  `json:"category"`
	RenewalDate  *string  `json:"renewalDate"`
	Confidence   *float64 `json:"confidence"`
	EmailSubject *string  `json:"emailSubject"`
}

type batchResponse struct {
	Subscriptions []json.RawMessage `json:"subscriptions"`
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// parseBatch returns the raw entries of a batch response. A bare array is accepted too.
func parseBatch(text string) ([]json.RawMessage, bool) {
	data := []byte(stripFences(text))

	var resp batchResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.Subscriptions != nil {
		return resp.Subscriptions, true
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, true
	}
	if err := json.Unmarshal(data, &resp); err == nil {
		// valid object without a subscriptions array
		return nil, true
	}
	return nil, false
}

// parseSingle reports isNull when the oracle answered null.
func parseSingle(text string) (raw json.RawMessage, isNull bool) {
	data := bytes.TrimSpace([]byte(stripFences(text)))
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, true
	}
	return data, false
}

func defaultRenewal(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+DefaultRenewalDays, 0, 0, 0, 0, time.UTC)
}

func canonical(value string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return a, true
		}
	}
	return "", false
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// validate checks one oracle entry. The returned reason is empty on success.
func validate(data json.RawMessage, now time.Time) (models.Candidate, string) {
	var raw rawCandidate
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Candidate{}, ReasonMalformed
	}

	var c models.Candidate

	if raw.Name == nil || strings.TrimSpace(*raw.Name) == "" {
		return c, ReasonName
	}
	c.Name = strings.TrimSpace(*raw.Name)

	if raw.Amount == nil || *raw.Amount <= 0 || math.IsInf(*raw.Amount, 0) || math.IsNaN(*raw.Amount) {
		return c, ReasonAmount
	}
	c.Amount = *raw.Amount

	if raw.BillingCycle == nil {
		return c, ReasonCycle
	}
	cycle, ok := canonical(strings.TrimSpace(*raw.BillingCycle), models.BillingCycles)
	if !ok {
		return c, ReasonCycle
	}
	c.BillingCycle = cycle

	c.Category = models.CategoryOthers
	if raw.Category != nil && strings.TrimSpace(*raw.Category) != "" {
		category, ok := canonical(strings.TrimSpace(*raw.Category), models.Categories)
		if !ok {
			return c, ReasonCategory
		}
		c.Category = category
	}

	c.RenewalDate = defaultRenewal(now)
	if raw.RenewalDate != nil && strings.TrimSpace(*raw.RenewalDate) != "" {
		d, err := time.Parse(isoDate, strings.TrimSpace(*raw.RenewalDate))
		if err != nil {
			return c, ReasonDate
		}
		c.RenewalDate = d
	}

	if raw.Confidence == nil || *raw.Confidence < 0 || *raw.Confidence > 1 || math.IsNaN(*raw.Confidence) {
		return c, ReasonConfidence
	}
	c.Confidence = *raw.Confidence

	if raw.Currency != nil {
		code := strings.ToUpper(strings.TrimSpace(*raw.Currency))
		if code != "" && !isCurrencyCode(code) {
			return c, ReasonCurrency
		}
		c.Currency = code
	}

	if raw.EmailSubject != nil {
		c.EmailSubject = strings.TrimSpace(*raw.EmailSubject)
	}

	return c, ""
}
