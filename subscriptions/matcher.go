// ABOUTME: Subscription deduplication and matching logic
// ABOUTME: Finds existing subscriptions by normalized name, currency, and amount within tolerance
package subscriptions

import (
	"math"

	"github.com/harperreed/subzero/models"
)

const (
	// amountTolerance is the relative difference still considered the same charge.
	amountTolerance = 0.01
	minTolerance    = 0.01
)

type Matcher struct {
	byName map[string][]*models.Subscription
}

// NewMatcher creates a matcher from existing subscriptions.
func NewMatcher(subs []models.Subscription) *Matcher {
	m := &Matcher{byName: make(map[string][]*models.Subscription)}
	for i := range subs {
		m.Add(&subs[i])
	}
	return m
}

// FindMatch looks for an existing subscription with the same normalized name
// and currency whose amount is within 1% (at least 0.01).
func (m *Matcher) FindMatch(name string, amount float64, currency string) (*models.Subscription, bool) {
	for _, sub := range m.byName[models.NormalizeName(name)] {
		if sub.OriginalCurrency != currency {
			continue
		}
		tolerance := math.Max(sub.Amount*amountTolerance, minTolerance)
		if math.Abs(sub.Amount-amount) <= tolerance+1e-9 {
			return sub, true
		}
	}
	return nil, false
}

// Add registers a subscription created during the same session so it is not
// created twice.
func (m *Matcher) Add(sub *models.Subscription) {
	key := models.NormalizeName(sub.Name)
	if key == "" {
		return
	}
	m.byName[key] = append(m.byName[key], sub)
}
