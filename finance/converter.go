// ABOUTME: Currency conversion into the single base currency used by projections
// ABOUTME: StaticRates holds the fixed INR-based table and can be rebased onto another currency
package finance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Converter normalizes an amount into the base currency.
type Converter interface {
	ToBase(amount decimal.Decimal, currency string) decimal.Decimal
}

// inrRates is units of INR per unit of currency.
var inrRates = map[string]string{
	"INR": "1",
	"USD": "83",
	"EUR": "90",
	"GBP": "105",
	"AUD": "54",
	"CAD": "61",
	"SGD": "62",
	"JPY": "0.56",
	"AED": "22.6",
}

// StaticRates converts with a fixed table. Unknown currencies convert at rate 1.
type StaticRates struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticRates returns the fixed table expressed in base units.
func NewStaticRates(base string) (*StaticRates, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = "INR"
	}
	baseRate, ok := inrRates[base]
	if !ok {
		return nil, fmt.Errorf("unsupported base currency %q", base)
	}
	divisor := decimal.RequireFromString(baseRate)

	rates := make(map[string]decimal.Decimal, len(inrRates))
	for code, r := range inrRates {
		rates[code] = decimal.RequireFromString(r).Div(divisor)
	}
	return &StaticRates{base: base, rates: rates}, nil
}

// DefaultRates is the INR-based table.
func DefaultRates() *StaticRates {
	r, _ := NewStaticRates("INR")
	return r
}

// Base returns the base currency code.
func (s *StaticRates) Base() string {
	return s.base
}

// ToBase converts and rounds to 2 decimal places.
func (s *StaticRates) ToBase(amount decimal.Decimal, currency string) decimal.Decimal {
	rate, ok := s.rates[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return amount.Mul(rate).Round(2)
}

// Supported reports whether the table knows the currency.
func (s *StaticRates) Supported(currency string) bool {
	_, ok := s.rates[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}
