// ABOUTME: Prompt construction for batch and single-email subscription extraction
// ABOUTME: States the output schema and the renewal date policy the validator enforces
package extract

import (
	"fmt"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// truncate keeps at most max runes of s.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func batchPrompt(texts []string, maxChars int, now time.Time) string {
	var emails strings.Builder
	for i, text := range texts {
		if i > 0 {
			emails.WriteString("\n\n")
		}
		fmt.Fprintf(&emails, "--- Email %d ---\n%s", i+1, truncate(text, maxChars))
	}

	return fmt.Sprintf(`You are a financial data extraction assistant. Analyze the following email texts and extract information about recurring subscription services or software.

For each subscription found, provide:
- name: The service or company name (e.g., "Netflix", "Spotify", "AWS")
- amount: The exact billed amount as a number (e.g., 9.99)
- currency: The 3-letter ISO 4217 currency code of the amount (e.g., "USD", "INR")
- billingCycle: Either "monthly" or "yearly"
- category: One of: "Streaming", "Software", "Cloud", "Education", "Utilities", "Others"
- renewalDate: The next billing/renewal date as YYYY-MM-DD. If only a billing date is mentioned, add one billing cycle to it. If unknown, use %s (30 days from today, %s).
- confidence: A number 0-1 representing how confident you are this is a recurring subscription (not a one-time purchase)
- emailSubject: A brief description of what email this came from

Only include services that appear to be RECURRING subscriptions. Ignore one-time purchases, shipping notifications, and promotional emails.
If no subscriptions are found, return an empty array.

Return ONLY valid JSON matching this exact schema:
{ "subscriptions": [ { "name": "...", "amount": 0.00, "currency": "USD", "billingCycle": "monthly"|"yearly", "category": "...", "renewalDate": "YYYY-MM-DD", "confidence": 0.0, "emailSubject": "..." } ] }

Emails to analyze:
%s`, now.AddDate(0, 0, 30).Format(isoDate), now.Format(isoDate), emails.String())
}

func singlePrompt(text string, maxChars int, now time.Time) string {
	return fmt.Sprintf(`You are a financial data extraction AI. Analyze the following email body and determine if it contains a recurring subscription charge or upcoming renewal.

If a recurring subscription IS found, return a single JSON object exactly matching this schema:
{
  "name": "<service or company name, e.g. Netflix>",
  "amount": <numeric charge amount, e.g. 9.99>,
  "currency": "<3-letter ISO 4217 currency code, e.g. USD, INR, EUR>",
  "billingCycle": "<'monthly' or 'yearly' only>",
  "category": "<one of Streaming, Software, Cloud, Education, Utilities, Others>",
  "renewalDate": "<next renewal date as YYYY-MM-DD. If only a billing date is mentioned, add one billing cycle to it. If unknown, use %s (30 days from today, %s)>",
  "confidence": <float 0.0-1.0 reflecting certainty this is a RECURRING subscription>
}

If NO recurring subscription is found (one-time purchase, shipping notification, promotional email), return exactly: null

Rules:
- Return ONLY the JSON object or null, with no extra text and no code fences.
- Amount must be a number, not a string.
- billingCycle must be exactly "monthly" or "yearly".

Email body to analyze:
---
%s
---`, now.AddDate(0, 0, 30).Format(isoDate), now.Format(isoDate), truncate(text, maxChars))
}
