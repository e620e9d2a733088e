// ABOUTME: Masking helpers that keep secrets and addresses out of logs
// ABOUTME: Tokens keep their last four characters, emails keep the first letter and domain
package logging

import "strings"

// MaskToken masks a token or key, preserving only the last 4 characters.
func MaskToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskEmail masks the local part of an address: "jane@example.com" becomes "j***@example.com".
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskToken(email)
	}
	return email[:1] + "***" + email[at:]
}
