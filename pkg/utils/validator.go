package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	controlRegex  = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// NormalizeCurrency upper-cases and checks an ISO-4217 style code
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !currencyRegex.MatchString(c) {
		return "", fmt.Errorf("invalid currency code: %q", code)
	}
	return c, nil
}

// SanitizeString strips control characters (newlines and tabs are kept) and surrounding space
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
}
