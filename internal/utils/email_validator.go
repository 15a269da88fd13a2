package utils

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/lindell/go-burner-email-providers/burner"
)

// EmailValidationError represents an error during email validation
type EmailValidationError struct {
	Message string
	Code    string
}

func (e EmailValidationError) Error() string {
	return e.Message
}

// EmailValidationConfig holds configuration for email validation
type EmailValidationConfig struct {
	BlockDisposableEmails bool
}

// ValidateEmailAddress checks the format of an address and rejects
// disposable mailboxes
func ValidateEmailAddress(email string) error {
	return ValidateEmailAddressWithConfig(email, nil)
}

// ValidateEmailAddressWithConfig validates an email address with configuration options
func ValidateEmailAddressWithConfig(email string, cfg *EmailValidationConfig) error {
	if cfg == nil {
		cfg = &EmailValidationConfig{BlockDisposableEmails: true}
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return &EmailValidationError{
			Message: "Invalid email format",
			Code:    "email_invalid_format",
		}
	}

	domain, err := extractDomain(email)
	if err != nil {
		return &EmailValidationError{
			Message: "Could not extract domain from email",
			Code:    "email_invalid_format",
		}
	}

	if cfg.BlockDisposableEmails && IsDisposableEmail(domain) {
		return &EmailValidationError{
			Message: fmt.Sprintf("Email from disposable domain '%s' is not allowed. Please use a permanent email address.", domain),
			Code:    "email_disposable",
		}
	}

	return nil
}

// IsDisposableEmail checks a domain, and its parent domain, against the
// burner provider list
func IsDisposableEmail(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}

	if burner.IsBurnerEmail("user@" + domain) {
		return true
	}

	// test.mailinator.com should match mailinator.com
	parts := strings.Split(domain, ".")
	if len(parts) > 2 {
		return burner.IsBurnerEmail("user@" + strings.Join(parts[len(parts)-2:], "."))
	}

	return false
}

// NormalizeEmail is the form addresses are stored and compared in
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// extractDomain extracts the domain part from an email address
func extractDomain(email string) (string, error) {
	email = strings.TrimSpace(email)
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid email format")
	}
	return strings.ToLower(parts[1]), nil
}
