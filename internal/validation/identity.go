// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxFullNameLength = 60
	MaxTextLength     = 2200
)

// ValidatePassword checks if a password meets sign-up requirements
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}

	// Prevent unreasonable inputs
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLength)
	}

	hasUpper := false
	for _, r := range password {
		if unicode.IsUpper(r) {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}

	return nil
}

// ValidateUsername checks if a username meets requirements
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters long")
	}

	if len(username) > 30 {
		return fmt.Errorf("username must not exceed 30 characters")
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, underscores, and hyphens")
	}

	// Cannot start or end with underscore/hyphen
	if username[0] == '_' || username[0] == '-' || username[len(username)-1] == '_' || username[len(username)-1] == '-' {
		return fmt.Errorf("username cannot start or end with underscore or hyphen")
	}

	return nil
}

// ValidateEmail checks the email format and, when domain is non-empty, that
// the address belongs to it.
func ValidateEmail(email, domain string) error {
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}

	if domain != "" && !strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(domain)) {
		return fmt.Errorf("email must be a @%s address", domain)
	}

	return nil
}

// ValidateFullName checks a display name after trimming.
func ValidateFullName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("full name is required")
	}
	if utf8.RuneCountInString(name) > MaxFullNameLength {
		return fmt.Errorf("full name must not exceed %d characters", MaxFullNameLength)
	}
	return nil
}

// ValidateText checks comment, reply, caption and message bodies. Empty text
// is rejected unless allowEmpty is set.
func ValidateText(field, text string, allowEmpty bool) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && !allowEmpty {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return fmt.Errorf("%s must not exceed %d characters", field, MaxTextLength)
	}
	return nil
}
