// Package validation checks wallet addresses and request fields for the
// SafeScore API, MCP tools and CLI.
package validation

import (
	"fmt"
	"strings"
)

const invalidAddress = "must be a valid Ethereum address (0x...)"

// ValidationError is a problem with one named field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field problems; Error reports the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs every check and returns the failures in order.
func Validate(checks ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, check := range checks {
		if ve := check(); ve != nil {
			errs = append(errs, *ve)
		}
	}
	return errs
}

func fail(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// Required rejects blank values.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) != "" {
			return nil
		}
		return fail(field, "is required")
	}
}

// ValidAddress checks a field after sanitizing it. Empty values pass; pair
// it with Required for mandatory fields.
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" || IsValidEthAddress(SanitizeAddress(value)) {
			return nil
		}
		return fail(field, invalidAddress)
	}
}

// MaxLength rejects values longer than max bytes.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) <= max {
			return nil
		}
		return fail(field, fmt.Sprintf("exceeds maximum length of %d", max))
	}
}

// AddressList checks that a list holds between one and max addresses and
// that each one is valid. Errors name the offending index.
func AddressList(field string, addrs []string, max int) func() *ValidationError {
	return func() *ValidationError {
		switch {
		case len(addrs) == 0:
			return fail(field, "at least one address is required")
		case len(addrs) > max:
			return fail(field, fmt.Sprintf("at most %d addresses are allowed", max))
		}
		for i, a := range addrs {
			if !IsValidEthAddress(SanitizeAddress(a)) {
				return fail(fmt.Sprintf("%s[%d]", field, i), invalidAddress)
			}
		}
		return nil
	}
}

// SanitizeString trims whitespace, drops null bytes and truncates to
// maxLen bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
