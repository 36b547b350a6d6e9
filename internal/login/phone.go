package login

import (
	"errors"
	"strings"
)

// ErrInvalidInput marks input rejected locally, before any portal call.
var ErrInvalidInput = errors.New("login: invalid input")

// CanonicalPhone converts a national phone number to +7XXXXXXXXXX.
// It accepts 10 digits, or 11 digits starting with 7 or 8, with an optional
// leading '+'. Anything else is ErrInvalidInput.
func CanonicalPhone(input string) (string, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(input), "+")
	if !allDigits(digits) {
		return "", ErrInvalidInput
	}
	switch len(digits) {
	case 10:
	case 11:
		if digits[0] != '7' && digits[0] != '8' {
			return "", ErrInvalidInput
		}
		digits = digits[1:]
	default:
		return "", ErrInvalidInput
	}
	return "+7" + digits, nil
}

// ValidSMSCode reports whether input is a non-empty run of digits.
func ValidSMSCode(input string) bool {
	return allDigits(strings.TrimSpace(input))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
