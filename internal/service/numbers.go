package service

import (
	"strings"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
)

const countryPrefix = "57"

// NormalizeRecipient validates a Colombian mobile number and returns it in
// local 10-digit form. Accepts 10 digits starting with 3 or 12 digits with
// the 57 prefix; anything else is a ValidationError.
func NormalizeRecipient(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	number := digits.String()

	switch {
	case len(number) == 10 && strings.HasPrefix(number, "3"):
		return number, nil
	case len(number) == 12 && strings.HasPrefix(number, countryPrefix):
		return number[len(countryPrefix):], nil
	default:
		return "", &domain.ValidationError{Field: "number", Message: "invalid mobile number: " + raw}
	}
}

// InternationalFormat prefixes the country code for the transport call.
func InternationalFormat(local string) string {
	if strings.HasPrefix(local, countryPrefix) {
		return local
	}
	return countryPrefix + local
}
