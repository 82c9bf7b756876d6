package auth

import (
	"regexp"
	"strings"

	"github.com/solistry/auth-service/internal/messaging"
)

var (
	emailRegex       = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	countryCodeRegex = regexp.MustCompile(`^\+?[0-9]{1,3}$`)
	phoneRegex       = regexp.MustCompile(`^[0-9]{4,14}$`)
)

// identifierFrom normalizes the contact channel into the canonical key used
// for OTP records and profile lookup: a lower-cased email, or
// countryCode+nationalNumber. The identifier is immutable for a flow once
// chosen.
func identifierFrom(email, countryCode, phoneNumber string) (id string, channel messaging.Channel, ok bool) {
	email = strings.TrimSpace(strings.ToLower(email))
	countryCode = strings.TrimSpace(countryCode)
	phoneNumber = strings.TrimSpace(phoneNumber)

	if email != "" {
		if !emailRegex.MatchString(email) {
			return "", "", false
		}
		return email, messaging.ChannelEmail, true
	}

	if countryCode == "" || phoneNumber == "" {
		return "", "", false
	}
	if !countryCodeRegex.MatchString(countryCode) || !phoneRegex.MatchString(phoneNumber) {
		return "", "", false
	}
	return strings.TrimPrefix(countryCode, "+") + phoneNumber, messaging.ChannelSMS, true
}
