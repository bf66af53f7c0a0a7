package utils

import (
	"strings"
)

// localNumberLength is the length of a subscriber number without country code.
const localNumberLength = 9

// CanonicalPhone normalizes a phone identifier to digits with country code.
// It accepts WhatsApp JIDs ("258841234567@c.us", "841234567:12@s.whatsapp.net"),
// "+258 84 123 4567" and bare local numbers. Anything without digits yields "".
func CanonicalPhone(raw, countryCode string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" {
		return ""
	}

	if len(digits) == localNumberLength && countryCode != "" {
		return countryCode + digits
	}
	return digits
}
