package util

import (
	"strings"

	"github.com/google/uuid"
)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// NormalizeAddress trims and lower-cases an email address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DigitsOnly strips everything except ASCII digits, so " 123 456" becomes "123456".
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsEmailLike is the minimal recipient check: a non-empty local part and
// domain around an "@".
func IsEmailLike(address string) bool {
	at := strings.LastIndex(address, "@")
	return at > 0 && at < len(address)-1
}

// LocalPart returns the part of an address before "@", or the whole string.
func LocalPart(address string) string {
	if at := strings.Index(address, "@"); at >= 0 {
		return address[:at]
	}
	return address
}
