// Package normalizers provides contact method canonicalization so skeleton
// lookups and registration merges compare exact values
package normalizers

import (
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/models"
)

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips everything but digits
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeContact canonicalizes a contact method by type. Unknown types
// fall back to a trim, which keeps lookups deterministic either way.
func NormalizeContact(method string, contactType models.ContactType) string {
	switch contactType {
	case models.ContactTypeEmail:
		return NormalizeEmail(method)
	case models.ContactTypePhone:
		return NormalizePhone(method)
	default:
		return strings.TrimSpace(method)
	}
}
