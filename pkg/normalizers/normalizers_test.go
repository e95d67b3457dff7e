package normalizers

import (
	"testing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bob@Example.com", "bob@example.com"},
		{"  bob@example.com ", "bob@example.com"},
		{"BOB+kids@EXAMPLE.COM", "bob+kids@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeEmail(tt.input))
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"+1 (555) 123-4567", "15551234567"},
		{"555.123.4567", "5551234567"},
		{"555 123 4567 ext 9", "55512345679"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizePhone(tt.input))
	}
}

func TestNormalizeContact(t *testing.T) {
	assert.Equal(t, "bob@example.com", NormalizeContact(" Bob@Example.com", models.ContactTypeEmail))
	assert.Equal(t, "15551234567", NormalizeContact("+1 555-123-4567", models.ContactTypePhone))
	assert.Equal(t, "whatever", NormalizeContact(" whatever ", models.ContactType("carrier-pigeon")))
}
