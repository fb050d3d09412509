package accountsync

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsActiveStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"active", true},
		{"trialing", true},
		{"past_due", true},
		{"ACTIVE", true},
		{"cancelled", false},
		{"paused", false},
		{"", false},
		{"something_new", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, IsActiveStatus(tt.status))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("Alice@Example.COM"))
	assert.Equal(t, "alice@example.com", NormalizeEmail("  alice@example.com  "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestNewLicenseKey_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{12}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := NewLicenseKey()
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "keys must not repeat")
		seen[key] = true
	}
}
