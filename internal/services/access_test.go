package services

import (
	"testing"

	"github.com/homegrid/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAccessService_Allowed(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		user      *models.User
		expected  bool
	}{
		{
			name:      "exact match",
			allowlist: []string{"test@example.com"},
			user:      &models.User{Email: "test@example.com"},
			expected:  true,
		},
		{
			name:      "case insensitive match",
			allowlist: []string{"Test@Example.com"},
			user:      &models.User{Email: "test@example.com"},
			expected:  true,
		},
		{
			name:      "whitespace in user email",
			allowlist: []string{"Test@Example.com"},
			user:      &models.User{Email: " test@example.com "},
			expected:  true,
		},
		{
			name:      "whitespace in allowlist entry",
			allowlist: []string{" user@example.com "},
			user:      &models.User{Email: "user@example.com"},
			expected:  true,
		},
		{
			name:      "not in allowlist",
			allowlist: []string{"allowed@example.com"},
			user:      &models.User{Email: "notallowed@example.com"},
			expected:  false,
		},
		{
			name:      "nil user",
			allowlist: []string{"test@example.com"},
			user:      nil,
			expected:  false,
		},
		{
			name:      "empty email",
			allowlist: []string{"test@example.com"},
			user:      &models.User{Email: ""},
			expected:  false,
		},
		{
			name:      "whitespace-only email",
			allowlist: []string{"test@example.com"},
			user:      &models.User{Email: "   "},
			expected:  false,
		},
		{
			name:      "empty allowlist",
			allowlist: []string{},
			user:      &models.User{Email: "any@example.com"},
			expected:  false,
		},
		{
			name:      "empty entries are ignored",
			allowlist: []string{"", "  ", "user@example.com"},
			user:      &models.User{Email: "user@example.com"},
			expected:  true,
		},
		{
			name:      "multiple entries",
			allowlist: []string{"user1@example.com", "user2@example.com", "user3@example.com"},
			user:      &models.User{Email: "user2@example.com"},
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAccessService(StaticAllowlist(tt.allowlist))

			assert.Equal(t, tt.expected, svc.Allowed(tt.user))
		})
	}
}

func TestAccessService_Allowed_LiveProvider(t *testing.T) {
	// The allow-list is re-read on every check, so a configuration change
	// takes effect on the next call
	current := []string{"user@example.com"}
	svc := NewAccessService(func() []string { return current })
	user := &models.User{Email: "user@example.com"}

	assert.True(t, svc.Allowed(user))

	current = []string{"someone-else@example.com"}
	assert.False(t, svc.Allowed(user))
}

func TestAccessService_IsAdmin(t *testing.T) {
	svc := NewAccessService(StaticAllowlist(nil))

	assert.True(t, svc.IsAdmin(&models.User{Role: models.RoleAdmin}))
	assert.False(t, svc.IsAdmin(&models.User{Role: models.RoleUser}))
	assert.False(t, svc.IsAdmin(nil))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "test@example.com", NormalizeEmail(" Test@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}
