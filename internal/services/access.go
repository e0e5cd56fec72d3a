package services

import (
	"strings"

	"github.com/homegrid/backend/internal/models"
)

// AllowlistProvider returns the current login allow-list. It is called on
// every check so that configuration changes take effect on the next request.
type AllowlistProvider func() []string

// AccessService answers the authorization questions for route guards:
// allow-list membership and role checks.
type AccessService struct {
	allowlist AllowlistProvider
}

// NewAccessService creates a new access service over the given allow-list provider
func NewAccessService(allowlist AllowlistProvider) *AccessService {
	return &AccessService{allowlist: allowlist}
}

// StaticAllowlist wraps a fixed list of emails as an AllowlistProvider
func StaticAllowlist(emails []string) AllowlistProvider {
	return func() []string { return emails }
}

// Allowed reports whether the user's email is on the allow-list. Matching is
// case-insensitive and whitespace-tolerant on both sides; a nil user, an
// empty email or an empty allow-list all deny.
func (s *AccessService) Allowed(user *models.User) bool {
	if user == nil {
		return false
	}

	email := NormalizeEmail(user.Email)
	if email == "" {
		return false
	}

	for _, entry := range s.allowlist() {
		if NormalizeEmail(entry) == email {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user has the admin role
func (s *AccessService) IsAdmin(user *models.User) bool {
	return user != nil && user.Role == models.RoleAdmin
}

// NormalizeEmail trims surrounding whitespace and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
