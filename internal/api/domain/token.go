package domain

import (
	"slices"
	"time"
)

// TokenSet is what a successful credential exchange or refresh returns. The
// server treats every token in it as opaque; only the identity provider can
// mint or decode them.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresAt    time.Time `json:"expires_at"`
}

// Claims are the decoded, signature-verified attributes of an access token.
// Immutable once built; a Claims value handed out as valid always has
// ExpiresAt in the future at the time of validation.
type Claims struct {
	Subject     string
	Username    string
	Roles       []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Fingerprint string // deterministic fingerprint of the raw token (cache key)
}

// HasRole reports whether the claims carry the given role.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether the claims carry at least one of the roles.
func (c Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// Expired reports whether the claims are past expiry at the given instant.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
