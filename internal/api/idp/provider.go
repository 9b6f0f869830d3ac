// Package idp wraps the managed identity provider: credential exchange,
// token refresh and revocation, and the administrative user-management
// operations. The provider owns user records and token minting; nothing in
// this process ever signs a token.
package idp

import (
	"context"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

// SignUpParams carries the attributes for a new registration. Optional
// fields are forwarded to the provider only when non-empty.
type SignUpParams struct {
	Username    string
	Password    string
	Email       string
	PhoneNumber string
	GivenName   string
	FamilyName  string
}

// Provider is the identity-provider capability. Credentials are transient:
// implementations must not retain them beyond the call.
type Provider interface {
	// Authenticate exchanges credentials for a token set.
	Authenticate(ctx context.Context, username, password string) (domain.TokenSet, error)

	// Refresh exchanges a refresh token for a fresh access/id token pair.
	// The provider does not rotate the refresh token on this path.
	Refresh(ctx context.Context, refreshToken string) (domain.TokenSet, error)

	// SignOut invalidates the session behind the given access token.
	SignOut(ctx context.Context, accessToken string) error

	// RevokeRefreshToken revokes a refresh token and every token derived
	// from it.
	RevokeRefreshToken(ctx context.Context, refreshToken string) error

	// User-management flows, all provider-backed.
	SignUp(ctx context.Context, params SignUpParams) (subject string, err error)
	ConfirmSignUp(ctx context.Context, username, code string) error
	ResendConfirmationCode(ctx context.Context, username string) error
	ChangePassword(ctx context.Context, accessToken, previous, proposed string) error
	ForgotPassword(ctx context.Context, username string) error
	ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error
	UpdateUserAttributes(ctx context.Context, accessToken string, attrs []domain.Attribute) error

	// Administrative operations; callers must gate these on role checks.
	DisableUser(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
}

// Verifier checks an access token's signature and standard claims against
// the provider's published keys and returns the decoded claims.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (domain.Claims, error)
}
