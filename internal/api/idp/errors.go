package idp

import "errors"

// Sentinel errors for everything the identity provider can refuse. Callers
// match with errors.Is; the GraphQL boundary is responsible for collapsing
// these into the client-facing unauthenticated/forbidden/unavailable trio so
// raw provider detail never leaks.
var (
	ErrInvalidCredentials  = errors.New("idp: invalid credentials")
	ErrInvalidRefreshToken = errors.New("idp: invalid refresh token")
	ErrTokenExpired        = errors.New("idp: token expired")
	ErrTokenMalformed      = errors.New("idp: token malformed")
	ErrTokenRevoked        = errors.New("idp: token revoked")
	ErrUnavailable         = errors.New("idp: provider unavailable")

	ErrUserNotConfirmed = errors.New("idp: user not confirmed")
	ErrUserExists       = errors.New("idp: user already exists")
	ErrCodeMismatch     = errors.New("idp: confirmation code mismatch")
	ErrInvalidPassword  = errors.New("idp: password does not meet requirements")
)
