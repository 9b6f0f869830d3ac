// Package graphql assembles the schema, attaches access requirements to
// every field, and maps internal errors to the wire taxonomy.
package graphql

import (
	"errors"

	"github.com/graphql-go/graphql/gqlerrors"

	"github.com/inkwellhq/inkwell/internal/api/authz"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/internal/api/service"
)

// Error codes surfaced in the "code" extension of GraphQL errors. Clients
// key on these, never on message text.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeForbidden          = "FORBIDDEN"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadUserInput       = "BAD_USER_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL"
)

// apiError implements gqlerrors.ExtendedError so graphql-go carries the code
// through to the response's extensions map.
type apiError struct {
	msg  string
	code string
	err  error
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.err }

func (e *apiError) Extensions() map[string]any {
	return map[string]any{"code": e.code}
}

func newAPIError(code, msg string, err error) *apiError {
	return &apiError{msg: msg, code: code, err: err}
}

// mapError folds every internal error into the client-facing taxonomy.
// Provider and store details never cross this boundary.
func mapError(err error) error {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		return newAPIError(CodeUnauthenticated, "authentication required", err)
	case errors.Is(err, authz.ErrForbidden):
		return newAPIError(CodeForbidden, "not permitted", err)
	case errors.Is(err, authz.ErrUnavailable), errors.Is(err, idp.ErrUnavailable):
		return newAPIError(CodeServiceUnavailable, "service temporarily unavailable", err)

	case errors.Is(err, idp.ErrInvalidCredentials):
		return newAPIError(CodeUnauthenticated, "invalid credentials", err)
	case errors.Is(err, idp.ErrInvalidRefreshToken):
		return newAPIError(CodeUnauthenticated, "invalid refresh token", err)
	case errors.Is(err, idp.ErrTokenExpired):
		return newAPIError(CodeUnauthenticated, "token expired", err)
	case errors.Is(err, idp.ErrTokenRevoked):
		return newAPIError(CodeUnauthenticated, "token revoked", err)
	case errors.Is(err, idp.ErrTokenMalformed):
		return newAPIError(CodeUnauthenticated, "invalid token", err)
	case errors.Is(err, idp.ErrUserNotConfirmed):
		return newAPIError(CodeForbidden, "account not confirmed", err)
	case errors.Is(err, idp.ErrUserExists):
		return newAPIError(CodeConflict, "username already taken", err)
	case errors.Is(err, idp.ErrCodeMismatch):
		return newAPIError(CodeBadUserInput, "invalid or expired confirmation code", err)
	case errors.Is(err, idp.ErrInvalidPassword):
		return newAPIError(CodeBadUserInput, "password does not meet requirements", err)

	case errors.Is(err, service.ErrTitleRequired):
		return newAPIError(CodeBadUserInput, "document title required", err)
	case errors.Is(err, service.ErrDocumentNotFound):
		return newAPIError(CodeNotFound, "document not found", err)
	case errors.Is(err, service.ErrOwnerNotFound):
		return newAPIError(CodeBadUserInput, "recipient not found", err)
	}

	return newAPIError(CodeInternal, "internal error", err)
}

// CodeOf extracts the error code from a formatted GraphQL error. Unknown
// shapes report as INTERNAL.
func CodeOf(fe gqlerrors.FormattedError) string {
	if ext := fe.Extensions; ext != nil {
		if code, ok := ext["code"].(string); ok {
			return code
		}
	}
	return CodeInternal
}
