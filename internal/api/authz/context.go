package authz

import (
	"context"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

type ctxKey int

const (
	tokenKey ctxKey = iota
	authorizationKey
)

// Authorization is the per-operation identity snapshot. Built once when the
// first non-public field of an operation is authorized, then reused for
// nested fields. Immutable after construction.
type Authorization struct {
	Claims          domain.Claims
	Token           string
	IsAuthenticated bool
}

// WithToken attaches the raw bearer token extracted by the transport layer.
// An empty token is not attached.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the raw bearer token, if the transport saw one.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}

func withAuthorization(ctx context.Context, a Authorization) context.Context {
	return context.WithValue(ctx, authorizationKey, a)
}

// FromContext returns the operation's Authorization, if one was resolved.
func FromContext(ctx context.Context) (Authorization, bool) {
	a, ok := ctx.Value(authorizationKey).(Authorization)
	return a, ok
}

// MustSubject returns the authenticated subject or empty string.
func MustSubject(ctx context.Context) string {
	a, ok := FromContext(ctx)
	if !ok || !a.IsAuthenticated {
		return ""
	}
	return a.Claims.Subject
}
