package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// TokenValidator resolves an access token to claims. Satisfied by
// service.TokenService.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (domain.Claims, error)
}

// Authorizer evaluates field requirements. One instance guards the whole
// schema; owner lookups are registered before the schema is built and the
// requirement table is validated against them at build time.
type Authorizer struct {
	tokens TokenValidator
	owners map[string]OwnerFunc
}

func NewAuthorizer(tokens TokenValidator) *Authorizer {
	return &Authorizer{
		tokens: tokens,
		owners: make(map[string]OwnerFunc),
	}
}

// RegisterOwnerFunc installs the owner lookup for a key. Registration happens
// during wiring, before any request is served.
func (a *Authorizer) RegisterOwnerFunc(key string, fn OwnerFunc) {
	a.owners[key] = fn
}

// ValidateRequirement checks that a requirement is evaluable. Called for
// every field while the schema is assembled; an error here aborts startup.
func (a *Authorizer) ValidateRequirement(field string, r Requirement) error {
	switch r.kind {
	case kindRole:
		if len(r.roles) == 0 {
			return &ConfigError{Field: field, Reason: "role requirement with empty role set"}
		}
	case kindOwnership:
		if _, ok := a.owners[r.ownerKey]; !ok {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("unknown owner lookup %q", r.ownerKey)}
		}
	}
	return nil
}

// Authorize evaluates a requirement for one field invocation. On success the
// returned context carries the resolved Authorization for nested fields; an
// operation's identity is resolved at most once.
func (a *Authorizer) Authorize(ctx context.Context, req Requirement, args map[string]any) (context.Context, error) {
	if req.IsPublic() {
		return ctx, nil
	}

	auth, ok := FromContext(ctx)
	if !ok {
		token, present := TokenFromContext(ctx)
		if !present {
			return ctx, ErrUnauthenticated
		}

		claims, err := a.tokens.Validate(ctx, token)
		if err != nil {
			return ctx, mapValidationError(err)
		}

		auth = Authorization{Claims: claims, Token: token, IsAuthenticated: true}
		ctx = withAuthorization(ctx, auth)
	}

	if err := a.check(ctx, auth.Claims, req, args); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// AuthorizeClaims evaluates a requirement against already-resolved claims.
// Subscription delivery uses this per event with the connection's current
// identity, so no token round trip happens on the hot path.
func (a *Authorizer) AuthorizeClaims(ctx context.Context, claims domain.Claims, req Requirement, args map[string]any) error {
	if req.IsPublic() {
		return nil
	}
	return a.check(ctx, claims, req, args)
}

func (a *Authorizer) check(ctx context.Context, claims domain.Claims, req Requirement, args map[string]any) error {
	switch req.kind {
	case kindAuthenticated:
		return nil

	case kindRole:
		if !claims.HasAnyRole(req.roles...) {
			return ErrForbidden
		}
		return nil

	case kindOwnership:
		fn, ok := a.owners[req.ownerKey]
		if !ok {
			// Should have been caught at schema build.
			return &ConfigError{Field: req.ownerKey, Reason: "owner lookup vanished after validation"}
		}

		owner, err := fn(ctx, args)
		if err != nil {
			if errors.Is(err, ErrOwnerUnknown) {
				// Missing resources deny identically to foreign ones.
				return ErrForbidden
			}
			slogx.FromContext(ctx).Error("owner lookup failed", "key", req.ownerKey, "err", err)
			return fmt.Errorf("%w: owner lookup", ErrUnavailable)
		}

		if owner != claims.Subject {
			return ErrForbidden
		}
		return nil
	}

	return nil
}

// mapValidationError folds token-service errors into the two answers callers
// are allowed to distinguish: fix-by-reauthenticating vs fix-by-retrying.
func mapValidationError(err error) error {
	if errors.Is(err, idp.ErrUnavailable) {
		return fmt.Errorf("%w: token validation", ErrUnavailable)
	}
	return fmt.Errorf("%w: %s", ErrUnauthenticated, reasonFor(err))
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, idp.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, idp.ErrTokenRevoked):
		return "token revoked"
	default:
		return "invalid token"
	}
}
