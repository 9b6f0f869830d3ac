package authz

import "context"

// OwnerFunc resolves the owner subject of the resource named by a field's
// bound arguments. It runs after argument binding and before any resolver
// side effects. Implementations return ErrOwnerUnknown when the resource
// does not exist; any other error is treated as an infrastructure failure.
type OwnerFunc func(ctx context.Context, args map[string]any) (string, error)

type requirementKind int

const (
	kindPublic requirementKind = iota
	kindAuthenticated
	kindRole
	kindOwnership
)

// Requirement is the closed set of access rules a field can carry. Zero
// value is Public.
type Requirement struct {
	kind     requirementKind
	roles    []string
	ownerKey string
}

// Public allows any caller, token or not.
func Public() Requirement { return Requirement{kind: kindPublic} }

// Authenticated requires a valid token; any identity suffices.
func Authenticated() Requirement { return Requirement{kind: kindAuthenticated} }

// RequireRole requires a valid token whose claims carry at least one of the
// given roles.
func RequireRole(roles ...string) Requirement {
	return Requirement{kind: kindRole, roles: roles}
}

// RequireOwnership requires a valid token whose subject owns the resource
// resolved by the named owner lookup.
func RequireOwnership(ownerKey string) Requirement {
	return Requirement{kind: kindOwnership, ownerKey: ownerKey}
}

// IsPublic reports whether the requirement admits anonymous callers.
func (r Requirement) IsPublic() bool { return r.kind == kindPublic }
