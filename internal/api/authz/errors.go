package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no usable identity accompanied the request:
	// missing, malformed, expired, or revoked token. Callers can fix this by
	// re-authenticating.
	ErrUnauthenticated = errors.New("authz: unauthenticated")

	// ErrForbidden is the single denial answer for an authenticated caller.
	// It deliberately does not distinguish "no such resource" from "not
	// yours" so a denied response never confirms existence.
	ErrForbidden = errors.New("authz: not permitted")

	// ErrUnavailable means identity could not be established because the
	// token service (or the provider behind it) failed. Retrying later can
	// fix this; re-authenticating cannot.
	ErrUnavailable = errors.New("authz: authorization temporarily unavailable")

	// ErrOwnerUnknown is returned by owner lookup funcs when the resource
	// does not exist. The middleware folds it into ErrForbidden.
	ErrOwnerUnknown = errors.New("authz: owner unknown")
)

// ConfigError reports a requirement that cannot be evaluated: an ownership
// requirement naming an unregistered owner lookup, or a role requirement with
// no roles. It is raised while the schema is built and is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("authz: field %q misconfigured: %s", e.Field, e.Reason)
}
