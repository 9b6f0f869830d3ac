package subscription

import (
	"context"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

// ClaimsSource yields the connection's current claims. The manager refreshes
// them on every re-validation, so per-event authorization always sees the
// latest identity rather than the one from the handshake.
type ClaimsSource func() domain.Claims

type ctxKey int

const claimsSourceKey ctxKey = iota

func WithClaimsSource(ctx context.Context, src ClaimsSource) context.Context {
	return context.WithValue(ctx, claimsSourceKey, src)
}

func ClaimsSourceFromContext(ctx context.Context) (ClaimsSource, bool) {
	src, ok := ctx.Value(claimsSourceKey).(ClaimsSource)
	return src, ok
}
