package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/pkg/claimscache"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

const (
	// providerRetryDelay is the pause before the single retry against a
	// provider that answered with a transient failure.
	providerRetryDelay = 250 * time.Millisecond

	// revocationRetention bounds how long a revoked fingerprint is held
	// when the token's real expiry is unknown. Longer than any access
	// token the provider can mint.
	revocationRetention = 24 * time.Hour
)

// TokenService wraps the identity-provider capability with the claims cache,
// request coalescing, and local revocation tracking. One instance is shared
// by the GraphQL middleware and every subscription connection.
type TokenService struct {
	provider idp.Provider
	verifier idp.Verifier
	cache    *claimscache.Cache[domain.Claims]

	group singleflight.Group

	revokedMu sync.RWMutex
	revoked   map[string]time.Time // fingerprint -> retention deadline

	now func() time.Time
}

func NewTokenService(provider idp.Provider, verifier idp.Verifier, cache *claimscache.Cache[domain.Claims]) *TokenService {
	return &TokenService{
		provider: provider,
		verifier: verifier,
		cache:    cache,
		revoked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// retryOnce runs op and retries exactly once, after a short pause, when the
// provider reports a transient outage. Every other failure is surfaced
// immediately.
func retryOnce[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, idp.ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(providerRetryDelay)),
		backoff.WithMaxTries(2),
	)
}

// Authenticate exchanges credentials for a token set. Invalid credentials
// are never retried.
func (s *TokenService) Authenticate(ctx context.Context, username, password string) (domain.TokenSet, error) {
	return retryOnce(ctx, func() (domain.TokenSet, error) {
		return s.provider.Authenticate(ctx, username, password)
	})
}

// Refresh exchanges a refresh token for a new token set. Outcomes are never
// cached; a refresh token is single-purpose.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (domain.TokenSet, error) {
	return retryOnce(ctx, func() (domain.TokenSet, error) {
		return s.provider.Refresh(ctx, refreshToken)
	})
}

// Validate resolves an access token to claims. The cache is consulted first;
// on a miss, concurrent validations of the same token are coalesced so the
// verifier runs at most once. Failures are never cached.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (domain.Claims, error) {
	fp := claimscache.Fingerprint(accessToken)

	if s.isRevoked(fp) {
		return domain.Claims{}, idp.ErrTokenRevoked
	}

	if claims, ok := s.cache.Get(fp); ok {
		return claims, nil
	}

	v, err, _ := s.group.Do(fp, func() (any, error) {
		// Another coalesced caller may have filled the cache already.
		if claims, ok := s.cache.Get(fp); ok {
			return claims, nil
		}

		claims, err := s.verifier.Verify(ctx, accessToken)
		if err != nil {
			return nil, err
		}

		s.cache.Put(fp, claims, claims.ExpiresAt)
		return claims, nil
	})
	if err != nil {
		return domain.Claims{}, err
	}

	// A revoke that raced the validation wins: drop what we just cached.
	if s.isRevoked(fp) {
		s.cache.Invalidate(fp)
		return domain.Claims{}, idp.ErrTokenRevoked
	}

	return v.(domain.Claims), nil
}

// Revoke invalidates an access token (and optionally the refresh token that
// produced it). Local eviction is unconditional and immediate; the provider
// call is best-effort. Revoking twice is a no-op.
func (s *TokenService) Revoke(ctx context.Context, accessToken, refreshToken string) {
	log := slogx.FromContext(ctx)
	fp := claimscache.Fingerprint(accessToken)

	retention := s.now().Add(revocationRetention)
	if claims, ok := s.cache.Get(fp); ok {
		retention = claims.ExpiresAt
	}
	s.markRevoked(fp, retention)
	s.cache.Invalidate(fp)

	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		log.Warn("provider sign-out failed, token evicted locally", "err", err)
	}

	if refreshToken != "" {
		if err := s.provider.RevokeRefreshToken(ctx, refreshToken); err != nil {
			log.Warn("refresh token revocation failed", "err", err)
		}
	}
}

// PruneRevoked drops revocation records whose tokens have expired anyway.
// Returns the number removed; driven by housekeeping.
func (s *TokenService) PruneRevoked() int {
	now := s.now()

	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()

	removed := 0
	for fp, deadline := range s.revoked {
		if !now.Before(deadline) {
			delete(s.revoked, fp)
			removed++
		}
	}
	return removed
}

func (s *TokenService) isRevoked(fp string) bool {
	s.revokedMu.RLock()
	defer s.revokedMu.RUnlock()
	_, ok := s.revoked[fp]
	return ok
}

func (s *TokenService) markRevoked(fp string, until time.Time) {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	s.revoked[fp] = until
}
