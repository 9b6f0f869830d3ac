package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/pkg/claimscache"
)

type fakeVerifier struct {
	verify func(ctx context.Context, token string) (domain.Claims, error)
	calls  atomic.Int64
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (domain.Claims, error) {
	f.calls.Add(1)
	return f.verify(ctx, token)
}

type fakeProvider struct {
	idp.Provider

	authenticate func(ctx context.Context, username, password string) (domain.TokenSet, error)
	refresh      func(ctx context.Context, token string) (domain.TokenSet, error)
	signOut      func(ctx context.Context, token string) error
	revoke       func(ctx context.Context, token string) error
}

func (f *fakeProvider) Authenticate(ctx context.Context, username, password string) (domain.TokenSet, error) {
	return f.authenticate(ctx, username, password)
}

func (f *fakeProvider) Refresh(ctx context.Context, token string) (domain.TokenSet, error) {
	return f.refresh(ctx, token)
}

func (f *fakeProvider) SignOut(ctx context.Context, token string) error {
	if f.signOut == nil {
		return nil
	}
	return f.signOut(ctx, token)
}

func (f *fakeProvider) RevokeRefreshToken(ctx context.Context, token string) error {
	if f.revoke == nil {
		return nil
	}
	return f.revoke(ctx, token)
}

func goodClaims(subject string) domain.Claims {
	now := time.Now()
	return domain.Claims{
		Subject:   subject,
		Username:  subject,
		Roles:     []string{"editor"},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func newTestService(v *fakeVerifier, p *fakeProvider) *TokenService {
	if p == nil {
		p = &fakeProvider{}
	}
	return NewTokenService(p, v, claimscache.New[domain.Claims](5*time.Minute))
}

func TestTokenService_Validate_CachesClaims(t *testing.T) {
	t.Parallel()

	v := &fakeVerifier{verify: func(_ context.Context, _ string) (domain.Claims, error) {
		return goodClaims("alice"), nil
	}}
	svc := newTestService(v, nil)

	first, err := svc.Validate(context.Background(), "token-a")
	require.NoError(t, err)
	require.Equal(t, "alice", first.Subject)

	second, err := svc.Validate(context.Background(), "token-a")
	require.NoError(t, err)
	require.Equal(t, first.Subject, second.Subject)

	require.Equal(t, int64(1), v.calls.Load(), "second validation should be served from cache")
}

func TestTokenService_Validate_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	v := &fakeVerifier{verify: func(_ context.Context, _ string) (domain.Claims, error) {
		<-release
		return goodClaims("alice"), nil
	}}
	svc := newTestService(v, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Validate(context.Background(), "token-a")
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), v.calls.Load(), "concurrent misses should share one verification")
}

func TestTokenService_Validate_FailureNotCached(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	v := &fakeVerifier{verify: func(_ context.Context, _ string) (domain.Claims, error) {
		if fail.Load() {
			return domain.Claims{}, idp.ErrUnavailable
		}
		return goodClaims("alice"), nil
	}}
	svc := newTestService(v, nil)

	_, err := svc.Validate(context.Background(), "token-a")
	require.ErrorIs(t, err, idp.ErrUnavailable)

	fail.Store(false)

	claims, err := svc.Validate(context.Background(), "token-a")
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
}

func TestTokenService_Revoke_EvictsLocally(t *testing.T) {
	t.Parallel()

	v := &fakeVerifier{verify: func(_ context.Context, _ string) (domain.Claims, error) {
		return goodClaims("alice"), nil
	}}
	p := &fakeProvider{signOut: func(_ context.Context, _ string) error {
		return idp.ErrUnavailable // provider outage must not block eviction
	}}
	svc := newTestService(v, p)

	_, err := svc.Validate(context.Background(), "token-a")
	require.NoError(t, err)

	svc.Revoke(context.Background(), "token-a", "refresh-a")

	_, err = svc.Validate(context.Background(), "token-a")
	require.ErrorIs(t, err, idp.ErrTokenRevoked)
}

func TestTokenService_Revoke_Idempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeVerifier{verify: func(_ context.Context, _ string) (domain.Claims, error) {
		return goodClaims("alice"), nil
	}}, nil)

	svc.Revoke(context.Background(), "token-a", "")
	svc.Revoke(context.Background(), "token-a", "")

	_, err := svc.Validate(context.Background(), "token-a")
	require.ErrorIs(t, err, idp.ErrTokenRevoked)
}

func TestTokenService_PruneRevoked(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeVerifier{verify: func(_ context.Context, _ string) (domain.Claims, error) {
		return goodClaims("alice"), nil
	}}, nil)

	svc.Revoke(context.Background(), "token-a", "")
	require.Equal(t, 0, svc.PruneRevoked())

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	require.Equal(t, 1, svc.PruneRevoked())
}

func TestTokenService_Authenticate_RetriesTransientOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	p := &fakeProvider{authenticate: func(_ context.Context, _, _ string) (domain.TokenSet, error) {
		if calls.Add(1) == 1 {
			return domain.TokenSet{}, idp.ErrUnavailable
		}
		return domain.TokenSet{AccessToken: "at"}, nil
	}}
	svc := newTestService(&fakeVerifier{}, p)

	set, err := svc.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, "at", set.AccessToken)
	require.Equal(t, int64(2), calls.Load())
}

func TestTokenService_Authenticate_NoRetryOnBadCredentials(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	p := &fakeProvider{authenticate: func(_ context.Context, _, _ string) (domain.TokenSet, error) {
		calls.Add(1)
		return domain.TokenSet{}, idp.ErrInvalidCredentials
	}}
	svc := newTestService(&fakeVerifier{}, p)

	_, err := svc.Authenticate(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, idp.ErrInvalidCredentials)
	require.Equal(t, int64(1), calls.Load(), "credential failures must not be retried")
}

func TestTokenService_Authenticate_PersistentOutage(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	p := &fakeProvider{authenticate: func(_ context.Context, _, _ string) (domain.TokenSet, error) {
		calls.Add(1)
		return domain.TokenSet{}, idp.ErrUnavailable
	}}
	svc := newTestService(&fakeVerifier{}, p)

	_, err := svc.Authenticate(context.Background(), "alice", "secret")
	require.ErrorIs(t, err, idp.ErrUnavailable)
	require.Equal(t, int64(2), calls.Load())
}

func TestTokenService_Refresh_MapsInvalidToken(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{refresh: func(_ context.Context, _ string) (domain.TokenSet, error) {
		return domain.TokenSet{}, idp.ErrInvalidRefreshToken
	}}
	svc := newTestService(&fakeVerifier{}, p)

	_, err := svc.Refresh(context.Background(), "stale")
	require.ErrorIs(t, err, idp.ErrInvalidRefreshToken)
}
