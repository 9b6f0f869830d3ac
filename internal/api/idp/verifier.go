package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/pkg/claimscache"
)

// errJWKSUnavailable marks key-fetch failures so Verify can report them as a
// provider outage instead of a bad token.
var errJWKSUnavailable = errors.New("idp: jwks unavailable")

// VerifierConfig configures the JWKS-backed access-token verifier.
type VerifierConfig struct {
	// Issuer is the token issuer URL. For Cognito this is
	// https://cognito-idp.<region>.amazonaws.com/<user-pool-id>.
	Issuer string

	// ClientID is the app client the token must have been minted for.
	ClientID string

	// JWKSURL overrides the default <issuer>/.well-known/jwks.json.
	JWKSURL string

	// HTTPClient overrides the client used for JWKS fetches.
	HTTPClient *http.Client

	// FetchTimeout bounds JWKS registration and refresh.
	FetchTimeout time.Duration
}

// JWKSVerifier verifies access tokens locally against the provider's
// published signing keys. Key material is cached and refreshed in the
// background; only a cold cache causes network I/O on the validation path.
type JWKSVerifier struct {
	issuer       string
	clientID     string
	jwksURL      string
	cache        *jwk.Cache
	fetchTimeout time.Duration
	now          func() time.Time

	registerMu  sync.Mutex
	registered  bool
	registerErr error
}

// NewJWKSVerifier builds the verifier. JWKS registration is lazy so a
// provider outage at boot does not prevent startup.
func NewJWKSVerifier(ctx context.Context, cfg VerifierConfig) (*JWKSVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("idp: issuer is required")
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("idp: create jwks cache: %w", err)
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}

	return &JWKSVerifier{
		issuer:       cfg.Issuer,
		clientID:     cfg.ClientID,
		jwksURL:      jwksURL,
		cache:        cache,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}, nil
}

// ensureRegistered registers the JWKS URL with the cache on first use.
func (v *JWKSVerifier) ensureRegistered(ctx context.Context) error {
	v.registerMu.Lock()
	defer v.registerMu.Unlock()

	if v.registered {
		return v.registerErr
	}

	regCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()

	if err := v.cache.Register(regCtx, v.jwksURL); err != nil {
		// Leave registered=false so the next validation retries; the
		// provider may just be briefly unreachable.
		return fmt.Errorf("%w: register: %v", errJWKSUnavailable, err)
	}

	v.registered = true
	v.registerErr = nil
	return nil
}

// keyFunc resolves the signing key for a parsed (unverified) token header.
func (v *JWKSVerifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token header missing kid")
		}

		lookupCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
		defer cancel()

		keySet, err := v.cache.Lookup(lookupCtx, v.jwksURL)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup: %v", errJWKSUnavailable, err)
		}

		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key id %q not found in jwks", kid)
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("export jwk: %w", err)
		}
		return raw, nil
	}
}

// Verify validates signature, issuer, audience/client binding, token_use and
// expiry, then decodes the claims. Error mapping is deliberately coarse:
// expired, malformed, or unavailable.
func (v *JWKSVerifier) Verify(ctx context.Context, accessToken string) (domain.Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return domain.Claims{}, ErrTokenMalformed
	}

	if err := v.ensureRegistered(ctx); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(accessToken, mapClaims, v.keyFunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, errJWKSUnavailable):
			return domain.Claims{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return domain.Claims{}, ErrTokenExpired
		default:
			// Bad signature, wrong alg, garbage input: all malformed from
			// the caller's point of view.
			return domain.Claims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	return v.claimsFrom(mapClaims, accessToken)
}

func (v *JWKSVerifier) claimsFrom(mapClaims jwt.MapClaims, raw string) (domain.Claims, error) {
	iss, err := mapClaims.GetIssuer()
	if err != nil || strings.TrimSpace(iss) != strings.TrimSuffix(v.issuer, "/") {
		return domain.Claims{}, fmt.Errorf("%w: issuer mismatch", ErrTokenMalformed)
	}

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return domain.Claims{}, fmt.Errorf("%w: missing sub", ErrTokenMalformed)
	}

	// Cognito access tokens carry the app client in client_id; id tokens
	// use aud. Accept either so the verifier also works against generic
	// OIDC providers.
	if v.clientID != "" && !v.boundToClient(mapClaims) {
		return domain.Claims{}, fmt.Errorf("%w: token not issued for this client", ErrTokenMalformed)
	}

	// Reject id/refresh tokens presented as access tokens.
	if use, ok := mapClaims["token_use"].(string); ok && use != "access" {
		return domain.Claims{}, fmt.Errorf("%w: token_use %q", ErrTokenMalformed, use)
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return domain.Claims{}, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}

	claims := domain.Claims{
		Subject:     sub,
		Roles:       stringSlice(mapClaims["cognito:groups"]),
		ExpiresAt:   exp.Time,
		Fingerprint: claimscache.Fingerprint(raw),
	}

	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if username, ok := mapClaims["username"].(string); ok {
		claims.Username = username
	} else if username, ok := mapClaims["cognito:username"].(string); ok {
		claims.Username = username
	}

	return claims, nil
}

func (v *JWKSVerifier) boundToClient(mapClaims jwt.MapClaims) bool {
	if clientID, ok := mapClaims["client_id"].(string); ok && clientID == v.clientID {
		return true
	}
	if auds, err := mapClaims.GetAudience(); err == nil {
		for _, aud := range auds {
			if aud == v.clientID {
				return true
			}
		}
	}
	return false
}

// stringSlice coerces a decoded JSON claim into []string, tolerating both
// []any and a single string.
func stringSlice(val any) []string {
	switch typed := val.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	default:
		return nil
	}
}
