package service

import (
	"context"
	"errors"
	"time"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/idp"
	"github.com/inkwellhq/inkwell/internal/api/store"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// UserService fronts the provider's user-management flows and keeps the
// local profile mirror in sync. The provider remains the source of truth
// for identity; the mirror only exists so documents can reference owners.
type UserService struct {
	Provider idp.Provider
	Tokens   *TokenService
	Store    store.Store
}

// SignUp registers a user with the provider and seeds the local mirror. The
// account is unusable until confirmed.
func (s *UserService) SignUp(ctx context.Context, params idp.SignUpParams) (string, error) {
	subject, err := retryOnce(ctx, func() (string, error) {
		return s.Provider.SignUp(ctx, params)
	})
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	mirror := domain.User{
		Subject:   subject,
		Username:  params.Username,
		Email:     params.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Users().UpsertUser(ctx, mirror); err != nil {
		// The provider-side account exists; the mirror catches up on first login.
		slogx.FromContext(ctx).Warn("profile mirror seed failed", "subject", subject, "err", err)
	}

	return subject, nil
}

func (s *UserService) ConfirmSignUp(ctx context.Context, username, code string) error {
	return s.Provider.ConfirmSignUp(ctx, username, code)
}

func (s *UserService) ResendConfirmationCode(ctx context.Context, username string) error {
	return s.Provider.ResendConfirmationCode(ctx, username)
}

// ChangePassword acts on the caller's own session token.
func (s *UserService) ChangePassword(ctx context.Context, accessToken, previous, proposed string) error {
	return s.Provider.ChangePassword(ctx, accessToken, previous, proposed)
}

func (s *UserService) ForgotPassword(ctx context.Context, username string) error {
	return s.Provider.ForgotPassword(ctx, username)
}

func (s *UserService) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	return s.Provider.ConfirmForgotPassword(ctx, username, code, newPassword)
}

// UpdateAttributes forwards attribute changes to the provider and refreshes
// the mirrored email when it is among them.
func (s *UserService) UpdateAttributes(ctx context.Context, claims domain.Claims, accessToken string, attrs []domain.Attribute) error {
	if err := s.Provider.UpdateUserAttributes(ctx, accessToken, attrs); err != nil {
		return err
	}

	for _, attr := range attrs {
		if attr.Name != "email" {
			continue
		}
		u, err := s.Store.Users().GetUserBySubject(ctx, claims.Subject)
		if errors.Is(err, store.ErrNotFound) {
			u = domain.User{
				Subject:   claims.Subject,
				Username:  claims.Username,
				CreatedAt: time.Now().UTC(),
			}
		} else if err != nil {
			return nil // provider update succeeded; mirror refresh is best-effort
		}
		u.Email = attr.Value
		if err := s.Store.Users().UpsertUser(ctx, u); err != nil {
			slogx.FromContext(ctx).Warn("profile mirror refresh failed", "subject", claims.Subject, "err", err)
		}
	}
	return nil
}

// Me returns the caller's profile. A missing mirror row is created from the
// claims so a first login after out-of-band registration still resolves.
func (s *UserService) Me(ctx context.Context, claims domain.Claims) (domain.User, error) {
	u, err := s.Store.Users().GetUserBySubject(ctx, claims.Subject)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u = domain.User{
		Subject:   claims.Subject,
		Username:  claims.Username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Users().UpsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// SignOut revokes the caller's tokens and evicts locally cached claims.
func (s *UserService) SignOut(ctx context.Context, accessToken, refreshToken string) {
	s.Tokens.Revoke(ctx, accessToken, refreshToken)
}

// DisableUser is an administrative action; the router gates it on role.
func (s *UserService) DisableUser(ctx context.Context, username string) error {
	return s.Provider.DisableUser(ctx, username)
}

// DeleteUser removes the account at the provider and the local mirror (with
// its documents, by cascade). Administrative action.
func (s *UserService) DeleteUser(ctx context.Context, username string) error {
	if err := s.Provider.DeleteUser(ctx, username); err != nil {
		return err
	}

	mirror, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.Store.Users().DeleteUser(ctx, mirror.Subject); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}
