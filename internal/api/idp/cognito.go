package idp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

// cognitoAPI is the slice of the Cognito client this package needs. Tests
// substitute a fake.
type cognitoAPI interface {
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, opts ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	GlobalSignOut(ctx context.Context, in *cip.GlobalSignOutInput, opts ...func(*cip.Options)) (*cip.GlobalSignOutOutput, error)
	RevokeToken(ctx context.Context, in *cip.RevokeTokenInput, opts ...func(*cip.Options)) (*cip.RevokeTokenOutput, error)
	SignUp(ctx context.Context, in *cip.SignUpInput, opts ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, opts ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, opts ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	ChangePassword(ctx context.Context, in *cip.ChangePasswordInput, opts ...func(*cip.Options)) (*cip.ChangePasswordOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, opts ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, opts ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	UpdateUserAttributes(ctx context.Context, in *cip.UpdateUserAttributesInput, opts ...func(*cip.Options)) (*cip.UpdateUserAttributesOutput, error)
	AdminDisableUser(ctx context.Context, in *cip.AdminDisableUserInput, opts ...func(*cip.Options)) (*cip.AdminDisableUserOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, opts ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
}

// CognitoConfig configures the Cognito-backed Provider.
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string // optional; required for confidential app clients

	// Timeout bounds every provider call so a stalled network path surfaces
	// ErrUnavailable instead of hanging the requesting unit.
	Timeout time.Duration
}

// Cognito implements Provider against an AWS Cognito user pool.
type Cognito struct {
	api          cognitoAPI
	userPoolID   string
	clientID     string
	clientSecret string
	timeout      time.Duration
	now          func() time.Time
}

// NewCognito builds a Cognito provider using the default AWS credential
// chain for the configured region.
func NewCognito(ctx context.Context, cfg CognitoConfig) (*Cognito, error) {
	if cfg.UserPoolID == "" || cfg.ClientID == "" {
		return nil, errors.New("idp: user pool id and client id are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("idp: load aws config: %w", err)
	}

	return newCognito(cip.NewFromConfig(awsCfg), cfg), nil
}

func newCognito(api cognitoAPI, cfg CognitoConfig) *Cognito {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Cognito{
		api:          api,
		userPoolID:   cfg.UserPoolID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		timeout:      timeout,
		now:          time.Now,
	}
}

// secretHash computes the SECRET_HASH parameter confidential app clients
// must send: base64(HMAC-SHA256(username + clientID, clientSecret)).
func (p *Cognito) secretHash(username string) string {
	if p.clientSecret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(p.clientSecret))
	mac.Write([]byte(username + p.clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (p *Cognito) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Cognito) Authenticate(ctx context.Context, username, password string) (domain.TokenSet, error) {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	params := map[string]string{
		"USERNAME": username,
		"PASSWORD": password,
	}
	if h := p.secretHash(username); h != "" {
		params["SECRET_HASH"] = h
	}

	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(p.clientID),
		AuthParameters: params,
	})
	if err != nil {
		return domain.TokenSet{}, mapCognitoError(err)
	}
	if out.AuthenticationResult == nil {
		// A pending challenge (MFA, forced password change) has no token
		// set; the provider owns that flow, we just report the failure.
		return domain.TokenSet{}, fmt.Errorf("%w: authentication challenge not supported", ErrInvalidCredentials)
	}

	return p.tokenSet(out.AuthenticationResult), nil
}

func (p *Cognito) Refresh(ctx context.Context, refreshToken string) (domain.TokenSet, error) {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	out, err := p.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		err = mapCognitoError(err)
		if errors.Is(err, ErrInvalidCredentials) {
			// On the refresh path a NotAuthorized answer means the refresh
			// token itself is revoked or expired.
			return domain.TokenSet{}, ErrInvalidRefreshToken
		}
		return domain.TokenSet{}, err
	}
	if out.AuthenticationResult == nil {
		return domain.TokenSet{}, ErrInvalidRefreshToken
	}

	return p.tokenSet(out.AuthenticationResult), nil
}

func (p *Cognito) SignOut(ctx context.Context, accessToken string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	_, err := p.api.GlobalSignOut(ctx, &cip.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	in := &cip.RevokeTokenInput{
		ClientId: aws.String(p.clientID),
		Token:    aws.String(refreshToken),
	}
	if p.clientSecret != "" {
		in.ClientSecret = aws.String(p.clientSecret)
	}

	if _, err := p.api.RevokeToken(ctx, in); err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) SignUp(ctx context.Context, params SignUpParams) (string, error) {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	attrs := []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String(params.Email)},
	}
	for name, value := range map[string]string{
		"phone_number": params.PhoneNumber,
		"given_name":   params.GivenName,
		"family_name":  params.FamilyName,
	} {
		if value != "" {
			attrs = append(attrs, types.AttributeType{Name: aws.String(name), Value: aws.String(value)})
		}
	}

	in := &cip.SignUpInput{
		ClientId:       aws.String(p.clientID),
		Username:       aws.String(params.Username),
		Password:       aws.String(params.Password),
		UserAttributes: attrs,
	}
	if h := p.secretHash(params.Username); h != "" {
		in.SecretHash = aws.String(h)
	}

	out, err := p.api.SignUp(ctx, in)
	if err != nil {
		return "", mapCognitoError(err)
	}
	return aws.ToString(out.UserSub), nil
}

func (p *Cognito) ConfirmSignUp(ctx context.Context, username, code string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	in := &cip.ConfirmSignUpInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
	}
	if h := p.secretHash(username); h != "" {
		in.SecretHash = aws.String(h)
	}

	if _, err := p.api.ConfirmSignUp(ctx, in); err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) ResendConfirmationCode(ctx context.Context, username string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	in := &cip.ResendConfirmationCodeInput{
		ClientId: aws.String(p.clientID),
		Username: aws.String(username),
	}
	if h := p.secretHash(username); h != "" {
		in.SecretHash = aws.String(h)
	}

	if _, err := p.api.ResendConfirmationCode(ctx, in); err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) ChangePassword(ctx context.Context, accessToken, previous, proposed string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	_, err := p.api.ChangePassword(ctx, &cip.ChangePasswordInput{
		AccessToken:      aws.String(accessToken),
		PreviousPassword: aws.String(previous),
		ProposedPassword: aws.String(proposed),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) ForgotPassword(ctx context.Context, username string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	in := &cip.ForgotPasswordInput{
		ClientId: aws.String(p.clientID),
		Username: aws.String(username),
	}
	if h := p.secretHash(username); h != "" {
		in.SecretHash = aws.String(h)
	}

	if _, err := p.api.ForgotPassword(ctx, in); err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) ConfirmForgotPassword(ctx context.Context, username, code, newPassword string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	in := &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
	}
	if h := p.secretHash(username); h != "" {
		in.SecretHash = aws.String(h)
	}

	if _, err := p.api.ConfirmForgotPassword(ctx, in); err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) UpdateUserAttributes(ctx context.Context, accessToken string, attrs []domain.Attribute) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	userAttrs := make([]types.AttributeType, 0, len(attrs))
	for _, a := range attrs {
		userAttrs = append(userAttrs, types.AttributeType{
			Name:  aws.String(a.Name),
			Value: aws.String(a.Value),
		})
	}

	_, err := p.api.UpdateUserAttributes(ctx, &cip.UpdateUserAttributesInput{
		AccessToken:    aws.String(accessToken),
		UserAttributes: userAttrs,
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) DisableUser(ctx context.Context, username string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	_, err := p.api.AdminDisableUser(ctx, &cip.AdminDisableUserInput{
		UserPoolId: aws.String(p.userPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) DeleteUser(ctx context.Context, username string) error {
	ctx, cancel := p.callCtx(ctx)
	defer cancel()

	_, err := p.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(p.userPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func (p *Cognito) tokenSet(result *types.AuthenticationResultType) domain.TokenSet {
	return domain.TokenSet{
		AccessToken:  aws.ToString(result.AccessToken),
		RefreshToken: aws.ToString(result.RefreshToken),
		IDToken:      aws.ToString(result.IdToken),
		TokenType:    aws.ToString(result.TokenType),
		ExpiresAt:    p.now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
}

// mapCognitoError collapses the provider's typed exceptions into the
// package taxonomy. UserNotFound deliberately maps to invalid credentials so
// callers cannot probe for account existence.
func mapCognitoError(err error) error {
	var (
		notAuthorized    *types.NotAuthorizedException
		userNotFound     *types.UserNotFoundException
		userNotConfirmed *types.UserNotConfirmedException
		usernameExists   *types.UsernameExistsException
		codeMismatch     *types.CodeMismatchException
		expiredCode      *types.ExpiredCodeException
		invalidPassword  *types.InvalidPasswordException
		tooManyRequests  *types.TooManyRequestsException
		limitExceeded    *types.LimitExceededException
		internalError    *types.InternalErrorException
	)

	switch {
	case errors.As(err, &notAuthorized), errors.As(err, &userNotFound):
		return ErrInvalidCredentials
	case errors.As(err, &userNotConfirmed):
		return ErrUserNotConfirmed
	case errors.As(err, &usernameExists):
		return ErrUserExists
	case errors.As(err, &codeMismatch), errors.As(err, &expiredCode):
		return ErrCodeMismatch
	case errors.As(err, &invalidPassword):
		return ErrInvalidPassword
	case errors.As(err, &tooManyRequests), errors.As(err, &limitExceeded), errors.As(err, &internalError):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		// Transport failures and unknown service errors are treated as a
		// provider outage, which the token service retries once.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
