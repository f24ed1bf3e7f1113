// Package auth issues and renews the sessions handed to planner clients.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/mail"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/user"
)

var (
	// errors
	ErrTokenNotFound = errors.New("refresh token not found")

	ErrInvalidCredentials = &core.BackendError{
		Status: http.StatusBadRequest, Code: core.CodeInvalidCredentials, Message: "Invalid login credentials",
	}
	ErrEmailNotConfirmed = &core.BackendError{
		Status: http.StatusBadRequest, Code: core.CodeEmailNotConfirmed, Message: "Email not confirmed",
	}
	ErrAccountDeactivated = &core.BackendError{
		Status: http.StatusForbidden, Code: "user_banned", Message: "User is banned",
	}
	ErrRefreshTokenNotFound = &core.BackendError{
		Status: http.StatusBadRequest, Code: core.CodeRefreshTokenNotFound, Message: "Invalid Refresh Token: Refresh Token Not Found",
	}
	ErrRefreshTokenReused = &core.BackendError{
		Status: http.StatusBadRequest, Code: core.CodeInvalidRefreshToken, Message: "Invalid Refresh Token: Already Used",
	}
	ErrRefreshTokenExpired = &core.BackendError{
		Status: http.StatusBadRequest, Code: core.CodeInvalidRefreshToken, Message: "Invalid Refresh Token: Expired",
	}
	ErrInvalidJWT = &core.BackendError{
		Status: http.StatusUnauthorized, Code: core.CodeInvalidJWT, Message: "invalid JWT: unable to parse or verify signature",
	}
	ErrInvalidConfirmation = &core.BackendError{
		Status: http.StatusForbidden, Code: "otp_expired", Message: "Email link is invalid or has expired",
	}
	ErrUnsupportedProvider = &core.BackendError{
		Status: http.StatusBadRequest, Code: "validation_failed", Message: "Unsupported provider: provider is not enabled",
	}
	ErrInvalidOAuthState = &core.BackendError{
		Status: http.StatusBadRequest, Code: "bad_oauth_state", Message: "OAuth state parameter is invalid",
	}
)

type (
	RefreshToken struct {
		Token     string
		UserID    string
		Parent    string // token this one was rotated from
		Revoked   bool
		CreatedAt time.Time
		ExpiresAt time.Time
	}

	TokenRepository interface {
		CreateRefreshToken(ctx context.Context, rt RefreshToken) error
		// GetRefreshToken fails with ErrTokenNotFound.
		GetRefreshToken(ctx context.Context, token string) (RefreshToken, error)
		// RevokeRefreshToken revokes token and reports whether this call did it.
		RevokeRefreshToken(ctx context.Context, token string) (bool, error)
		RevokeUserTokens(ctx context.Context, usrID string) error
	}

	Options struct {
		AppName     string
		SecretKey   []byte
		ExternalURL string // base URL of the API, for emailed links
		AccessTTL   time.Duration
		RefreshTTL  time.Duration
		// RequireEmailConfirmation withholds the session on sign-up until the emailed link is followed.
		RequireEmailConfirmation bool
		ConfirmTTL               time.Duration
		// Google enables the google identity provider when set.
		Google *oauth2.Config
	}

	Service struct {
		users    *user.Service
		tokens   TokenRepository
		mailer   core.EmailService
		tokenGen *user.TokenGenerator
		logger   core.Logger
		opts     Options
	}
)

func NewService(users *user.Service, tokens TokenRepository, mailer core.EmailService, logger core.Logger, opts Options) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.ConfirmTTL <= 0 {
		opts.ConfirmTTL = 3 * 24 * time.Hour
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		tokenGen: user.NewTokenGenerator(string(opts.SecretKey), opts.ConfirmTTL),
		logger:   logger,
		opts:     opts,
	}
}

// SignUp creates an email/password account. The session is nil while the email awaits confirmation.
func (svc *Service) SignUp(ctx context.Context, nu user.NewUser, redirectTo string) (*core.Session, user.User, error) {
	if err := nu.Validate(svc.users); err != nil {
		return nil, user.User{}, err
	}
	usr, err := svc.users.Create(ctx, nu, !svc.opts.RequireEmailConfirmation)
	if err != nil {
		return nil, user.User{}, errors.Wrap(err, "creating user")
	}

	if svc.opts.RequireEmailConfirmation {
		svc.sendConfirmation(usr, redirectTo)
		return nil, usr, nil
	}
	sess, err := svc.issueSession(ctx, usr, "")
	return sess, usr, err
}

func (svc *Service) sendConfirmation(usr user.User, redirectTo string) {
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Confirm your email",
		TemplateName: "confirm_signup",
		TemplateData: map[string]interface{}{
			"ConfirmURL": svc.verifyURL(usr, VerifySignUp, redirectTo),
			"ValidDays":  svc.tokenGen.ValidDays(),
		},
	})
}

// verifyURL is the emailed link of the verify endpoint.
func (svc *Service) verifyURL(usr user.User, typ, redirectTo string) string {
	q := make(url.Values)
	q.Set("uid", user.EncodeUID(usr))
	q.Set("token", svc.tokenGen.MakeToken(usr))
	q.Set("type", typ)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return svc.opts.ExternalURL + "/auth/v1/verify?" + q.Encode()
}

// Verify follows an emailed link: it confirms the email of the User identified by uid and starts
// its session. Links are single use.
func (svc *Service) Verify(ctx context.Context, uid, token string) (*core.Session, error) {
	id, err := user.DecodeUID(uid)
	if err != nil {
		return nil, ErrInvalidConfirmation
	}
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, ErrInvalidConfirmation
		}
		return nil, errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.VerifyToken(usr, token); err != nil {
		return nil, ErrInvalidConfirmation
	}
	if !usr.IsActive {
		return nil, ErrAccountDeactivated
	}
	if usr, err = svc.users.Confirm(ctx, usr); err != nil {
		return nil, errors.Wrap(err, "confirming user")
	}
	if usr, err = svc.users.SetLastLogin(ctx, usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return svc.issueSession(ctx, usr, "")
}

// PasswordGrant authenticates with email and password.
func (svc *Service) PasswordGrant(ctx context.Context, email, pwd string) (*core.Session, error) {
	usr, err := svc.users.GetByEmail(ctx, email)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return nil, ErrAccountDeactivated
	}
	if !usr.IsConfirmed() {
		return nil, ErrEmailNotConfirmed
	}
	if usr, err = svc.users.SetLastLogin(ctx, usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return svc.issueSession(ctx, usr, "")
}

// RefreshGrant rotates refreshToken: it is revoked and a new pair is issued. Presenting a revoked
// token revokes every token of its owner.
func (svc *Service) RefreshGrant(ctx context.Context, refreshToken string) (*core.Session, error) {
	rt, err := svc.tokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if err == ErrTokenNotFound {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, errors.Wrap(err, "finding refresh token")
	}
	if rt.Revoked {
		return nil, svc.refreshTokenReused(ctx, rt)
	}
	if core.NowUTC().After(rt.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	revoked, err := svc.tokens.RevokeRefreshToken(ctx, rt.Token)
	if err != nil {
		return nil, errors.Wrap(err, "revoking refresh token")
	}
	if !revoked { // lost a race against another refresh
		return nil, svc.refreshTokenReused(ctx, rt)
	}

	usr, err := svc.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if err == user.ErrNotFound {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return nil, ErrAccountDeactivated
	}
	return svc.issueSession(ctx, usr, rt.Token)
}

func (svc *Service) refreshTokenReused(ctx context.Context, rt RefreshToken) error {
	svc.logger.Warn("refresh token reused; revoking the user's sessions", map[string]interface{}{"user_id": rt.UserID})
	if err := svc.tokens.RevokeUserTokens(ctx, rt.UserID); err != nil {
		return errors.Wrap(err, "revoking user tokens")
	}
	return ErrRefreshTokenReused
}

// SignOut revokes every refresh token of usrID. Access tokens stay valid until they expire.
func (svc *Service) SignOut(ctx context.Context, usrID string) error {
	return errors.Wrap(svc.tokens.RevokeUserTokens(ctx, usrID), "revoking user tokens")
}

// GetUser returns the active User a token was issued to.
func (svc *Service) GetUser(ctx context.Context, usrID string) (user.User, error) {
	usr, err := svc.users.GetByID(ctx, usrID)
	if err != nil {
		if err == user.ErrNotFound {
			return user.User{}, ErrInvalidJWT
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, ErrAccountDeactivated
	}
	return usr, nil
}

func (svc *Service) issueSession(ctx context.Context, usr user.User, parent string) (*core.Session, error) {
	now := core.NowUTC()
	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	rt := RefreshToken{
		Token:     refresh,
		UserID:    usr.ID,
		Parent:    parent,
		CreatedAt: now,
		ExpiresAt: now.Add(svc.opts.RefreshTTL),
	}
	if err = svc.tokens.CreateRefreshToken(ctx, rt); err != nil {
		return nil, errors.Wrap(err, "saving refresh token")
	}

	claims := svc.userClaims(usr, now)
	access, err := svc.generateToken(claims)
	if err != nil {
		return nil, err
	}
	return &core.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(svc.opts.AccessTTL / time.Second),
		ExpiresAt:    claims.ExpiresAt,
		User:         usr.SessionUser(),
	}, nil
}

func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generating refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
