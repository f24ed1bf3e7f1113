package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core/user"
)

// RoleAuthenticated is the only role access tokens carry.
const RoleAuthenticated = "authenticated"

// Claims represents the authorization claims transmitted via an access token.
type Claims struct {
	jwt.StandardClaims
	Email        string                 `json:"email,omitempty"`
	Role         string                 `json:"role,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

func (svc *Service) userClaims(usr user.User, now time.Time) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.opts.AppName,
			Subject:   usr.ID,
			Audience:  RoleAuthenticated,
			ExpiresAt: now.Add(svc.opts.AccessTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:        usr.Email,
		Role:         RoleAuthenticated,
		UserMetadata: usr.SessionUser().UserMetadata,
	}
}

// generateToken generates a signed JWT token string representing claims.
func (svc *Service) generateToken(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(svc.opts.SecretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// SigningKey verifies access tokens.
func (svc *Service) SigningKey() []byte {
	return svc.opts.SecretKey
}

// ParseAccessToken verifies token and returns its claims.
func (svc *Service) ParseAccessToken(token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return svc.opts.SecretKey, nil
	})
	if err != nil {
		return nil, ErrInvalidJWT
	}
	return claims, nil
}

// oauthState is the signed state round-tripped through the identity provider.
type oauthState struct {
	jwt.StandardClaims
	Provider   string `json:"provider"`
	RedirectTo string `json:"redirect_to,omitempty"`
}
