package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/user"
)

const stateTTL = 10 * time.Minute

var googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo" // mockable

// GoogleConfig returns the OAuth config of the google identity provider, or nil without credentials.
func GoogleConfig(clientID, clientSecret, callbackURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

func (svc *Service) providerConfig(provider string) (*oauth2.Config, error) {
	if provider == user.ProviderGoogle && svc.opts.Google != nil {
		return svc.opts.Google, nil
	}
	return nil, ErrUnsupportedProvider
}

// AuthorizeURL returns the provider consent page URL. Once the user has consented, the provider
// redirects to the callback endpoint, which ends up redirecting to redirectTo with the session.
func (svc *Service) AuthorizeURL(provider, redirectTo string) (string, error) {
	conf, err := svc.providerConfig(provider)
	if err != nil {
		return "", err
	}
	now := time.Now()
	state, err := svc.generateToken(&oauthState{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.opts.AppName,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(stateTTL).Unix(),
		},
		Provider:   provider,
		RedirectTo: redirectTo,
	})
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

func (svc *Service) parseState(state string) (*oauthState, error) {
	claims := new(oauthState)
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return svc.opts.SecretKey, nil
	})
	if err != nil {
		return nil, ErrInvalidOAuthState
	}
	return claims, nil
}

type providerUser struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// OAuthCallback exchanges the provider code for the user's identity and starts their session.
// It returns the redirect URL carried by state.
func (svc *Service) OAuthCallback(ctx context.Context, code, state string) (*core.Session, string, error) {
	st, err := svc.parseState(state)
	if err != nil {
		return nil, "", err
	}
	conf, err := svc.providerConfig(st.Provider)
	if err != nil {
		return nil, st.RedirectTo, err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, st.RedirectTo, &core.BackendError{
			Status: http.StatusBadRequest, Code: "bad_oauth_callback", Message: "OAuth code exchange failed",
		}
	}
	info, err := fetchUserInfo(ctx, conf.Client(ctx, tok))
	if err != nil {
		return nil, st.RedirectTo, err
	}
	if info.Email == "" || !info.EmailVerified {
		return nil, st.RedirectTo, &core.BackendError{
			Status: http.StatusBadRequest, Code: "email_not_verified", Message: "Provider did not return a verified email",
		}
	}

	usr, err := svc.users.GetOrCreateExternal(ctx, st.Provider, info.Email, info.Name)
	if err != nil {
		return nil, st.RedirectTo, errors.Wrap(err, "getting or creating user")
	}
	if !usr.IsActive {
		return nil, st.RedirectTo, ErrAccountDeactivated
	}
	if usr, err = svc.users.SetLastLogin(ctx, usr); err != nil {
		return nil, st.RedirectTo, errors.Wrap(err, "setting lastLogin")
	}
	sess, err := svc.issueSession(ctx, usr, "")
	return sess, st.RedirectTo, err
}

func fetchUserInfo(ctx context.Context, client *http.Client) (providerUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return providerUser{}, errors.Wrap(err, "building userinfo request")
	}
	res, err := client.Do(req)
	if err != nil {
		return providerUser{}, errors.Wrap(err, "fetching userinfo")
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return providerUser{}, errors.Errorf("fetching userinfo: status %d", res.StatusCode)
	}

	var info providerUser
	if err = json.NewDecoder(res.Body).Decode(&info); err != nil {
		return providerUser{}, errors.Wrap(err, "decoding userinfo")
	}
	return info, nil
}
