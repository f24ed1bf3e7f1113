package rest

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	sgrest "github.com/sendgrid/rest"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/storage/kv"
)

// OnAuthStateChange registers fn for auth events. Events are delivered synchronously.
func (c *Client) OnAuthStateChange(fn func(event core.AuthEvent, sess *core.Session)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Client) emit(event core.AuthEvent, sess *core.Session) {
	c.subsMu.Lock()
	subs := make([]func(core.AuthEvent, *core.Session), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range subs {
		fn(event, copySession(sess))
	}
}

func copySession(sess *core.Session) *core.Session {
	if sess == nil {
		return nil
	}
	cp := *sess
	return &cp
}

// GetSession returns the persisted session as is, without refreshing it.
func (c *Client) GetSession(ctx context.Context) (*core.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return copySession(c.sess), nil
}

// load reads the persisted session once. c.mu must be held.
func (c *Client) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	raw, err := c.store.Get(ctx, c.key)
	switch {
	case err == kv.ErrNotFound:
		c.loaded = true
		return nil
	case err != nil:
		return errors.Wrap(err, "reading stored session")
	}

	var sess core.Session
	if err = json.Unmarshal([]byte(raw), &sess); err != nil || sess.AccessToken == "" || sess.RefreshToken == "" {
		// unusable data is dropped; the user signs in again
		c.logger.Warn("discarding malformed stored session", map[string]interface{}{"key": c.key})
		if err = c.store.Delete(ctx, c.key); err != nil {
			c.logger.Warn("removing stored session failed", err)
		}
		c.loaded = true
		return nil
	}
	c.sess = &sess
	c.loaded = true
	return nil
}

func (c *Client) save(ctx context.Context, sess *core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.sess = copySession(sess)
	if sess == nil {
		return errors.Wrap(c.store.Delete(ctx, c.key), "removing stored session")
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return errors.Wrap(c.store.Set(ctx, c.key, string(b)), "storing session")
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	sess, err := c.GetSession(ctx)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// RefreshSession exchanges the refresh token for a new session. Without a session it returns nil.
// A rejected refresh token drops the local session.
func (c *Client) RefreshSession(ctx context.Context) (*core.Session, error) {
	cur, err := c.GetSession(ctx)
	if err != nil || cur == nil {
		return nil, err
	}

	var sess core.Session
	err = c.do(ctx, request{
		method: sgrest.Post,
		path:   "/auth/v1/token",
		query:  map[string]string{"grant_type": "refresh_token"},
		body:   map[string]string{"refresh_token": cur.RefreshToken},
	}, &sess)
	if err != nil {
		if core.IsSessionFatal(err) {
			if sErr := c.save(ctx, nil); sErr != nil {
				c.logger.Warn("dropping rejected session failed", sErr)
			}
		}
		return nil, err
	}
	if err = c.save(ctx, &sess); err != nil {
		return nil, err
	}
	c.emit(core.EventTokenRefreshed, &sess)
	return copySession(&sess), nil
}

// GetUser fetches the user of the current session from the API.
func (c *Client) GetUser(ctx context.Context) (*core.SessionUser, error) {
	token, err := c.accessToken(ctx)
	if err != nil || token == "" {
		return nil, err
	}
	return c.fetchUser(ctx, token)
}

func (c *Client) fetchUser(ctx context.Context, token string) (*core.SessionUser, error) {
	var usr core.SessionUser
	if err := c.do(ctx, request{method: sgrest.Get, path: "/auth/v1/user", token: token}, &usr); err != nil {
		return nil, err
	}
	return &usr, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*core.Session, error) {
	var sess core.Session
	err := c.do(ctx, request{
		method: sgrest.Post,
		path:   "/auth/v1/token",
		query:  map[string]string{"grant_type": "password"},
		body:   map[string]string{"email": email, "password": password},
	}, &sess)
	if err != nil {
		return nil, err
	}
	return c.signedIn(ctx, &sess)
}

func (c *Client) signedIn(ctx context.Context, sess *core.Session) (*core.Session, error) {
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	c.emit(core.EventSignedIn, sess)
	return copySession(sess), nil
}

// SignUp creates an account. The session is nil when the email must be confirmed first.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*core.Session, error) {
	var query map[string]string
	if redirectTo != "" {
		query = map[string]string{"redirect_to": redirectTo}
	}
	var sess core.Session
	err := c.do(ctx, request{
		method: sgrest.Post,
		path:   "/auth/v1/signup",
		query:  query,
		body:   map[string]string{"email": email, "password": password},
	}, &sess)
	if err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return nil, nil
	}
	return c.signedIn(ctx, &sess)
}

// SignInWithOAuth returns the authorize URL of provider; the API redirects to redirectTo afterwards.
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	if provider == "" {
		return "", core.NewValidationError(errors.New("provider is required"))
	}
	q := make(url.Values)
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// SetSessionFromURL reads the session the API put in the fragment (or query) of callbackURL.
func (c *Client) SetSessionFromURL(ctx context.Context, callbackURL string) (*core.Session, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "parsing callback URL"))
	}
	params := u.Query()
	if u.Fragment != "" {
		if params, err = url.ParseQuery(u.Fragment); err != nil {
			return nil, core.NewValidationError(errors.Wrap(err, "parsing callback URL fragment"))
		}
	}

	if e := params.Get("error"); e != "" {
		code := params.Get("error_code")
		if code == "" {
			code = e
		}
		return nil, &core.BackendError{Code: code, Message: params.Get("error_description")}
	}
	accessToken, refreshToken := params.Get("access_token"), params.Get("refresh_token")
	if accessToken == "" || refreshToken == "" {
		return nil, core.NewValidationError(errors.New("callback URL carries no session"))
	}

	usr, err := c.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	sess := &core.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    params.Get("token_type"),
		User:         *usr,
	}
	sess.ExpiresIn, _ = strconv.ParseInt(params.Get("expires_in"), 10, 64)
	sess.ExpiresAt, _ = strconv.ParseInt(params.Get("expires_at"), 10, 64)
	if sess.ExpiresAt == 0 && sess.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Unix() + sess.ExpiresIn
	}
	return c.signedIn(ctx, sess)
}

// SignOut revokes the session remotely and always drops it locally.
func (c *Client) SignOut(ctx context.Context) error {
	sess, _ := c.GetSession(ctx)

	var remoteErr error
	if sess != nil {
		remoteErr = c.do(ctx, request{method: sgrest.Post, path: "/auth/v1/logout", token: sess.AccessToken}, nil)
		var bErr *core.BackendError
		// the token is already unusable
		if errors.As(remoteErr, &bErr) && bErr.Code == core.CodeInvalidJWT {
			remoteErr = nil
		}
	}

	if err := c.save(ctx, nil); err != nil {
		c.logger.Warn("removing stored session failed", err)
	}
	c.emit(core.EventSignedOut, nil)
	return remoteErr
}

// ResetPasswordForEmail asks the API to email a sign-in link to email. The link lands on
// redirectTo, whose URL SetSessionFromURL then reads.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query map[string]string
	if redirectTo != "" {
		query = map[string]string{"redirect_to": redirectTo}
	}
	return c.do(ctx, request{
		method: sgrest.Post,
		path:   "/auth/v1/recover",
		query:  query,
		body:   map[string]string{"email": email},
	}, nil)
}

// UserAttributes are the account fields UpdateUser may change; empty ones are left as is.
type UserAttributes struct {
	Password string
	FullName string
}

// UpdateUser changes the account of the current session.
func (c *Client) UpdateUser(ctx context.Context, attrs UserAttributes) (*core.SessionUser, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &core.BackendError{Code: core.CodeInvalidJWT, Message: "not signed in"}
	}

	body := map[string]interface{}{}
	if attrs.Password != "" {
		body["password"] = attrs.Password
	}
	if attrs.FullName != "" {
		body["data"] = map[string]string{"full_name": attrs.FullName}
	}
	var usr core.SessionUser
	if err = c.do(ctx, request{method: sgrest.Put, path: "/auth/v1/user", body: body, token: sess.AccessToken}, &usr); err != nil {
		return nil, err
	}

	sess.User = usr
	if err = c.save(ctx, sess); err != nil {
		return nil, err
	}
	c.emit(core.EventUserUpdated, sess)
	return &usr, nil
}
