package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core"
)

// UserChangeFunc is called whenever the authenticated user identity changes (nil on sign-out).
type UserChangeFunc func(ctx context.Context, usr *core.SessionUser)

// Authenticator keeps the current session and user in sync with the auth backend,
// by observing its auth events instead of polling.
type Authenticator struct {
	auth    core.AuthService
	tables  core.TableService
	manager *Manager
	logger  core.Logger

	mu          sync.RWMutex
	ctx         context.Context
	sess        *core.Session
	usr         *core.SessionUser
	listeners   []UserChangeFunc
	unsubscribe func()
}

func NewAuthenticator(auth core.AuthService, tables core.TableService, manager *Manager, logger core.Logger) *Authenticator {
	return &Authenticator{
		auth:    auth,
		tables:  tables,
		manager: manager,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// OnUserChange registers fn; it must be called before Start to observe the initial user.
func (a *Authenticator) OnUserChange(fn UserChangeFunc) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Start restores the persisted session (if any) and starts listening to auth events.
func (a *Authenticator) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	sess, err := a.manager.GetValidSession(ctx)
	if err != nil {
		a.logger.Error("session initialization failed", err)
	}
	a.setSession(ctx, sess)
	if sess != nil {
		a.upsertProfile(ctx, sess.User)
	}

	unsubscribe := a.auth.OnAuthStateChange(a.handleAuthEvent)
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
	return err
}

// Stop stops listening to auth events.
func (a *Authenticator) Stop() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (a *Authenticator) handleAuthEvent(event core.AuthEvent, sess *core.Session) {
	a.mu.RLock()
	ctx := a.ctx
	a.mu.RUnlock()

	a.logger.Debug("auth state changed", map[string]interface{}{"event": string(event)})
	switch {
	case event == core.EventSignedOut:
		a.manager.ClearStorage(ctx)
		a.setSession(ctx, nil)
	case sess != nil:
		a.setSession(ctx, sess)
		if event == core.EventSignedIn {
			a.upsertProfile(ctx, sess.User)
		}
	}
}

func (a *Authenticator) setSession(ctx context.Context, sess *core.Session) {
	a.mu.Lock()
	var prevID, newID string
	if a.usr != nil {
		prevID = a.usr.ID
	}
	a.sess = sess
	if sess != nil {
		usr := sess.User
		a.usr = &usr
		newID = usr.ID
	} else {
		a.usr = nil
	}
	usr := a.usr
	listeners := make([]UserChangeFunc, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	if prevID == newID {
		return
	}
	for _, fn := range listeners {
		fn(ctx, usr)
	}
}

// upsertProfile keeps the profiles row in sync with the auth user. Failures never block auth.
func (a *Authenticator) upsertProfile(ctx context.Context, usr core.SessionUser) {
	_, err := a.tables.Upsert(ctx, core.TableProfiles, core.Row{
		"id":         usr.ID,
		"email":      usr.Email,
		"full_name":  usr.FullName(),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		a.logger.Warn("profile upsert failed", err, usr)
	}
}

func (a *Authenticator) Session() *core.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sess
}

func (a *Authenticator) User() *core.SessionUser {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.usr
}

func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	sess, err := a.auth.SignInWithPassword(ctx, core.CleanString(email, true /* lower */), password)
	if err != nil {
		return nil, errors.Wrap(err, "signing in")
	}
	a.setSession(ctx, sess)
	return sess, nil
}

// SignUp creates an account. The returned session is nil when the backend requires email confirmation;
// the confirmation link then leads to redirectTo.
func (a *Authenticator) SignUp(ctx context.Context, email, password, redirectTo string) (*core.Session, error) {
	sess, err := a.auth.SignUp(ctx, core.CleanString(email, true /* lower */), password, redirectTo)
	if err != nil {
		return nil, errors.Wrap(err, "signing up")
	}
	if sess != nil {
		a.setSession(ctx, sess)
	}
	return sess, nil
}

// SignInWithOAuth returns the URL the user must open to sign in with provider.
func (a *Authenticator) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	u, err := a.auth.SignInWithOAuth(ctx, provider, redirectTo)
	return u, errors.Wrap(err, "starting oauth sign in")
}

// CompleteSignIn finishes a redirect based sign-in from the URL the user landed on.
func (a *Authenticator) CompleteSignIn(ctx context.Context, callbackURL string) (*core.Session, error) {
	sess, err := a.auth.SetSessionFromURL(ctx, callbackURL)
	if err != nil {
		return nil, errors.Wrap(err, "completing sign in")
	}
	a.setSession(ctx, sess)
	return sess, nil
}

func (a *Authenticator) SignOut(ctx context.Context) error {
	err := a.auth.SignOut(ctx)
	a.manager.ClearStorage(ctx)
	a.setSession(ctx, nil)
	return errors.Wrap(err, "signing out")
}
