package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trezcool/studyplanner/core"
)

// State of the current session, as last observed by the Manager.
type State int

const (
	StateUnknown State = iota
	StateValid
	StateExpiredRefreshable
	StateInvalid
	StateAbsent
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpiredRefreshable:
		return "expired-refreshable"
	case StateInvalid:
		return "invalid"
	case StateAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

const DefaultRefreshTimeout = 30 * time.Second

// Storage is a client-side key/value store holding session artifacts.
type Storage = core.SessionStorage

type Options struct {
	// KeyPrefix is shared by every persisted session key.
	KeyPrefix string
	// ExpiryMargin defaults to DefaultExpiryMargin.
	ExpiryMargin time.Duration
	// RefreshTimeout defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration
	// Stores are scanned by ClearInvalidSession; typically a durable and a session-scoped one.
	Stores []Storage
}

// Manager is the single source of truth for "is there a currently usable session".
// It mediates token refresh and reclaims the client from a corrupted local session.
type Manager struct {
	auth   core.AuthService
	opts   Options
	logger core.Logger

	refreshGroup singleflight.Group

	mu    sync.RWMutex
	state State

	nowFunc func() time.Time // mockable
}

func NewManager(auth core.AuthService, logger core.Logger, opts Options) *Manager {
	if opts.ExpiryMargin <= 0 {
		opts.ExpiryMargin = DefaultExpiryMargin
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Manager{
		auth:    auth,
		opts:    opts,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// IsTokenExpired applies the Manager's expiry margin to token.
func (m *Manager) IsTokenExpired(token string) bool {
	return isTokenExpired(token, m.nowFunc(), m.opts.ExpiryMargin)
}

// GetValidSession returns the current session, refreshing it first when its access token
// is expired or about to expire. A nil session without error means there is no session.
func (m *Manager) GetValidSession(ctx context.Context) (*core.Session, error) {
	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		if IsRefreshTokenError(err) {
			m.setState(StateInvalid)
			m.ClearInvalidSession(ctx)
			return nil, err
		}
		m.logger.Warn("getting session failed", err)
		if sess == nil {
			return nil, err
		}
	}

	if sess == nil {
		m.setState(StateAbsent)
		return nil, err
	}

	if m.IsTokenExpired(sess.AccessToken) {
		m.logger.Info("access token expired, refreshing session")
		m.setState(StateExpiredRefreshable)
		return m.RefreshSession(ctx)
	}

	m.setState(StateValid)
	return sess, err
}

// RefreshSession renews the session. Concurrent callers share a single in-flight
// refresh and all observe its outcome. The refresh itself is detached from ctx and bounded
// by Options.RefreshTimeout, so a caller giving up does not fail the others.
func (m *Manager) RefreshSession(ctx context.Context) (*core.Session, error) {
	ch := m.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RefreshTimeout)
		defer cancel()
		return m.refresh(rctx)
	})
	select {
	case res := <-ch:
		sess, _ := res.Val.(*core.Session)
		return sess, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) (*core.Session, error) {
	sess, err := m.auth.RefreshSession(ctx)
	if err != nil {
		m.logger.Error("session refresh failed", err)
		if IsRefreshTokenError(err) {
			m.setState(StateInvalid)
			m.ClearInvalidSession(ctx)
			return nil, err
		}
		return sess, err
	}
	if sess == nil {
		m.setState(StateAbsent)
		return nil, nil
	}
	m.setState(StateValid)
	return sess, nil
}

// ValidateSession reports whether a session currently exists.
func (m *Manager) ValidateSession(ctx context.Context) bool {
	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		if IsRefreshTokenError(err) {
			m.setState(StateInvalid)
			m.ClearInvalidSession(ctx)
		} else {
			m.logger.Warn("session validation failed", err)
		}
		return false
	}
	if sess == nil {
		m.setState(StateAbsent)
		return false
	}
	m.setState(StateValid)
	return true
}

// ClearInvalidSession removes every persisted session key from the stores and forces a sign-out.
// It is idempotent and never fails: problems are only logged.
func (m *Manager) ClearInvalidSession(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("clearing session panicked", fmt.Errorf("%v", r))
		}
	}()

	m.logger.Info("clearing invalid session data")
	m.ClearStorage(ctx)

	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Warn("forced sign-out failed", err)
	}
	m.setState(StateAbsent)
}

// ClearStorage removes the prefixed session keys from every store.
func (m *Manager) ClearStorage(ctx context.Context) {
	for _, st := range m.opts.Stores {
		keys, err := st.Keys(ctx, m.opts.KeyPrefix)
		if err != nil {
			m.logger.Warn("listing session keys failed", err)
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if err = st.Delete(ctx, keys...); err != nil {
			m.logger.Warn("removing session keys failed", err)
		}
	}
}
