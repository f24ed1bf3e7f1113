package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/trezcool/studyplanner/core"
)

// fakeAuth is a scriptable core.AuthService.
type fakeAuth struct {
	mu sync.Mutex

	sess       *core.Session
	getErr     error
	refreshed  *core.Session
	refreshErr error

	refreshCalls int32
	signOutCalls int32
	refreshGate  chan struct{} // when set, RefreshSession blocks until it is closed
	refreshEnter chan struct{} // signalled when RefreshSession is entered

	listeners []func(core.AuthEvent, *core.Session)
}

var _ core.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) GetSession(context.Context) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.getErr
}

func (f *fakeAuth) RefreshSession(ctx context.Context) (*core.Session, error) {
	atomic.AddInt32(&f.refreshCalls, 1)
	if f.refreshEnter != nil {
		f.refreshEnter <- struct{}{}
	}
	if f.refreshGate != nil {
		select {
		case <-f.refreshGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	f.sess = f.refreshed
	return f.refreshed, nil
}

func (f *fakeAuth) GetUser(context.Context) (*core.SessionUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return nil, nil
	}
	usr := f.sess.User
	return &usr, nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*core.Session, error) {
	f.mu.Lock()
	sess := &core.Session{AccessToken: "tok", User: core.SessionUser{ID: "id-" + email, Email: email}}
	f.sess = sess
	f.mu.Unlock()
	f.emit(core.EventSignedIn, sess)
	return sess, nil
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password, _ string) (*core.Session, error) {
	return f.SignInWithPassword(ctx, email, password)
}

func (f *fakeAuth) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	return "https://auth.test/authorize?provider=" + provider + "&redirect_to=" + redirectTo, nil
}

func (f *fakeAuth) SetSessionFromURL(ctx context.Context, _ string) (*core.Session, error) {
	return f.SignInWithPassword(ctx, "oauth@test.cd", "")
}

func (f *fakeAuth) SignOut(context.Context) error {
	atomic.AddInt32(&f.signOutCalls, 1)
	f.mu.Lock()
	f.sess = nil
	f.mu.Unlock()
	f.emit(core.EventSignedOut, nil)
	return nil
}

func (f *fakeAuth) OnAuthStateChange(fn func(core.AuthEvent, *core.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	idx := len(f.listeners) - 1
	return func() {
		f.mu.Lock()
		f.listeners[idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeAuth) emit(event core.AuthEvent, sess *core.Session) {
	f.mu.Lock()
	listeners := append([]func(core.AuthEvent, *core.Session){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(event, sess)
		}
	}
}

// fakeTables records profile upserts.
type fakeTables struct {
	mu       sync.Mutex
	upserts  []core.Row
	upsertOK bool
}

func (f *fakeTables) Select(context.Context, string, core.Query) ([]core.Row, error) { return nil, nil }
func (f *fakeTables) Insert(_ context.Context, _ string, row core.Row) (core.Row, error) {
	return row, nil
}
func (f *fakeTables) Update(context.Context, string, core.Filter, core.Row) error { return nil }
func (f *fakeTables) Delete(context.Context, string, core.Filter) error           { return nil }
func (f *fakeTables) Upsert(_ context.Context, table string, row core.Row) (core.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, row)
	if !f.upsertOK {
		return nil, &core.BackendError{Status: 403, Message: "permission denied for table profiles"}
	}
	return row, nil
}

// failingStorage fails every operation.
type failingStorage struct{}

func (failingStorage) Keys(context.Context, string) ([]string, error) {
	return nil, &core.BackendError{Message: "storage unavailable"}
}
func (failingStorage) Delete(context.Context, ...string) error {
	return &core.BackendError{Message: "storage unavailable"}
}
