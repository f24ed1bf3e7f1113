package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyplanner/core"
	logsvc "github.com/trezcool/studyplanner/services/logger"
	"github.com/trezcool/studyplanner/storage/kv"
	"github.com/trezcool/studyplanner/tests"
)

const keyPrefix = "planner.auth"

type managerFixture struct {
	auth     *fakeAuth
	durable  *kv.Memory
	volatile *kv.Memory
	manager  *Manager
}

func setup(t *testing.T, stores ...Storage) *managerFixture {
	ctx := context.Background()
	f := &managerFixture{
		auth:     &fakeAuth{},
		durable:  kv.NewMemory(),
		volatile: kv.NewMemory(),
	}
	for _, st := range []*kv.Memory{f.durable, f.volatile} {
		require.NoError(t, st.Set(ctx, keyPrefix+".token", "{}"))
		require.NoError(t, st.Set(ctx, keyPrefix+".provider-token", "x"))
		require.NoError(t, st.Set(ctx, "theme", "dark"))
	}
	if len(stores) == 0 {
		stores = []Storage{f.durable, f.volatile}
	}
	f.manager = NewManager(f.auth, logsvc.NewDiscardLogger(), Options{KeyPrefix: keyPrefix, Stores: stores})
	return f
}

func (f *managerFixture) sessionKeys(t *testing.T) []string {
	var keys []string
	for _, st := range []*kv.Memory{f.durable, f.volatile} {
		k, err := st.Keys(context.Background(), keyPrefix)
		require.NoError(t, err)
		keys = append(keys, k...)
	}
	return keys
}

func TestManager_GetValidSession(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		f := setup(t)
		sess, err := f.manager.GetValidSession(ctx)
		assert.NoError(t, err)
		assert.Nil(t, sess)
		assert.Equal(t, StateAbsent, f.manager.State())
		assert.EqualValues(t, 0, f.auth.refreshCalls)
	})

	t.Run("valid session is returned unchanged", func(t *testing.T) {
		f := setup(t)
		f.auth.sess = testutil.Session(t, "u1", time.Now().Add(time.Hour))
		sess, err := f.manager.GetValidSession(ctx)
		require.NoError(t, err)
		assert.Same(t, f.auth.sess, sess)
		assert.Equal(t, StateValid, f.manager.State())
		assert.EqualValues(t, 0, f.auth.refreshCalls)
	})

	t.Run("near expiry triggers exactly one refresh", func(t *testing.T) {
		f := setup(t)
		f.auth.sess = testutil.Session(t, "u1", time.Now().Add(10*time.Second))
		f.auth.refreshed = testutil.Session(t, "u1", time.Now().Add(time.Hour))

		sess, err := f.manager.GetValidSession(ctx)
		require.NoError(t, err)
		assert.Same(t, f.auth.refreshed, sess)
		assert.EqualValues(t, 1, f.auth.refreshCalls)
		assert.Equal(t, StateValid, f.manager.State())
	})

	t.Run("malformed access token is refreshed", func(t *testing.T) {
		f := setup(t)
		f.auth.sess = &core.Session{AccessToken: "garbage", User: core.SessionUser{ID: "u1"}}
		f.auth.refreshed = testutil.Session(t, "u1", time.Now().Add(time.Hour))

		sess, err := f.manager.GetValidSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, f.auth.refreshed, sess)
		assert.EqualValues(t, 1, f.auth.refreshCalls)
	})

	t.Run("refresh token not found clears the session", func(t *testing.T) {
		f := setup(t)
		origErr := &core.BackendError{Status: 400, Code: core.CodeRefreshTokenNotFound, Message: "Invalid Refresh Token: Refresh Token Not Found"}
		f.auth.getErr = origErr

		sess, err := f.manager.GetValidSession(ctx)
		assert.Nil(t, sess)
		assert.Same(t, origErr, err)
		assert.Empty(t, f.sessionKeys(t))
		assert.EqualValues(t, 1, f.auth.signOutCalls)
		assert.Equal(t, StateAbsent, f.manager.State())

		// unrelated keys are kept
		v, err := f.durable.Get(ctx, "theme")
		require.NoError(t, err)
		assert.Equal(t, "dark", v)
	})

	t.Run("failed refresh with a fatal error clears the session", func(t *testing.T) {
		f := setup(t)
		f.auth.sess = testutil.Session(t, "u1", time.Now().Add(-time.Minute))
		f.auth.refreshErr = &core.BackendError{Status: 400, Code: core.CodeInvalidRefreshToken, Message: "Invalid Refresh Token: Already Used"}

		sess, err := f.manager.GetValidSession(ctx)
		assert.Nil(t, sess)
		assert.Equal(t, f.auth.refreshErr, err)
		assert.Empty(t, f.sessionKeys(t))
		assert.EqualValues(t, 1, f.auth.signOutCalls)
	})

	t.Run("failed refresh with a transient error keeps the storage", func(t *testing.T) {
		f := setup(t)
		f.auth.sess = testutil.Session(t, "u1", time.Now().Add(-time.Minute))
		f.auth.refreshErr = &core.BackendError{Status: 503, Message: "service unavailable"}

		sess, err := f.manager.GetValidSession(ctx)
		assert.Nil(t, sess)
		assert.Error(t, err)
		assert.Len(t, f.sessionKeys(t), 4)
		assert.EqualValues(t, 0, f.auth.signOutCalls)
		assert.Equal(t, StateExpiredRefreshable, f.manager.State())
	})

	t.Run("transient get error without session", func(t *testing.T) {
		f := setup(t)
		f.auth.getErr = &core.BackendError{Status: 500, Message: "boom"}
		sess, err := f.manager.GetValidSession(ctx)
		assert.Nil(t, sess)
		assert.Error(t, err)
		assert.Len(t, f.sessionKeys(t), 4)
	})
}

func TestManager_RefreshSession_deduplicates(t *testing.T) {
	for _, fail := range []bool{false, true} {
		name := "success"
		if fail {
			name = "failure"
		}
		t.Run(name, func(t *testing.T) {
			f := setup(t)
			f.auth.refreshed = testutil.Session(t, "u1", time.Now().Add(time.Hour))
			if fail {
				f.auth.refreshErr = &core.BackendError{Status: 400, Code: core.CodeRefreshTokenNotFound, Message: "Refresh Token Not Found"}
			}
			f.auth.refreshGate = make(chan struct{})
			f.auth.refreshEnter = make(chan struct{}, 2)

			type result struct {
				sess *core.Session
				err  error
			}
			results := make([]result, 2)
			var wg sync.WaitGroup
			call := func(i int) {
				defer wg.Done()
				sess, err := f.manager.RefreshSession(context.Background())
				results[i] = result{sess, err}
			}

			wg.Add(2)
			go call(0)
			<-f.auth.refreshEnter // first refresh is in flight
			go call(1)
			time.Sleep(50 * time.Millisecond) // let the second caller join
			close(f.auth.refreshGate)
			wg.Wait()

			assert.EqualValues(t, 1, atomic.LoadInt32(&f.auth.refreshCalls))
			assert.Equal(t, results[0], results[1])
			if fail {
				assert.Nil(t, results[0].sess)
				assert.True(t, IsRefreshTokenError(results[0].err))
			} else {
				assert.NoError(t, results[0].err)
				assert.Same(t, f.auth.refreshed, results[0].sess)
			}

			// the pending refresh is forgotten once settled
			f.auth.refreshGate = nil
			f.auth.refreshEnter = nil
			_, _ = f.manager.RefreshSession(context.Background())
			assert.EqualValues(t, 2, atomic.LoadInt32(&f.auth.refreshCalls))
		})
	}
}

func TestManager_RefreshSession_callerCancelled(t *testing.T) {
	f := setup(t)
	f.auth.refreshed = testutil.Session(t, "u1", time.Now().Add(time.Hour))
	f.auth.refreshGate = make(chan struct{})
	f.auth.refreshEnter = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.manager.RefreshSession(ctx)
		first <- err
	}()
	<-f.auth.refreshEnter

	second := make(chan *core.Session, 1)
	go func() {
		sess, _ := f.manager.RefreshSession(context.Background())
		second <- sess
	}()
	time.Sleep(50 * time.Millisecond) // let the second caller join

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(f.auth.refreshGate)
	assert.Same(t, f.auth.refreshed, <-second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.auth.refreshCalls))
	assert.Equal(t, StateValid, f.manager.State())
}

func TestManager_RefreshSession_timeout(t *testing.T) {
	f := setup(t)
	f.manager = NewManager(f.auth, logsvc.NewDiscardLogger(), Options{
		KeyPrefix:      keyPrefix,
		RefreshTimeout: 50 * time.Millisecond,
		Stores:         []Storage{f.durable, f.volatile},
	})
	f.auth.refreshGate = make(chan struct{}) // never released
	defer close(f.auth.refreshGate)

	start := time.Now()
	sess, err := f.manager.RefreshSession(context.Background())
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, f.sessionKeys(t), 4, "a timed out refresh keeps the stored session")
}

func TestManager_ValidateSession(t *testing.T) {
	ctx := context.Background()

	f := setup(t)
	assert.False(t, f.manager.ValidateSession(ctx))

	assert.Equal(t, StateAbsent, f.manager.State())

	f.auth.sess = testutil.Session(t, "u1", time.Now().Add(time.Hour))
	assert.True(t, f.manager.ValidateSession(ctx))
	assert.Equal(t, StateValid, f.manager.State())

	f.auth.getErr = &core.BackendError{Status: 500, Message: "boom"}
	assert.False(t, f.manager.ValidateSession(ctx))
	assert.Len(t, f.sessionKeys(t), 4)

	f.auth.getErr = &core.BackendError{Message: "invalid refresh token"}
	assert.False(t, f.manager.ValidateSession(ctx))
	assert.Empty(t, f.sessionKeys(t))
	assert.Equal(t, StateAbsent, f.manager.State())
}

func TestManager_ClearInvalidSession(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		f := setup(t)
		f.manager.ClearInvalidSession(ctx)
		f.manager.ClearInvalidSession(ctx)
		assert.Empty(t, f.sessionKeys(t))
		assert.EqualValues(t, 2, f.auth.signOutCalls)
	})

	t.Run("storage failures are swallowed", func(t *testing.T) {
		f := setup(t)
		f.manager = NewManager(f.auth, logsvc.NewDiscardLogger(), Options{
			KeyPrefix: keyPrefix,
			Stores:    []Storage{failingStorage{}, f.volatile},
		})
		assert.NotPanics(t, func() { f.manager.ClearInvalidSession(ctx) })
		keys, _ := f.volatile.Keys(ctx, keyPrefix)
		assert.Empty(t, keys)
		assert.EqualValues(t, 1, f.auth.signOutCalls)
	})
}

func TestIsRefreshTokenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "code not found", err: &core.BackendError{Code: "refresh_token_not_found"}, want: true},
		{name: "code invalid", err: &core.BackendError{Code: "INVALID_REFRESH_TOKEN"}, want: true},
		{name: "message invalid", err: &core.BackendError{Message: "Invalid Refresh Token: Already Used"}, want: true},
		{name: "message not found", err: &core.BackendError{Message: "Refresh Token Not Found"}, want: true},
		{name: "plain error", err: context.DeadlineExceeded, want: false},
		{name: "plain error with marker", err: &plainErr{"auth: refresh_token_not_found"}, want: true},
		{name: "other backend error", err: &core.BackendError{Status: 401, Code: core.CodeInvalidJWT, Message: "invalid or expired jwt"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRefreshTokenError(tt.err))
		})
	}
}

type plainErr struct{ s string }

func (e *plainErr) Error() string { return e.s }
