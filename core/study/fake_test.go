package study

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/session"
	logsvc "github.com/trezcool/studyplanner/services/logger"
	"github.com/trezcool/studyplanner/storage/kv"
	"github.com/trezcool/studyplanner/tests"
)

// fakeAuth serves a fixed session.
type fakeAuth struct {
	mu      sync.Mutex
	sess    *core.Session
	getErr  error
	userErr error

	refreshErr   error
	refreshDelay time.Duration

	listeners []func(core.AuthEvent, *core.Session)
}

func (f *fakeAuth) GetSession(context.Context) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.getErr
}

func (f *fakeAuth) RefreshSession(ctx context.Context) (*core.Session, error) {
	if f.refreshDelay > 0 {
		select {
		case <-time.After(f.refreshDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.sess, nil
}

func (f *fakeAuth) GetUser(context.Context) (*core.SessionUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	if f.sess == nil {
		return nil, nil
	}
	usr := f.sess.User
	return &usr, nil
}

func (f *fakeAuth) SignInWithPassword(context.Context, string, string) (*core.Session, error) {
	return nil, nil
}
func (f *fakeAuth) SignUp(context.Context, string, string, string) (*core.Session, error) {
	return nil, nil
}
func (f *fakeAuth) SignInWithOAuth(context.Context, string, string) (string, error) { return "", nil }
func (f *fakeAuth) SetSessionFromURL(context.Context, string) (*core.Session, error) {
	return nil, nil
}
func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	f.sess = nil
	f.mu.Unlock()
	f.emit(core.EventSignedOut, nil)
	return nil
}

func (f *fakeAuth) OnAuthStateChange(fn func(core.AuthEvent, *core.Session)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
	return func() {}
}

// emit delivers event synchronously, as the REST client does.
func (f *fakeAuth) emit(event core.AuthEvent, sess *core.Session) {
	f.mu.Lock()
	listeners := append([]func(core.AuthEvent, *core.Session){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(event, sess)
	}
}

// fakeTables is an in-memory TableService. Failures are scripted per "<op> <table>".
type fakeTables struct {
	mu     sync.Mutex
	rows   map[string][]core.Row
	fail   map[string]error
	calls  []string
	nextID int
	ids    []string // handed out before generated ids

	selectDelay time.Duration
}

func newFakeTables() *fakeTables {
	return &fakeTables{rows: make(map[string][]core.Row), fail: make(map[string]error)}
}

func (f *fakeTables) seed(table string, rows ...core.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[table] = append(f.rows[table], rows...)
}

func (f *fakeTables) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTables) callsTo(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, op+" ") {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTables) record(op, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+table)
	return f.fail[op+" "+table]
}

func matches(r core.Row, filter core.Filter) bool {
	for k, v := range filter {
		if fmt.Sprint(r[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (f *fakeTables) Select(ctx context.Context, table string, q core.Query) ([]core.Row, error) {
	if err := f.record("select", table); err != nil {
		return nil, err
	}
	if f.selectDelay > 0 {
		select {
		case <-time.After(f.selectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Row
	for _, r := range f.rows[table] {
		if matches(r, q.Filter) {
			out = append(out, r.Clone())
		}
	}
	for i := len(q.Order) - 1; i >= 0; i-- {
		ord := q.Order[i]
		sort.SliceStable(out, func(a, b int) bool {
			x, y := fmt.Sprint(out[a][ord.Field]), fmt.Sprint(out[b][ord.Field])
			if ord.Ascending {
				return x < y
			}
			return x > y
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeTables) Insert(_ context.Context, table string, row core.Row) (core.Row, error) {
	if err := f.record("insert", table); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	created := row.Clone()
	if _, ok := created["id"]; !ok {
		if len(f.ids) > 0 {
			created["id"], f.ids = f.ids[0], f.ids[1:]
		} else {
			f.nextID++
			created["id"] = fmt.Sprintf("id-%d", f.nextID)
		}
	}
	f.rows[table] = append(f.rows[table], created)
	return created.Clone(), nil
}

func (f *fakeTables) Update(_ context.Context, table string, filter core.Filter, partial core.Row) error {
	if err := f.record("update", table); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows[table] {
		if matches(r, filter) {
			for k, v := range partial {
				r[k] = v
			}
		}
	}
	return nil
}

func (f *fakeTables) Delete(_ context.Context, table string, filter core.Filter) error {
	if err := f.record("delete", table); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[table][:0]
	for _, r := range f.rows[table] {
		if !matches(r, filter) {
			kept = append(kept, r)
		}
	}
	f.rows[table] = kept
	return nil
}

func (f *fakeTables) Upsert(ctx context.Context, table string, row core.Row) (core.Row, error) {
	return f.Insert(ctx, table, row)
}

type storeFixture struct {
	auth    *fakeAuth
	tables  *fakeTables
	mem     *kv.Memory
	manager *session.Manager
	store   *Store
}

func newStoreFixture(t *testing.T, usrID string) *storeFixture {
	t.Helper()
	f := &storeFixture{
		auth:   &fakeAuth{},
		tables: newFakeTables(),
		mem:    kv.NewMemory(),
	}
	if usrID != "" {
		f.auth.sess = testutil.Session(t, usrID, time.Now().Add(time.Hour))
	}
	logger := logsvc.NewDiscardLogger()
	f.manager = session.NewManager(f.auth, logger, session.Options{KeyPrefix: "planner.auth", Stores: []session.Storage{f.mem}})
	f.store = NewStore(f.tables, f.auth, f.manager, logger, Options{})
	return f
}

// signIn loads usrID's data into the store.
func (f *storeFixture) signIn(t *testing.T, usrID string) {
	t.Helper()
	f.auth.mu.Lock()
	f.auth.sess = testutil.Session(t, usrID, time.Now().Add(time.Hour))
	f.auth.mu.Unlock()
	if err := f.store.SetUser(context.Background(), &core.SessionUser{ID: usrID}); err != nil {
		t.Fatalf("SetUser(%s) failed: %v", usrID, err)
	}
}
