package study

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/session"
)

const DefaultLoadTimeout = 10 * time.Second

// User facing messages stored in the error slot.
const (
	MsgSessionExpired = "Session expired. Please sign in again."
	MsgLoadFailed     = "Failed to load data"
)

var (
	// errors
	ErrNoUser         = errors.New("no signed-in user")
	ErrSessionExpired = errors.New("session expired")
	ErrLoadTimeout    = errors.New("data loading timed out")
)

// Error is returned by the Store operations. Message is what the error slot shows.
type Error struct {
	Op      string
	Kind    core.ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	// LoadTimeout bounds a whole load; defaults to DefaultLoadTimeout.
	LoadTimeout time.Duration
}

// Store is the in-memory cache of the signed-in user's homework, calendar events, grades and timetable.
// Writes go to the backend first; local collections only change once the backend confirmed them.
type Store struct {
	tables   core.TableService
	auth     core.AuthService
	sessions *session.Manager
	logger   core.Logger
	opts     Options

	mu        sync.RWMutex
	usr       *core.SessionUser
	gen       uint64 // load generation
	loading   bool
	err       string
	homework  []Homework
	events    []CalendarEvent
	grades    []Grade
	timetable []TimetableEntry
}

func NewStore(tables core.TableService, auth core.AuthService, sessions *session.Manager, logger core.Logger, opts Options) *Store {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &Store{
		tables:   tables,
		auth:     auth,
		sessions: sessions,
		logger:   logger,
		opts:     opts,
	}
}

// Accessors return copies.

func (s *Store) User() *core.SessionUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.usr == nil {
		return nil
	}
	usr := *s.usr
	return &usr
}

func (s *Store) Homework() []Homework {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Homework{}, s.homework...)
}

func (s *Store) CalendarEvents() []CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CalendarEvent, len(s.events))
	for i, ev := range s.events {
		ev.PreparationChecklist = append([]string{}, ev.PreparationChecklist...)
		out[i] = ev
	}
	return out
}

func (s *Store) Grades() []Grade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Grade{}, s.grades...)
}

func (s *Store) Timetable() []TimetableEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TimetableEntry{}, s.timetable...)
}

// TimetableEntry returns the entry occupying the (day, period) slot.
func (s *Store) TimetableEntry(day string, period int) (TimetableEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slotEntry(day, period)
}

func (s *Store) slotEntry(day string, period int) (TimetableEntry, bool) {
	for _, te := range s.timetable {
		if te.Day == day && te.Period == period {
			return te, true
		}
	}
	return TimetableEntry{}, false
}

// Err returns the message of the most recent failure, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) ClearErr() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Summary computes the dashboard over the current collections.
func (s *Store) Summary(now time.Time) Summary {
	return Summarize(s.Homework(), s.CalendarEvents(), s.Grades(), now)
}

// SetUser switches the store to usr. A nil user clears every collection and the error slot;
// otherwise the collections of usr are loaded. Collections of a previous user are dropped first.
func (s *Store) SetUser(ctx context.Context, usr *core.SessionUser) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if usr == nil || s.usr == nil || s.usr.ID != usr.ID {
		s.reset()
	}
	if usr == nil {
		s.usr = nil
		s.loading = false
		s.err = ""
		s.mu.Unlock()
		return nil
	}
	u := *usr
	s.usr = &u
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	return s.load(ctx, gen, u.ID)
}

// Reload loads the collections of the current user again.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.usr == nil {
		s.mu.Unlock()
		return ErrNoUser
	}
	s.gen++
	gen, usrID := s.gen, s.usr.ID
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	return s.load(ctx, gen, usrID)
}

func (s *Store) reset() {
	s.homework = []Homework{}
	s.events = []CalendarEvent{}
	s.grades = []Grade{}
	s.timetable = []TimetableEntry{}
}

// loadResult holds the collections fetched by one load; nil means the query did not succeed.
type loadResult struct {
	homework  []Homework
	events    []CalendarEvent
	grades    []Grade
	timetable []TimetableEntry
}

// load runs the session check and the fetch under the load timeout.
func (s *Store) load(ctx context.Context, gen uint64, usrID string) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		res  loadResult
		done = make(chan error, 1)
	)
	go func() {
		if err := s.checkSession(fetchCtx); err != nil {
			done <- err
			return
		}
		done <- s.fetch(fetchCtx, usrID, &res)
	}()

	timer := time.NewTimer(s.opts.LoadTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return s.finishLoad(gen, &res, err)
	case <-timer.C:
		cancel()
		err := &Error{
			Op:      "load",
			Kind:    core.KindTransient,
			Message: fmt.Sprintf("Data loading timeout after %d seconds", int(s.opts.LoadTimeout/time.Second)),
			Err:     ErrLoadTimeout,
		}
		return s.finishLoad(gen, nil, err)
	case <-ctx.Done():
		return s.finishLoad(gen, nil, ctx.Err())
	}
}

// fetch checks the backend is reachable, then runs the four collection queries concurrently.
func (s *Store) fetch(ctx context.Context, usrID string, res *loadResult) error {
	if _, err := s.auth.GetUser(ctx); err != nil {
		return errors.Wrap(err, "health check failed")
	}
	probe := core.Query{Filter: core.Filter{"id": usrID}, Limit: 1}
	if _, err := s.tables.Select(ctx, core.TableProfiles, probe); err != nil {
		return errors.Wrap(err, "database connection failed")
	}

	owned := core.Filter{"user_id": usrID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.tables.Select(gctx, core.TableHomework, core.Query{
			Filter: owned,
			Order:  []core.DBOrdering{{Field: "due_date", Ascending: true}},
		})
		if err != nil {
			return errors.Wrap(err, "failed to load homework")
		}
		res.homework = mapRows(rows, homeworkFromRow)
		return nil
	})
	g.Go(func() error {
		rows, err := s.tables.Select(gctx, core.TableCalendarEvents, core.Query{
			Filter: owned,
			Order:  []core.DBOrdering{{Field: "date", Ascending: true}},
		})
		if err != nil {
			return errors.Wrap(err, "failed to load calendar events")
		}
		res.events = mapRows(rows, calendarEventFromRow)
		return nil
	})
	g.Go(func() error {
		rows, err := s.tables.Select(gctx, core.TableGrades, core.Query{
			Filter: owned,
			Order:  []core.DBOrdering{{Field: "date_graded", Ascending: false}},
		})
		if err != nil {
			return errors.Wrap(err, "failed to load grades")
		}
		res.grades = mapRows(rows, gradeFromRow)
		return nil
	})
	g.Go(func() error {
		rows, err := s.tables.Select(gctx, core.TableTimetable, core.Query{Filter: owned})
		if err != nil {
			return errors.Wrap(err, "failed to load timetable")
		}
		res.timetable = mapRows(rows, timetableEntryFromRow)
		return nil
	})
	return g.Wait()
}

// finishLoad applies res if gen is still the current load. Each collection is only replaced
// when its own query succeeded.
func (s *Store) finishLoad(gen uint64, res *loadResult, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		// A rejected refresh token signs the user out while the load is running;
		// the user still has to learn why.
		if s.usr == nil && core.IsSessionFatal(err) {
			sErr := s.classify("load", MsgLoadFailed, err)
			s.err = sErr.Message
			s.logger.Error("loading data failed", err)
			return sErr
		}
		s.logger.Debug("discarding results of a superseded load", map[string]interface{}{"generation": gen})
		return nil
	}
	s.loading = false

	if res != nil {
		if res.homework != nil {
			s.homework = res.homework
		}
		if res.events != nil {
			s.events = res.events
		}
		if res.grades != nil {
			s.grades = res.grades
		}
		if res.timetable != nil {
			s.timetable = res.timetable
		}
	}

	if err != nil {
		sErr := s.classify("load", MsgLoadFailed, err)
		s.err = sErr.Message
		s.logger.Error("loading data failed", err)
		return sErr
	}
	return nil
}

func mapRows[T any](rows []core.Row, fn func(core.Row) T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, fn(r))
	}
	return out
}

// checkSession makes sure a usable session exists, refreshing it if needed.
func (s *Store) checkSession(ctx context.Context) error {
	sess, err := s.sessions.GetValidSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionExpired
	}
	return nil
}

// classify turns err into an *Error: session failures get the re-authentication message,
// anything else fallback (or the message of an *Error already built).
func (s *Store) classify(op, fallback string, err error) *Error {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr
	}
	if errors.Is(err, ErrSessionExpired) || core.IsSessionFatal(err) {
		return &Error{Op: op, Kind: core.KindSessionFatal, Message: MsgSessionExpired, Err: err}
	}
	msg := fallback
	if op == "load" {
		msg = err.Error()
	}
	return &Error{Op: op, Kind: core.KindOf(err), Message: msg, Err: err}
}

// guard runs before every write: it returns the current user ID once the session is known usable.
func (s *Store) guard(ctx context.Context, op, failMsg string) (string, error) {
	s.mu.RLock()
	usr := s.usr
	s.mu.RUnlock()
	if usr == nil {
		return "", &Error{Op: op, Kind: core.KindSessionFatal, Message: MsgSessionExpired, Err: ErrNoUser}
	}
	if err := s.checkSession(ctx); err != nil {
		return "", s.fail(op, failMsg, err)
	}
	return usr.ID, nil
}

// fail records err in the error slot.
func (s *Store) fail(op, failMsg string, err error) error {
	sErr := s.classify(op, failMsg, err)
	s.logger.Error(failMsg, err)

	s.mu.Lock()
	s.err = sErr.Message
	s.mu.Unlock()
	return sErr
}

// writeFailed is fail for backend writes: a session-fatal rejection also discards the local session.
func (s *Store) writeFailed(ctx context.Context, op, failMsg string, err error) error {
	if core.IsSessionFatal(err) {
		s.sessions.ClearInvalidSession(ctx)
	}
	return s.fail(op, failMsg, err)
}

// apply runs fn on the collections if usrID is still the store's user.
func (s *Store) apply(usrID string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usr == nil || s.usr.ID != usrID {
		return
	}
	fn()
}

type identifiable interface {
	entityID() string
}

// appendUnique appends item, replacing an entry with the same ID instead of duplicating it.
func appendUnique[T identifiable](items []T, item T) []T {
	for i := range items {
		if items[i].entityID() == item.entityID() {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func updateByID[T identifiable](items []T, id string, fn func(T) T) {
	for i := range items {
		if items[i].entityID() == id {
			items[i] = fn(items[i])
		}
	}
}

func removeByID[T identifiable](items []T, id string) []T {
	out := items[:0]
	for _, item := range items {
		if item.entityID() != id {
			out = append(out, item)
		}
	}
	return out
}

func ownedRow(usrID, id string) core.Filter {
	return core.Filter{"id": id, "user_id": usrID}
}
