package study

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/session"
	logsvc "github.com/trezcool/studyplanner/services/logger"
	"github.com/trezcool/studyplanner/tests"
)

func seedUserData(f *storeFixture, usrID string) {
	f.tables.seed(core.TableHomework,
		core.Row{"id": usrID + "-hw2", "user_id": usrID, "subject": "Math", "assignment": "Set 2", "due_date": "2025-03-05", "status": StatusNotStarted, "priority": PriorityLow},
		core.Row{"id": usrID + "-hw1", "user_id": usrID, "subject": "Math", "assignment": "Set 1", "due_date": "2025-03-01T23:59", "status": StatusInProgress, "priority": PriorityHigh},
	)
	f.tables.seed(core.TableCalendarEvents,
		core.Row{"id": usrID + "-ev1", "user_id": usrID, "date": "2025-03-10", "event_type": EventTypeExam, "subject": "Physics", "reminder_set": true, "preparation_checklist": []interface{}{"read ch. 4", "past papers"}},
	)
	f.tables.seed(core.TableGrades,
		core.Row{"id": usrID + "-g1", "user_id": usrID, "subject": "Math", "type": GradeTypeQuiz, "max_marks": 20.0, "marks_obtained": 15.0, "date_graded": "2025-02-01", "weight": 1.0},
		core.Row{"id": usrID + "-g2", "user_id": usrID, "subject": "Math", "type": GradeTypeExam, "max_marks": 100.0, "marks_obtained": 91.0, "date_graded": "2025-02-20", "weight": 3.0},
	)
	f.tables.seed(core.TableTimetable,
		core.Row{"id": usrID + "-tt1", "user_id": usrID, "day": "Monday", "period": 1.0, "subject": "Math", "teacher": "Mr. K", "room": "B12"},
	)
}

func ids[T identifiable](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.entityID())
	}
	return out
}

func TestStore_SetUser(t *testing.T) {
	f := newStoreFixture(t, "")
	seedUserData(f, "alice")
	seedUserData(f, "bob")

	f.signIn(t, "alice")
	assert.False(t, f.store.Loading())
	assert.Empty(t, f.store.Err())
	assert.Equal(t, []string{"alice-hw1", "alice-hw2"}, ids(f.store.Homework()))
	assert.Equal(t, []string{"alice-ev1"}, ids(f.store.CalendarEvents()))
	assert.Equal(t, []string{"alice-g2", "alice-g1"}, ids(f.store.Grades()))
	assert.Equal(t, []string{"alice-tt1"}, ids(f.store.Timetable()))

	ev := f.store.CalendarEvents()[0]
	assert.True(t, ev.ReminderSet)
	assert.Equal(t, []string{"read ch. 4", "past papers"}, ev.PreparationChecklist)
	entry, ok := f.store.TimetableEntry("Monday", 1)
	require.True(t, ok)
	assert.Equal(t, "B12", entry.Room)

	// signed out: everything is cleared without any backend call
	calls := f.tables.callCount()
	require.NoError(t, f.store.SetUser(context.Background(), nil))
	assert.Empty(t, f.store.Homework())
	assert.Empty(t, f.store.CalendarEvents())
	assert.Empty(t, f.store.Grades())
	assert.Empty(t, f.store.Timetable())
	assert.Empty(t, f.store.Err())
	assert.False(t, f.store.Loading())
	assert.Nil(t, f.store.User())
	assert.Equal(t, calls, f.tables.callCount())

	// another user only sees their own data
	f.signIn(t, "bob")
	assert.Equal(t, []string{"bob-hw1", "bob-hw2"}, ids(f.store.Homework()))
	assert.Equal(t, []string{"bob-g2", "bob-g1"}, ids(f.store.Grades()))
	assert.Equal(t, "bob", f.store.User().ID)
}

func TestStore_load_failures(t *testing.T) {
	ctx := context.Background()

	t.Run("failed query keeps the collection and sets the error", func(t *testing.T) {
		f := newStoreFixture(t, "")
		seedUserData(f, "alice")
		f.signIn(t, "alice")

		f.tables.seed(core.TableGrades, core.Row{"id": "alice-g3", "user_id": "alice", "max_marks": 10.0, "date_graded": "2025-03-01"})
		f.tables.fail["select grades"] = &core.BackendError{Status: 500, Message: "relation grades does not exist"}

		err := f.store.Reload(ctx)
		require.Error(t, err)
		var sErr *Error
		require.ErrorAs(t, err, &sErr)
		assert.Equal(t, core.KindTransient, sErr.Kind)
		assert.Contains(t, f.store.Err(), "failed to load grades")
		assert.Contains(t, f.store.Err(), "relation grades does not exist")
		assert.False(t, f.store.Loading())
		assert.Equal(t, []string{"alice-g2", "alice-g1"}, ids(f.store.Grades()))
	})

	t.Run("no session", func(t *testing.T) {
		f := newStoreFixture(t, "")
		err := f.store.SetUser(ctx, &core.SessionUser{ID: "alice"})
		require.Error(t, err)
		assert.Equal(t, MsgSessionExpired, f.store.Err())
		assert.Empty(t, f.tables.callsTo("select"))
		assert.False(t, f.store.Loading())
	})

	t.Run("session-fatal error", func(t *testing.T) {
		f := newStoreFixture(t, "alice")
		f.auth.getErr = &core.BackendError{Code: core.CodeRefreshTokenNotFound, Message: "Refresh Token Not Found"}
		err := f.store.SetUser(ctx, &core.SessionUser{ID: "alice"})
		require.Error(t, err)
		assert.Equal(t, core.KindSessionFatal, core.KindOf(err))
		assert.Equal(t, MsgSessionExpired, f.store.Err())
	})

	t.Run("health check", func(t *testing.T) {
		f := newStoreFixture(t, "alice")
		f.auth.userErr = &core.BackendError{Status: 503, Message: "auth unavailable"}
		require.Error(t, f.store.SetUser(ctx, &core.SessionUser{ID: "alice"}))
		assert.Contains(t, f.store.Err(), "health check failed")
		assert.Empty(t, f.tables.callsTo("select"))
	})

	t.Run("timeout", func(t *testing.T) {
		f := newStoreFixture(t, "alice")
		f.store.opts.LoadTimeout = 50 * time.Millisecond
		f.tables.selectDelay = time.Second

		err := f.store.SetUser(ctx, &core.SessionUser{ID: "alice"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLoadTimeout)
		assert.Contains(t, f.store.Err(), "Data loading timeout after")
		assert.False(t, f.store.Loading())
		assert.Empty(t, f.store.Homework())
	})

	t.Run("slow refresh", func(t *testing.T) {
		f := newStoreFixture(t, "")
		f.auth.sess = testutil.Session(t, "alice", time.Now().Add(10*time.Second)) // within the expiry margin
		f.auth.refreshDelay = 2 * time.Second
		f.store.opts.LoadTimeout = 100 * time.Millisecond

		start := time.Now()
		err := f.store.SetUser(ctx, &core.SessionUser{ID: "alice"})
		assert.Less(t, time.Since(start), time.Second)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLoadTimeout)
		assert.Contains(t, f.store.Err(), "Data loading timeout after")
		assert.Empty(t, f.tables.callsTo("select"))
	})
}

func TestStore_refreshRejectedDuringLoad(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t, "")
	seedUserData(f, "alice")

	auth := session.NewAuthenticator(f.auth, f.tables, f.manager, logsvc.NewDiscardLogger())
	var (
		mu   sync.Mutex
		errs []error
	)
	auth.OnUserChange(func(ctx context.Context, usr *core.SessionUser) {
		err := f.store.SetUser(ctx, usr)
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	require.NoError(t, auth.Start(ctx))
	defer auth.Stop()

	// the new session needs a refresh, which the backend rejects
	sess := testutil.Session(t, "alice", time.Now().Add(10*time.Second))
	f.auth.mu.Lock()
	f.auth.sess = sess
	f.auth.refreshErr = &core.BackendError{Status: 400, Code: core.CodeRefreshTokenNotFound, Message: "Refresh Token Not Found"}
	f.auth.mu.Unlock()
	f.auth.emit(core.EventSignedIn, sess)

	assert.Nil(t, auth.User())
	assert.Nil(t, f.store.User())
	assert.Equal(t, MsgSessionExpired, f.store.Err())
	assert.False(t, f.store.Loading())
	assert.Empty(t, f.store.Homework())
	assert.Empty(t, f.tables.callsTo("select"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 2) // sign-out happens inside the sign-in load
	assert.NoError(t, errs[0])
	var sErr *Error
	require.ErrorAs(t, errs[1], &sErr)
	assert.Equal(t, core.KindSessionFatal, sErr.Kind)
}

func TestStore_staleLoadIsDiscarded(t *testing.T) {
	f := newStoreFixture(t, "")
	seedUserData(f, "alice")
	f.signIn(t, "alice")

	f.store.mu.Lock()
	staleGen := f.store.gen
	f.store.gen++
	f.store.loading = true
	f.store.mu.Unlock()

	err := f.store.finishLoad(staleGen, &loadResult{homework: []Homework{{ID: "stale"}}}, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice-hw1", "alice-hw2"}, ids(f.store.Homework()))
	assert.True(t, f.store.Loading())
}

func TestStore_Homework(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t, "")
	f.signIn(t, "alice")

	f.tables.ids = []string{"abc123"}
	hw, err := f.store.AddHomework(ctx, Homework{
		Subject:    "Math",
		Assignment: "Problem Set 3",
		DueDate:    "2025-03-01T23:59",
		Status:     StatusNotStarted,
		Priority:   PriorityHigh,
		Notes:      "chapters 1-3",
	})
	require.NoError(t, err)
	want := Homework{
		ID:         "abc123",
		Subject:    "Math",
		Assignment: "Problem Set 3",
		DueDate:    "2025-03-01T23:59",
		Status:     StatusNotStarted,
		Priority:   PriorityHigh,
		Notes:      "chapters 1-3",
	}
	assert.Equal(t, want, hw)
	assert.Equal(t, []Homework{want}, f.store.Homework())

	// partial update keeps untouched fields
	require.NoError(t, f.store.UpdateHomework(ctx, "abc123", HomeworkPatch{Status: String(StatusCompleted)}))
	want.Status = StatusCompleted
	assert.Equal(t, []Homework{want}, f.store.Homework())
	assert.Equal(t, StatusCompleted, f.tables.rows[core.TableHomework][0]["status"])
	assert.Equal(t, "Problem Set 3", f.tables.rows[core.TableHomework][0]["assignment"])

	// empty patch is a no-op
	calls := f.tables.callCount()
	require.NoError(t, f.store.UpdateHomework(ctx, "abc123", HomeworkPatch{}))
	assert.Equal(t, calls, f.tables.callCount())

	require.NoError(t, f.store.DeleteHomework(ctx, "abc123"))
	assert.Empty(t, f.store.Homework())
	assert.Empty(t, f.tables.rows[core.TableHomework])
	assert.Empty(t, f.store.Err())
}

func TestStore_CalendarEventsAndGrades(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t, "")
	f.signIn(t, "alice")

	ev, err := f.store.AddCalendarEvent(ctx, CalendarEvent{Date: "2025-04-01", EventType: EventTypeQuiz, Subject: "Bio", PreparationChecklist: []string{"flash cards"}})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateCalendarEvent(ctx, ev.ID, CalendarEventPatch{Location: String("Lab 2"), ReminderSet: Bool(true)}))
	events := f.store.CalendarEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "Lab 2", events[0].Location)
	assert.True(t, events[0].ReminderSet)
	assert.Equal(t, "Bio", events[0].Subject)
	assert.Equal(t, []string{"flash cards"}, events[0].PreparationChecklist)

	g, err := f.store.AddGrade(ctx, Grade{Subject: "Bio", Type: GradeTypeQuiz, MaxMarks: 10, MarksObtained: 7, Weight: 1, DateGraded: "2025-04-02"})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateGrade(ctx, g.ID, GradePatch{MarksObtained: Float(9), Grade: String("A")}))
	grades := f.store.Grades()
	require.Len(t, grades, 1)
	assert.Equal(t, 9.0, grades[0].MarksObtained)
	assert.Equal(t, 10.0, grades[0].MaxMarks)
	assert.Equal(t, "A", grades[0].Grade)

	require.NoError(t, f.store.DeleteCalendarEvent(ctx, ev.ID))
	require.NoError(t, f.store.DeleteGrade(ctx, g.ID))
	assert.Empty(t, f.store.CalendarEvents())
	assert.Empty(t, f.store.Grades())
}

func TestStore_failedWritesLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	transient := &core.BackendError{Status: 403, Message: "permission denied"}

	tests := []struct {
		name    string
		failOn  string
		run     func(s *Store) error
		wantMsg string
	}{
		{
			name:   "add homework",
			failOn: "insert homework",
			run: func(s *Store) error {
				_, err := s.AddHomework(ctx, Homework{Subject: "Art"})
				return err
			},
			wantMsg: "Failed to add homework",
		},
		{
			name:    "update homework",
			failOn:  "update homework",
			run:     func(s *Store) error { return s.UpdateHomework(ctx, "alice-hw1", HomeworkPatch{Notes: String("x")}) },
			wantMsg: "Failed to update homework",
		},
		{
			name:    "delete homework",
			failOn:  "delete homework",
			run:     func(s *Store) error { return s.DeleteHomework(ctx, "alice-hw1") },
			wantMsg: "Failed to delete homework",
		},
		{
			name:    "delete event",
			failOn:  "delete calendar_events",
			run:     func(s *Store) error { return s.DeleteCalendarEvent(ctx, "alice-ev1") },
			wantMsg: "Failed to delete calendar event",
		},
		{
			name:    "update grade",
			failOn:  "update grades",
			run:     func(s *Store) error { return s.UpdateGrade(ctx, "alice-g1", GradePatch{Weight: Float(2)}) },
			wantMsg: "Failed to update grade",
		},
		{
			name:    "clear timetable slot",
			failOn:  "delete timetable",
			run:     func(s *Store) error { return s.UpdateTimetable(ctx, "Monday", 1, nil) },
			wantMsg: "Failed to update timetable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStoreFixture(t, "")
			seedUserData(f, "alice")
			f.signIn(t, "alice")
			hw, ev, gr, tt2 := f.store.Homework(), f.store.CalendarEvents(), f.store.Grades(), f.store.Timetable()

			f.tables.fail[tt.failOn] = transient
			err := tt.run(f.store)
			require.Error(t, err)
			var sErr *Error
			require.ErrorAs(t, err, &sErr)
			assert.Equal(t, core.KindTransient, sErr.Kind)

			assert.Equal(t, tt.wantMsg, f.store.Err())
			assert.Equal(t, hw, f.store.Homework())
			assert.Equal(t, ev, f.store.CalendarEvents())
			assert.Equal(t, gr, f.store.Grades())
			assert.Equal(t, tt2, f.store.Timetable())
		})
	}
}

func TestStore_sessionGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("no user", func(t *testing.T) {
		f := newStoreFixture(t, "")
		_, err := f.store.AddHomework(ctx, Homework{Subject: "Art"})
		assert.ErrorIs(t, err, ErrNoUser)
		assert.Empty(t, f.tables.callsTo("insert"))
	})

	t.Run("session gone", func(t *testing.T) {
		f := newStoreFixture(t, "")
		f.signIn(t, "alice")
		require.NoError(t, f.auth.SignOut(ctx))

		_, err := f.store.AddGrade(ctx, Grade{Subject: "Art"})
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.Equal(t, MsgSessionExpired, f.store.Err())
		assert.Empty(t, f.tables.callsTo("insert"))
	})

	t.Run("backend rejects the refresh token on write", func(t *testing.T) {
		f := newStoreFixture(t, "")
		f.signIn(t, "alice")
		require.NoError(t, f.mem.Set(ctx, "planner.auth.token", "{}"))
		f.tables.fail["insert homework"] = &core.BackendError{Status: 400, Code: core.CodeInvalidRefreshToken, Message: "Invalid Refresh Token"}

		_, err := f.store.AddHomework(ctx, Homework{Subject: "Art"})
		require.Error(t, err)
		assert.Equal(t, core.KindSessionFatal, core.KindOf(err))
		assert.Equal(t, MsgSessionExpired, f.store.Err())
		keys, _ := f.mem.Keys(ctx, "planner.auth")
		assert.Empty(t, keys)
		assert.Empty(t, f.store.Homework())
	})
}

func TestStore_UpdateTimetable(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t, "")
	f.signIn(t, "alice")

	// clearing a free slot does not reach the backend
	calls := f.tables.callCount()
	require.NoError(t, f.store.UpdateTimetable(ctx, "Monday", 3, nil))
	require.NoError(t, f.store.UpdateTimetable(ctx, "Monday", 3, &TimetableSlot{}))
	assert.Equal(t, calls, f.tables.callCount())
	assert.Empty(t, f.store.Timetable())

	require.NoError(t, f.store.UpdateTimetable(ctx, "Monday", 3, &TimetableSlot{Subject: "Math", Room: "B12"}))
	require.Len(t, f.store.Timetable(), 1)
	entry, ok := f.store.TimetableEntry("Monday", 3)
	require.True(t, ok)
	assert.Equal(t, "Math", entry.Subject)
	assert.Len(t, f.tables.callsTo("insert"), 1)

	// an occupied slot is updated, never duplicated
	require.NoError(t, f.store.UpdateTimetable(ctx, "Monday", 3, &TimetableSlot{Subject: "Physics", Teacher: "Ms. O"}))
	require.Len(t, f.store.Timetable(), 1)
	updated, _ := f.store.TimetableEntry("Monday", 3)
	assert.Equal(t, entry.ID, updated.ID)
	assert.Equal(t, "Physics", updated.Subject)
	assert.Equal(t, "", updated.Room)
	assert.Len(t, f.tables.callsTo("insert"), 1)
	assert.Len(t, f.tables.callsTo("update"), 1)
	assert.Len(t, f.tables.rows[core.TableTimetable], 1)

	require.NoError(t, f.store.UpdateTimetable(ctx, "Tuesday", 3, &TimetableSlot{Subject: "Art"}))
	assert.Len(t, f.store.Timetable(), 2)

	require.NoError(t, f.store.UpdateTimetable(ctx, "Monday", 3, nil))
	_, ok = f.store.TimetableEntry("Monday", 3)
	assert.False(t, ok)
	assert.Len(t, f.store.Timetable(), 1)
	assert.Len(t, f.tables.callsTo("delete"), 1)
}
