// Package dbtest holds the behaviour shared by every repository implementation, run against each of them.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
	"github.com/trezcool/studyplanner/core/records"
	"github.com/trezcool/studyplanner/core/user"
	"github.com/trezcool/studyplanner/tests"
)

func RunUserRepository(t *testing.T, repo user.Repository) {
	ctx := context.Background()
	now := core.NowUTC().Truncate(time.Second)

	alice := testutil.CreateUser(t, repo, "Alice", "alice@test.cd", "Pa$$w0rd", true, now.Add(-time.Hour))
	bob := testutil.CreateUser(t, repo, "Bob", "bob@test.cd", "", false, now)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, user.User{ID: uuid.NewString(), Email: alice.Email, CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, user.ErrEmailExists, err)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{ID: alice.ID})
		require.NoError(t, err)
		assert.Equal(t, alice.Email, got.Email)
		assert.True(t, got.IsConfirmed())
		assert.NoError(t, got.CheckPassword("Pa$$w0rd"))

		got, err = repo.GetUser(ctx, user.GetFilter{Email: bob.Email})
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
		assert.False(t, got.IsConfirmed())
		assert.Empty(t, got.PasswordHash)

		_, err = repo.GetUser(ctx, user.GetFilter{Email: "nobody@test.cd"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("query all sorted by creation", func(t *testing.T) {
		users, err := repo.QueryAllUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, alice.ID, users[0].ID)
		assert.Equal(t, bob.ID, users[1].ID)
	})

	t.Run("update", func(t *testing.T) {
		upd := bob
		upd.FullName = "Robert"
		upd.LastLogin = now
		upd.UpdatedAt = now.Add(time.Minute)
		got, err := repo.UpdateUser(ctx, upd)
		require.NoError(t, err)
		assert.Equal(t, "Robert", got.FullName)
		assert.True(t, got.LastLogin.Equal(now))
		assert.True(t, got.CreatedAt.Equal(bob.CreatedAt))

		upd.Email = alice.Email
		_, err = repo.UpdateUser(ctx, upd)
		assert.Equal(t, user.ErrEmailExists, err)

		_, err = repo.UpdateUser(ctx, user.User{ID: uuid.NewString(), Email: "ghost@test.cd"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteUsersByID(ctx, bob.ID))
		_, err := repo.GetUser(ctx, user.GetFilter{ID: bob.ID})
		assert.Equal(t, user.ErrNotFound, err)
		assert.NoError(t, repo.DeleteUsersByID(ctx))
	})
}

func RunTokenRepository(t *testing.T, users user.Repository, repo auth.TokenRepository) {
	ctx := context.Background()
	now := core.NowUTC().Truncate(time.Second)
	usr := testutil.CreateUser(t, users, "Alice", "alice@test.cd", "", true)

	for _, tok := range []string{"t1", "t2"} {
		require.NoError(t, repo.CreateRefreshToken(ctx, auth.RefreshToken{
			Token:     tok,
			UserID:    usr.ID,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}))
	}

	rt, err := repo.GetRefreshToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, rt.UserID)
	assert.False(t, rt.Revoked)
	assert.True(t, rt.ExpiresAt.Equal(now.Add(time.Hour)))

	_, err = repo.GetRefreshToken(ctx, "missing")
	assert.Equal(t, auth.ErrTokenNotFound, err)

	// only the first revocation wins
	ok, err := repo.RevokeRefreshToken(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RevokeRefreshToken(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.RevokeUserTokens(ctx, usr.ID))
	rt, err = repo.GetRefreshToken(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, rt.Revoked)
}

func RunRecordRepository(t *testing.T, repo records.Repository) {
	ctx := context.Background()
	svc := records.NewService(repo)
	u1, u2 := uuid.NewString(), uuid.NewString()

	t.Run("insert and select are owner scoped", func(t *testing.T) {
		hw, err := svc.Insert(ctx, u1, core.TableHomework, core.Row{
			"subject":    "Math",
			"assignment": "Ex 1",
			"due_date":   "2026-10-20",
			"status":     "pending",
			"user_id":    u2, // ignored
		})
		require.NoError(t, err)
		assert.Equal(t, u1, hw["user_id"])
		assert.NotEmpty(t, hw["id"])
		assert.Nil(t, hw["notes"])
		assert.IsType(t, "", hw["created_at"])

		_, err = svc.Insert(ctx, u2, core.TableHomework, core.Row{"subject": "Art", "assignment": "Draw"})
		require.NoError(t, err)

		rows, err := svc.Select(ctx, u1, core.TableHomework, core.Query{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Ex 1", rows[0]["assignment"])

		// asking for someone else's rows yields the caller's own
		rows, err = svc.Select(ctx, u1, core.TableHomework, core.Query{Filter: core.Filter{"user_id": u2}})
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		rows, err = svc.Select(ctx, u1, core.TableHomework, core.Query{Filter: core.Filter{"notes": nil}})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("list and bool columns round trip", func(t *testing.T) {
		ev, err := svc.Insert(ctx, u1, core.TableCalendarEvents, core.Row{
			"subject":               "Exam",
			"date":                  "2026-10-21",
			"reminder_set":          true,
			"preparation_checklist": []interface{}{"read", "revise"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"read", "revise"}, ev["preparation_checklist"])

		ev2, err := svc.Insert(ctx, u1, core.TableCalendarEvents, core.Row{"subject": "Trip"})
		require.NoError(t, err)
		assert.Equal(t, []string{}, ev2["preparation_checklist"])

		rows, err := svc.Select(ctx, u1, core.TableCalendarEvents, core.Query{Filter: core.Filter{"id": ev["id"]}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, true, rows[0]["reminder_set"])
		assert.Equal(t, []string{"read", "revise"}, rows[0]["preparation_checklist"])
	})

	t.Run("order and limit", func(t *testing.T) {
		for _, marks := range []float64{12, 18, 15} {
			_, err := svc.Insert(ctx, u1, core.TableGrades, core.Row{
				"subject":        "Physics",
				"max_marks":      20,
				"marks_obtained": marks,
			})
			require.NoError(t, err)
		}
		_, err := svc.Insert(ctx, u1, core.TableGrades, core.Row{"subject": "Physics"})
		require.NoError(t, err)

		rows, err := svc.Select(ctx, u1, core.TableGrades, core.Query{
			Order: []core.DBOrdering{{Field: "marks_obtained", Ascending: false}},
		})
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, 18.0, rows[0]["marks_obtained"])
		assert.Equal(t, 15.0, rows[1]["marks_obtained"])
		assert.Equal(t, 12.0, rows[2]["marks_obtained"])
		assert.Nil(t, rows[3]["marks_obtained"])

		rows, err = svc.Select(ctx, u1, core.TableGrades, core.Query{
			Order: []core.DBOrdering{{Field: "marks_obtained", Ascending: true}},
			Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, 12.0, rows[0]["marks_obtained"])
	})

	t.Run("update", func(t *testing.T) {
		rows, err := svc.Select(ctx, u1, core.TableHomework, core.Query{})
		require.NoError(t, err)
		id := rows[0]["id"]

		updated, err := svc.Update(ctx, u1, core.TableHomework, core.Filter{"id": id}, core.Row{"status": "completed", "id": "x"})
		require.NoError(t, err)
		require.Len(t, updated, 1)
		assert.Equal(t, "completed", updated[0]["status"])
		assert.Equal(t, id, updated[0]["id"])

		// other users cannot touch it
		updated, err = svc.Update(ctx, u2, core.TableHomework, core.Filter{"id": id}, core.Row{"status": "pending"})
		require.NoError(t, err)
		assert.Empty(t, updated)
	})

	t.Run("delete", func(t *testing.T) {
		rows, err := svc.Select(ctx, u2, core.TableHomework, core.Query{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		id := rows[0]["id"]

		deleted, err := svc.Delete(ctx, u1, core.TableHomework, core.Filter{"id": id})
		require.NoError(t, err)
		assert.Empty(t, deleted)

		deleted, err = svc.Delete(ctx, u2, core.TableHomework, core.Filter{"id": id})
		require.NoError(t, err)
		assert.Len(t, deleted, 1)

		rows, err = svc.Select(ctx, u2, core.TableHomework, core.Query{})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("timetable slot is unique", func(t *testing.T) {
		slot := core.Row{"day": "Monday", "period": 1, "subject": "Math"}
		first, err := svc.Insert(ctx, u1, core.TableTimetable, slot)
		require.NoError(t, err)
		assert.EqualValues(t, 1, first["period"])

		_, err = svc.Insert(ctx, u1, core.TableTimetable, slot)
		assert.ErrorIs(t, err, records.ErrConflict)

		// same slot of another user is fine
		_, err = svc.Insert(ctx, u2, core.TableTimetable, slot)
		require.NoError(t, err)

		merged, err := svc.Upsert(ctx, u1, core.TableTimetable, core.Row{"id": first["id"], "day": "Monday", "period": 1, "subject": "Chemistry"})
		require.NoError(t, err)
		assert.Equal(t, "Chemistry", merged["subject"])
		assert.Equal(t, first["created_at"], merged["created_at"])

		_, err = svc.Upsert(ctx, u2, core.TableTimetable, core.Row{"id": first["id"], "day": "Friday", "period": 3})
		assert.ErrorIs(t, err, records.ErrForbidden)

		rows, err := svc.Select(ctx, u1, core.TableTimetable, core.Query{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Chemistry", rows[0]["subject"])
	})

	t.Run("profiles are keyed by the user", func(t *testing.T) {
		p, err := svc.Upsert(ctx, u1, core.TableProfiles, core.Row{"email": "u1@test.cd", "full_name": "U One"})
		require.NoError(t, err)
		assert.Equal(t, u1, p["id"])

		p, err = svc.Upsert(ctx, u1, core.TableProfiles, core.Row{"full_name": "U 1"})
		require.NoError(t, err)
		assert.Equal(t, "U 1", p["full_name"])
		assert.Equal(t, "u1@test.cd", p["email"])

		_, err = svc.Upsert(ctx, u2, core.TableProfiles, core.Row{"id": u1})
		assert.ErrorIs(t, err, records.ErrForbidden)
	})
}
