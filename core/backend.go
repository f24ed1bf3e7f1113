package core

import (
	"context"
	"sort"
	"time"
)

// Backend tables.
const (
	TableHomework       = "homework"
	TableCalendarEvents = "calendar_events"
	TableGrades         = "grades"
	TableTimetable      = "timetable"
	TableProfiles       = "profiles"
)

// Auth events pushed to OnAuthStateChange subscribers.
const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

type (
	AuthEvent string

	// SessionUser is the authenticated user as seen by the client.
	SessionUser struct {
		ID           string                 `json:"id"`
		Email        string                 `json:"email"`
		UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
		CreatedAt    time.Time              `json:"created_at,omitempty"`
	}

	// Session is the bearer-token credential pair plus expiry metadata.
	Session struct {
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
		TokenType    string      `json:"token_type"`
		ExpiresIn    int64       `json:"expires_in"`
		ExpiresAt    int64       `json:"expires_at"` // epoch seconds
		User         SessionUser `json:"user"`
	}

	// Row is a table row keyed by snake_case column names.
	Row map[string]interface{}

	// Filter holds column equality conditions, combined with AND.
	Filter map[string]interface{}

	Query struct {
		Filter Filter
		Order  []DBOrdering
		Limit  int
	}

	// TableService is the table-scoped CRUD collaborator.
	// Every call is implicitly scoped to the authenticated user by the backend.
	TableService interface {
		Select(ctx context.Context, table string, q Query) ([]Row, error)
		Insert(ctx context.Context, table string, row Row) (Row, error)
		Update(ctx context.Context, table string, filter Filter, partial Row) error
		Delete(ctx context.Context, table string, filter Filter) error
		Upsert(ctx context.Context, table string, row Row) (Row, error)
	}

	// AuthService is the authentication collaborator. A nil *Session without error means "no session".
	AuthService interface {
		GetSession(ctx context.Context) (*Session, error)
		RefreshSession(ctx context.Context) (*Session, error)
		GetUser(ctx context.Context) (*SessionUser, error)
		SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
		SignUp(ctx context.Context, email, password, redirectTo string) (*Session, error)
		// SignInWithOAuth returns the provider URL the user must visit.
		SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
		// SetSessionFromURL completes a redirect based flow (OAuth, email confirmation).
		SetSessionFromURL(ctx context.Context, callbackURL string) (*Session, error)
		SignOut(ctx context.Context) error
		OnAuthStateChange(fn func(event AuthEvent, sess *Session)) (unsubscribe func())
	}

	// SessionStorage is a client-side key/value store holding session artifacts.
	SessionStorage interface {
		Keys(ctx context.Context, prefix string) ([]string, error)
		Delete(ctx context.Context, keys ...string) error
	}
)

// FullName reads the display name from the user metadata.
func (u SessionUser) FullName() string {
	for _, k := range []string{"full_name", "name"} {
		if v, ok := u.UserMetadata[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Keys returns the filter columns sorted, for deterministic statements.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
