package sqlxdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/studyplanner/core/user"
)

const userColumns = `id, full_name, email, provider, is_active, password_hash, email_confirmed_at, created_at, updated_at, last_login`

type dbUser struct {
	ID               string     `db:"id"`
	FullName         string     `db:"full_name"`
	Email            string     `db:"email"`
	Provider         string     `db:"provider"`
	IsActive         bool       `db:"is_active"`
	PasswordHash     null.Bytes `db:"password_hash"`
	EmailConfirmedAt null.Time  `db:"email_confirmed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	LastLogin        null.Time  `db:"last_login"`
}

type userRepository struct {
	db sqlx.ExtContext
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db sqlx.ExtContext) user.Repository {
	return &userRepository{db: db}
}

func (repo userRepository) toDB(usr user.User) dbUser {
	return dbUser{
		ID:               usr.ID,
		FullName:         usr.FullName,
		Email:            usr.Email,
		Provider:         usr.Provider,
		IsActive:         usr.IsActive,
		PasswordHash:     null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		EmailConfirmedAt: null.NewTime(usr.EmailConfirmedAt.UTC(), !usr.EmailConfirmedAt.IsZero()),
		CreatedAt:        usr.CreatedAt.UTC(),
		UpdatedAt:        usr.UpdatedAt.UTC(),
		LastLogin:        null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromDB(u dbUser) user.User {
	usr := user.User{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		Provider:     u.Provider,
		IsActive:     u.IsActive,
		PasswordHash: u.PasswordHash.Bytes,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	if u.EmailConfirmedAt.Valid {
		usr.EmailConfirmedAt = u.EmailConfirmedAt.Time.UTC()
	}
	if u.LastLogin.Valid {
		usr.LastLogin = u.LastLogin.Time.UTC()
	}
	return usr
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :full_name, :email, :provider, :is_active,
		:password_hash, :email_confirmed_at, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, repo.toDB(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		col string
		arg interface{}
	)
	switch {
	case filter.ID != "":
		col, arg = "id", filter.ID
	case filter.Email != "":
		col, arg = "email", filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var u dbUser
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + col + ` = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return repo.fromDB(u), nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []dbUser
	if err := sqlx.SelectContext(ctx, repo.db, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, repo.fromDB(u))
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET full_name = :full_name, email = :email, provider = :provider, is_active = :is_active,
		password_hash = :password_hash, email_confirmed_at = :email_confirmed_at, updated_at = :updated_at,
		last_login = :last_login WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, repo.toDB(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	return errors.Wrap(err, "deleting users")
}
