package sqlxdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core/auth"
)

type dbRefreshToken struct {
	Token     string    `db:"token"`
	UserID    string    `db:"user_id"`
	Parent    string    `db:"parent"`
	Revoked   bool      `db:"revoked"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

type tokenRepository struct {
	db sqlx.ExtContext
}

var _ auth.TokenRepository = (*tokenRepository)(nil) // interface compliance check

func NewTokenRepository(db sqlx.ExtContext) auth.TokenRepository {
	return &tokenRepository{db: db}
}

func (repo tokenRepository) CreateRefreshToken(ctx context.Context, rt auth.RefreshToken) error {
	q := `INSERT INTO refresh_tokens (token, user_id, parent, revoked, created_at, expires_at)
		VALUES (:token, :user_id, :parent, :revoked, :created_at, :expires_at)`
	_, err := sqlx.NamedExecContext(ctx, repo.db, q, dbRefreshToken{
		Token:     rt.Token,
		UserID:    rt.UserID,
		Parent:    rt.Parent,
		Revoked:   rt.Revoked,
		CreatedAt: rt.CreatedAt.UTC(),
		ExpiresAt: rt.ExpiresAt.UTC(),
	})
	return errors.Wrap(err, "inserting refresh token")
}

func (repo tokenRepository) GetRefreshToken(ctx context.Context, token string) (auth.RefreshToken, error) {
	var rt dbRefreshToken
	q := repo.db.Rebind(`SELECT token, user_id, parent, revoked, created_at, expires_at FROM refresh_tokens WHERE token = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &rt, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.RefreshToken{}, auth.ErrTokenNotFound
		}
		return auth.RefreshToken{}, errors.Wrap(err, "selecting refresh token")
	}
	return auth.RefreshToken{
		Token:     rt.Token,
		UserID:    rt.UserID,
		Parent:    rt.Parent,
		Revoked:   rt.Revoked,
		CreatedAt: rt.CreatedAt.UTC(),
		ExpiresAt: rt.ExpiresAt.UTC(),
	}, nil
}

func (repo tokenRepository) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	q := repo.db.Rebind(`UPDATE refresh_tokens SET revoked = ? WHERE token = ? AND revoked = ?`)
	res, err := repo.db.ExecContext(ctx, q, true, token, false)
	if err != nil {
		return false, errors.Wrap(err, "revoking refresh token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "revoking refresh token")
	}
	return n == 1, nil
}

func (repo tokenRepository) RevokeUserTokens(ctx context.Context, usrID string) error {
	q := repo.db.Rebind(`UPDATE refresh_tokens SET revoked = ? WHERE user_id = ? AND revoked = ?`)
	_, err := repo.db.ExecContext(ctx, q, true, usrID, false)
	return errors.Wrap(err, "revoking user tokens")
}
