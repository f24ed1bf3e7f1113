package inmemdb

import (
	"context"

	"github.com/trezcool/studyplanner/core/auth"
)

type tokenRepository struct {
	db *tokenTable
}

var _ auth.TokenRepository = (*tokenRepository)(nil) // interface compliance check

func NewTokenRepository(db *DB) auth.TokenRepository {
	return &tokenRepository{db: db.token}
}

func (repo *tokenRepository) CreateRefreshToken(_ context.Context, rt auth.RefreshToken) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.table[rt.Token] = &rt
	return nil
}

func (repo *tokenRepository) GetRefreshToken(_ context.Context, token string) (auth.RefreshToken, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	if rt, ok := repo.db.table[token]; ok {
		return *rt, nil
	}
	return auth.RefreshToken{}, auth.ErrTokenNotFound
}

func (repo *tokenRepository) RevokeRefreshToken(_ context.Context, token string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	rt, ok := repo.db.table[token]
	if !ok || rt.Revoked {
		return false, nil
	}
	rt.Revoked = true
	return true, nil
}

func (repo *tokenRepository) RevokeUserTokens(_ context.Context, usrID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, rt := range repo.db.table {
		if rt.UserID == usrID {
			rt.Revoked = true
		}
	}
	return nil
}
