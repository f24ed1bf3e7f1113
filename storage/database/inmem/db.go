// Package inmemdb keeps every repository in process memory; for tests and demos.
package inmemdb

import (
	"sync"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
	"github.com/trezcool/studyplanner/core/user"
)

type (
	DB struct {
		user    *userTable
		token   *tokenTable
		records *recordTables
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	tokenTable struct {
		mutex sync.RWMutex
		table map[string]*auth.RefreshToken
	}

	recordTables struct {
		mutex  sync.RWMutex
		tables map[string][]core.Row
	}
)

func Open() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		token:   &tokenTable{table: make(map[string]*auth.RefreshToken)},
		records: &recordTables{tables: make(map[string][]core.Row)},
	}
}
