package inmemdb

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/records"
)

type recordRepository struct {
	db *recordTables
}

var _ records.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) records.Repository {
	return &recordRepository{db: db.records}
}

func (repo *recordRepository) Select(_ context.Context, t records.Table, filter core.Filter, order []core.DBOrdering, limit int) ([]core.Row, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]core.Row, 0)
	for _, r := range repo.db.tables[t.Name] {
		if matches(r, filter) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, ord := range order {
			a, b := out[i][ord.Field], out[j][ord.Field]
			// NULLs last whatever the direction
			if (a == nil) != (b == nil) {
				return b == nil
			}
			if c := compare(a, b); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return false
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (repo *recordRepository) Insert(_ context.Context, t records.Table, row core.Row) (core.Row, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.insert(t, row)
}

func (repo *recordRepository) insert(t records.Table, row core.Row) (core.Row, error) {
	created := make(core.Row, len(t.Columns))
	for col := range t.Columns {
		created[col] = nil
	}
	for col, v := range row {
		created[col] = v
	}
	if repo.conflicts(t, created, nil) {
		return nil, records.ErrConflict
	}
	repo.db.tables[t.Name] = append(repo.db.tables[t.Name], created)
	return created.Clone(), nil
}

func (repo *recordRepository) Update(_ context.Context, t records.Table, filter core.Filter, partial core.Row) ([]core.Row, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var targets []core.Row
	for _, r := range repo.db.tables[t.Name] {
		if matches(r, filter) {
			targets = append(targets, r)
		}
	}
	// a failing statement changes no row
	for _, r := range targets {
		updated := r.Clone()
		for col, v := range partial {
			updated[col] = v
		}
		if repo.conflicts(t, updated, r[records.ColID]) {
			return nil, records.ErrConflict
		}
	}

	out := make([]core.Row, 0, len(targets))
	for _, r := range targets {
		for col, v := range partial {
			r[col] = v
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (repo *recordRepository) Delete(_ context.Context, t records.Table, filter core.Filter) ([]core.Row, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rows := repo.db.tables[t.Name]
	kept := make([]core.Row, 0, len(rows))
	deleted := make([]core.Row, 0)
	for _, r := range rows {
		if matches(r, filter) {
			deleted = append(deleted, r.Clone())
		} else {
			kept = append(kept, r)
		}
	}
	repo.db.tables[t.Name] = kept
	return deleted, nil
}

func (repo *recordRepository) Upsert(_ context.Context, t records.Table, row core.Row, owner core.Filter) (core.Row, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, r := range repo.db.tables[t.Name] {
		if r[records.ColID] != row[records.ColID] {
			continue
		}
		if !matches(r, owner) {
			return nil, records.ErrForbidden
		}
		for col, v := range row {
			if col != records.ColCreatedAt {
				r[col] = v
			}
		}
		return r.Clone(), nil
	}
	return repo.insert(t, row)
}

// conflicts reports whether row collides with another row (other than selfID) on the primary
// key or a unique column set.
func (repo *recordRepository) conflicts(t records.Table, row core.Row, selfID interface{}) bool {
	for _, r := range repo.db.tables[t.Name] {
		if selfID != nil && r[records.ColID] == selfID {
			continue
		}
		if r[records.ColID] == row[records.ColID] {
			return true
		}
		for _, cols := range t.Unique {
			same := true
			for _, col := range cols {
				if !reflect.DeepEqual(r[col], row[col]) {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

func matches(r core.Row, filter core.Filter) bool {
	for col, v := range filter {
		if !reflect.DeepEqual(r[col], v) {
			return false
		}
	}
	return true
}

// compare orders non-NULL values of the same column.
func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp(x < y, x > y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp(x < y, x > y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp(x < y, x > y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp(!x && y, x && !y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return cmp(x.Before(y), x.After(y))
		}
	}
	return 0
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}
