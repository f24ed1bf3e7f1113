package sqlxdb

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/records"
)

type recordRepository struct {
	db sqlx.ExtContext
}

var _ records.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db sqlx.ExtContext) records.Repository {
	return &recordRepository{db: db}
}

func (repo recordRepository) Select(ctx context.Context, t records.Table, filter core.Filter, order []core.DBOrdering, limit int) ([]core.Row, error) {
	where, args, err := whereClause(t, filter)
	if err != nil {
		return nil, err
	}

	var q strings.Builder
	q.WriteString("SELECT " + quoteAll(t.ColumnNames()) + " FROM " + quote(t.Name) + where)
	if len(order) > 0 {
		terms := make([]string, 0, len(order))
		for _, ord := range order {
			direction := "DESC"
			if ord.Ascending {
				direction = "ASC"
			}
			// NULLs last in both engines
			terms = append(terms, quote(ord.Field)+" IS NULL, "+quote(ord.Field)+" "+direction)
		}
		q.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if limit > 0 {
		q.WriteString(" LIMIT " + strconv.Itoa(limit))
	}
	return repo.query(ctx, q.String(), args...)
}

func (repo recordRepository) Insert(ctx context.Context, t records.Table, row core.Row) (core.Row, error) {
	cols := core.Filter(row).Keys()
	args := make([]interface{}, 0, len(cols))
	for _, col := range cols {
		v, err := dbValue(t, col, row[col])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	q := "INSERT INTO " + quote(t.Name) + " (" + quoteAll(cols) + ") VALUES (" + placeholders(len(cols)) + ")" +
		" RETURNING " + quoteAll(t.ColumnNames())
	rows, err := repo.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("insert returned no row")
	}
	return rows[0], nil
}

func (repo recordRepository) Update(ctx context.Context, t records.Table, filter core.Filter, partial core.Row) ([]core.Row, error) {
	cols := core.Filter(partial).Keys()
	sets := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols)+len(filter))
	for _, col := range cols {
		v, err := dbValue(t, col, partial[col])
		if err != nil {
			return nil, err
		}
		sets = append(sets, quote(col)+" = ?")
		args = append(args, v)
	}
	where, whereArgs, err := whereClause(t, filter)
	if err != nil {
		return nil, err
	}

	q := "UPDATE " + quote(t.Name) + " SET " + strings.Join(sets, ", ") + where +
		" RETURNING " + quoteAll(t.ColumnNames())
	return repo.query(ctx, q, append(args, whereArgs...)...)
}

func (repo recordRepository) Delete(ctx context.Context, t records.Table, filter core.Filter) ([]core.Row, error) {
	where, args, err := whereClause(t, filter)
	if err != nil {
		return nil, err
	}
	q := "DELETE FROM " + quote(t.Name) + where + " RETURNING " + quoteAll(t.ColumnNames())
	return repo.query(ctx, q, args...)
}

func (repo recordRepository) Upsert(ctx context.Context, t records.Table, row core.Row, owner core.Filter) (core.Row, error) {
	cols := core.Filter(row).Keys()
	args := make([]interface{}, 0, len(cols)+len(owner))
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		v, err := dbValue(t, col, row[col])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		if col != records.ColID && col != records.ColCreatedAt {
			sets = append(sets, quote(col)+" = excluded."+quote(col))
		}
	}

	conds := make([]string, 0, len(owner))
	for _, col := range owner.Keys() {
		conds = append(conds, quote(t.Name)+"."+quote(col)+" = ?")
		args = append(args, owner[col])
	}

	q := "INSERT INTO " + quote(t.Name) + " (" + quoteAll(cols) + ") VALUES (" + placeholders(len(cols)) + ")" +
		" ON CONFLICT (" + quote(records.ColID) + ") DO UPDATE SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(conds, " AND ") +
		" RETURNING " + quoteAll(t.ColumnNames())
	rows, err := repo.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	// the conflicting row belongs to someone else
	if len(rows) == 0 {
		return nil, records.ErrForbidden
	}
	return rows[0], nil
}

func (repo recordRepository) query(ctx context.Context, q string, args ...interface{}) ([]core.Row, error) {
	rows, err := repo.db.QueryxContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, records.ErrConflict
		}
		return nil, errors.Wrap(err, "executing statement")
	}
	defer func() { _ = rows.Close() }()

	out := make([]core.Row, 0)
	for rows.Next() {
		r := make(map[string]interface{})
		if err = rows.MapScan(r); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		if isUniqueViolation(err) {
			return nil, records.ErrConflict
		}
		return nil, errors.Wrap(err, "reading rows")
	}
	return out, nil
}

func whereClause(t records.Table, filter core.Filter) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filter))
	args := make([]interface{}, 0, len(filter))
	for _, col := range filter.Keys() {
		v, err := dbValue(t, col, filter[col])
		if err != nil {
			return "", nil, err
		}
		if v == nil {
			conds = append(conds, quote(col)+" IS NULL")
			continue
		}
		conds = append(conds, quote(col)+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// dbValue converts a coerced value into a driver value.
func dbValue(t records.Table, col string, v interface{}) (interface{}, error) {
	if _, ok := t.Columns[col]; !ok {
		return nil, errors.Errorf("unknown column %q", col)
	}
	if items, ok := v.([]string); ok {
		if items == nil {
			items = []string{}
		}
		b, err := json.Marshal(items)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding column %q", col)
		}
		return string(b), nil
	}
	return v, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
