package records

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/trezcool/studyplanner/core"
)

var (
	// errors
	ErrConflict = &core.BackendError{
		Status:  http.StatusConflict,
		Code:    core.CodeConflict,
		Message: "duplicate key value violates unique constraint",
	}
	ErrForbidden = &core.BackendError{
		Status:  http.StatusForbidden,
		Code:    "42501",
		Message: "new row violates row-level security policy",
	}
)

type (
	// Repository stores rows of whitelisted tables. Rows and filters hold already coerced values;
	// returned rows hold raw stored values, normalized by the Service.
	Repository interface {
		Select(ctx context.Context, t Table, filter core.Filter, order []core.DBOrdering, limit int) ([]core.Row, error)
		// Insert fails with ErrConflict on a primary key or unique violation.
		Insert(ctx context.Context, t Table, row core.Row) (core.Row, error)
		// Update fails with ErrConflict on a unique violation and returns the updated rows.
		Update(ctx context.Context, t Table, filter core.Filter, partial core.Row) ([]core.Row, error)
		Delete(ctx context.Context, t Table, filter core.Filter) ([]core.Row, error)
		// Upsert merges row into the row sharing its id, if that row matches owner; it fails with
		// ErrForbidden when the id belongs to another owner.
		Upsert(ctx context.Context, t Table, row core.Row, owner core.Filter) (core.Row, error)
	}

	// Service applies the owner policy: every statement is scoped to the authenticated user,
	// whatever the caller asked for.
	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Select(ctx context.Context, usrID, table string, q core.Query) ([]core.Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	filter, err := svc.ownedFilter(t, usrID, q.Filter)
	if err != nil {
		return nil, err
	}
	for _, ord := range q.Order {
		if _, ok := t.Columns[ord.Field]; !ok {
			return nil, t.unknownColumn(ord.Field)
		}
	}
	if q.Limit < 0 {
		q.Limit = 0
	}

	rows, err := svc.repo.Select(ctx, t, filter, q.Order, q.Limit)
	if err != nil {
		return nil, err
	}
	return normalizeRows(t, rows), nil
}

func (svc *Service) Insert(ctx context.Context, usrID, table string, row core.Row) (core.Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	values, err := svc.newRow(t, usrID, row, true)
	if err != nil {
		return nil, err
	}

	created, err := svc.repo.Insert(ctx, t, values)
	if err != nil {
		return nil, err
	}
	return normalizeRow(t, created), nil
}

// Update applies partial to the rows matching filter; server-managed columns are ignored.
func (svc *Service) Update(ctx context.Context, usrID, table string, filter core.Filter, partial core.Row) ([]core.Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	owned, err := svc.ownedFilter(t, usrID, filter)
	if err != nil {
		return nil, err
	}

	values := make(core.Row, len(partial)+1)
	for col, v := range partial {
		if t.ServerManaged(col) {
			continue
		}
		if values[col], err = t.Coerce(col, v); err != nil {
			return nil, err
		}
	}
	if len(values) == 0 {
		return []core.Row{}, nil
	}
	values[ColUpdatedAt] = core.NowUTC()

	rows, err := svc.repo.Update(ctx, t, owned, values)
	if err != nil {
		return nil, err
	}
	return normalizeRows(t, rows), nil
}

func (svc *Service) Delete(ctx context.Context, usrID, table string, filter core.Filter) ([]core.Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	owned, err := svc.ownedFilter(t, usrID, filter)
	if err != nil {
		return nil, err
	}

	rows, err := svc.repo.Delete(ctx, t, owned)
	if err != nil {
		return nil, err
	}
	return normalizeRows(t, rows), nil
}

// Upsert inserts row, or merges it into the existing row with the same id.
func (svc *Service) Upsert(ctx context.Context, usrID, table string, row core.Row) (core.Row, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	values, err := svc.newRow(t, usrID, row, false)
	if err != nil {
		return nil, err
	}

	saved, err := svc.repo.Upsert(ctx, t, values, core.Filter{t.Owner: usrID})
	if err != nil {
		return nil, err
	}
	return normalizeRow(t, saved), nil
}

// ownedFilter coerces filter and pins the owner column to usrID.
func (svc *Service) ownedFilter(t Table, usrID string, filter core.Filter) (core.Filter, error) {
	owned := make(core.Filter, len(filter)+1)
	for col, v := range filter {
		coerced, err := t.Coerce(col, v)
		if err != nil {
			return nil, err
		}
		owned[col] = coerced
	}
	owned[t.Owner] = usrID
	return owned, nil
}

// newRow coerces row into a row owned by usrID. complete fills the missing columns with defaults.
func (svc *Service) newRow(t Table, usrID string, row core.Row, complete bool) (core.Row, error) {
	values := make(core.Row, len(t.Columns))
	for col, v := range row {
		coerced, err := t.Coerce(col, v)
		if err != nil {
			return nil, err
		}
		values[col] = coerced
	}

	id, _ := values[ColID].(string)
	switch {
	case t.Owner == ColID:
		if id != "" && id != usrID {
			return nil, ErrForbidden
		}
		id = usrID
	case id == "":
		id = uuid.NewString()
	default:
		if _, err := uuid.Parse(id); err != nil {
			return nil, t.invalidValue(ColID, id)
		}
	}
	values[ColID] = id
	values[t.Owner] = usrID

	now := core.NowUTC()
	values[ColCreatedAt] = now
	values[ColUpdatedAt] = now

	if complete {
		for col, typ := range t.Columns {
			if _, ok := values[col]; !ok {
				values[col] = zeroValue(typ)
			}
		}
	}
	return values, nil
}

// zeroValue is the default of columns missing from an inserted row.
func zeroValue(typ ColumnType) interface{} {
	if typ == TypeTextList {
		return []string{}
	}
	return nil
}

func normalizeRow(t Table, row core.Row) core.Row {
	out := make(core.Row, len(row))
	for col, v := range row {
		if _, ok := t.Columns[col]; ok {
			out[col] = t.Normalize(col, v)
		}
	}
	return out
}

func normalizeRows(t Table, rows []core.Row) []core.Row {
	out := make([]core.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, normalizeRow(t, r))
	}
	return out
}
