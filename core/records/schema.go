// Package records holds the table whitelist served by the REST API and the owner policy applied
// to every statement.
package records

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/studyplanner/core"
)

type ColumnType int

const (
	TypeText ColumnType = iota
	TypeNumber
	TypeInt
	TypeBool
	TypeTextList // stored as a JSON array in a text column
	TypeTime
)

// Common columns
const (
	ColID        = "id"
	ColUserID    = "user_id"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
)

type Table struct {
	Name string
	// Owner is the column scoping rows to the authenticated user.
	Owner   string
	Columns map[string]ColumnType
	// Unique column sets, besides the primary key.
	Unique [][]string
}

// Column names sorted, for deterministic statements.
func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerManaged reports whether col may only be written by the server.
func (t Table) ServerManaged(col string) bool {
	return col == ColID || col == t.Owner || col == ColCreatedAt || col == ColUpdatedAt
}

func withCommon(cols map[string]ColumnType) map[string]ColumnType {
	cols[ColID] = TypeText
	cols[ColCreatedAt] = TypeTime
	cols[ColUpdatedAt] = TypeTime
	return cols
}

// Tables is the whitelist of tables the API exposes.
var Tables = map[string]Table{
	core.TableProfiles: {
		Name:  core.TableProfiles,
		Owner: ColID,
		Columns: withCommon(map[string]ColumnType{
			"email":     TypeText,
			"full_name": TypeText,
		}),
	},
	core.TableHomework: {
		Name:  core.TableHomework,
		Owner: ColUserID,
		Columns: withCommon(map[string]ColumnType{
			ColUserID:         TypeText,
			"subject":         TypeText,
			"assignment":      TypeText,
			"due_date":        TypeText,
			"assigned_date":   TypeText,
			"status":          TypeText,
			"priority":        TypeText,
			"notes":           TypeText,
			"submission_link": TypeText,
		}),
	},
	core.TableCalendarEvents: {
		Name:  core.TableCalendarEvents,
		Owner: ColUserID,
		Columns: withCommon(map[string]ColumnType{
			ColUserID:               TypeText,
			"date":                  TypeText,
			"time":                  TypeText,
			"event_type":            TypeText,
			"subject":               TypeText,
			"description":           TypeText,
			"location":              TypeText,
			"reminder_set":          TypeBool,
			"preparation_checklist": TypeTextList,
		}),
	},
	core.TableGrades: {
		Name:  core.TableGrades,
		Owner: ColUserID,
		Columns: withCommon(map[string]ColumnType{
			ColUserID:         TypeText,
			"subject":         TypeText,
			"assessment_name": TypeText,
			"type":            TypeText,
			"max_marks":       TypeNumber,
			"marks_obtained":  TypeNumber,
			"grade":           TypeText,
			"date_graded":     TypeText,
			"feedback":        TypeText,
			"weight":          TypeNumber,
		}),
	},
	core.TableTimetable: {
		Name:  core.TableTimetable,
		Owner: ColUserID,
		Columns: withCommon(map[string]ColumnType{
			ColUserID:    TypeText,
			"day":        TypeText,
			"period":     TypeInt,
			"subject":    TypeText,
			"teacher":    TypeText,
			"room":       TypeText,
			"start_time": TypeText,
			"end_time":   TypeText,
		}),
		Unique: [][]string{{ColUserID, "day", "period"}},
	},
}

func lookupTable(name string) (Table, error) {
	t, ok := Tables[name]
	if !ok {
		return Table{}, &core.BackendError{Code: core.CodeUnknownTable, Message: "relation \"" + name + "\" does not exist"}
	}
	return t, nil
}

func (t Table) unknownColumn(col string) error {
	return &core.BackendError{
		Code:    core.CodeUnknownColumn,
		Message: "column \"" + col + "\" of relation \"" + t.Name + "\" does not exist",
	}
}

func (t Table) invalidValue(col string, v interface{}) error {
	return &core.BackendError{
		Code:    core.CodeValidation,
		Message: "invalid value for column \"" + col + "\": " + strconv.Quote(stringify(v)),
	}
}

// Coerce converts a decoded JSON value into the Go type stored for col.
// nil is kept as nil (SQL NULL).
func (t Table) Coerce(col string, v interface{}) (interface{}, error) {
	typ, ok := t.Columns[col]
	if !ok {
		return nil, t.unknownColumn(col)
	}
	if v == nil {
		return nil, nil
	}

	switch typ {
	case TypeText:
		switch val := v.(type) {
		case string:
			return val, nil
		case float64, int, int64, bool, json.Number:
			return stringify(val), nil
		}
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case TypeInt:
		if f, ok := toFloat(v); ok && f == math.Trunc(f) {
			return int64(f), nil
		}
	case TypeBool:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			if b, err := strconv.ParseBool(val); err == nil {
				return b, nil
			}
		}
	case TypeTextList:
		if items, ok := toStrings(v); ok {
			return items, nil
		}
	case TypeTime:
		switch val := v.(type) {
		case time.Time:
			return val.UTC(), nil
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, val); err == nil {
				return ts.UTC(), nil
			}
		}
	}
	return nil, t.invalidValue(col, v)
}

// Normalize converts a value read back from storage into its JSON shape.
func (t Table) Normalize(col string, v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		if t.Columns[col] == TypeTextList {
			return []string{}
		}
		return nil
	}

	switch t.Columns[col] {
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			return f
		}
	case TypeInt:
		if f, ok := toFloat(v); ok {
			return int64(f)
		}
	case TypeBool:
		switch val := v.(type) {
		case int64:
			return val != 0
		case string:
			b, _ := strconv.ParseBool(val)
			return b
		}
	case TypeTextList:
		if items, ok := toStrings(v); ok {
			return items
		}
		return []string{}
	case TypeTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339Nano)
		}
	}
	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func toStrings(v interface{}) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return append([]string{}, val...), true
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			items = append(items, s)
		}
		return items, true
	case string:
		var items []string
		if err := json.Unmarshal([]byte(val), &items); err != nil {
			return nil, false
		}
		if items == nil {
			items = []string{}
		}
		return items, true
	}
	return nil, false
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	}
	b, _ := json.Marshal(v)
	return string(b)
}
