package study

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/trezcool/studyplanner/core"
)

// Backend rows use snake_case columns; these functions map them to and from the entities.

func homeworkFromRow(r core.Row) Homework {
	return Homework{
		ID:             rowString(r, "id"),
		Subject:        rowString(r, "subject"),
		Assignment:     rowString(r, "assignment"),
		DueDate:        rowString(r, "due_date"),
		AssignedDate:   rowString(r, "assigned_date"),
		Status:         rowString(r, "status"),
		Priority:       rowString(r, "priority"),
		Notes:          rowString(r, "notes"),
		SubmissionLink: rowString(r, "submission_link"),
	}
}

func homeworkToRow(hw Homework) core.Row {
	r := core.Row{
		"subject":       hw.Subject,
		"assignment":    hw.Assignment,
		"due_date":      hw.DueDate,
		"assigned_date": hw.AssignedDate,
		"status":        hw.Status,
		"priority":      hw.Priority,
		"notes":         hw.Notes,
	}
	if hw.SubmissionLink != "" {
		r["submission_link"] = hw.SubmissionLink
	}
	return r
}

func homeworkPatchToRow(p HomeworkPatch) core.Row {
	r := core.Row{}
	putStr(r, "subject", p.Subject)
	putStr(r, "assignment", p.Assignment)
	putStr(r, "due_date", p.DueDate)
	putStr(r, "assigned_date", p.AssignedDate)
	putStr(r, "status", p.Status)
	putStr(r, "priority", p.Priority)
	putStr(r, "notes", p.Notes)
	putStr(r, "submission_link", p.SubmissionLink)
	return r
}

func calendarEventFromRow(r core.Row) CalendarEvent {
	return CalendarEvent{
		ID:                   rowString(r, "id"),
		Date:                 rowString(r, "date"),
		Time:                 rowString(r, "time"),
		EventType:            rowString(r, "event_type"),
		Subject:              rowString(r, "subject"),
		Description:          rowString(r, "description"),
		Location:             rowString(r, "location"),
		ReminderSet:          rowBool(r, "reminder_set"),
		PreparationChecklist: rowStrings(r, "preparation_checklist"),
	}
}

func calendarEventToRow(ev CalendarEvent) core.Row {
	checklist := ev.PreparationChecklist
	if checklist == nil {
		checklist = []string{}
	}
	return core.Row{
		"date":                  ev.Date,
		"time":                  ev.Time,
		"event_type":            ev.EventType,
		"subject":               ev.Subject,
		"description":           ev.Description,
		"location":              ev.Location,
		"reminder_set":          ev.ReminderSet,
		"preparation_checklist": checklist,
	}
}

func calendarEventPatchToRow(p CalendarEventPatch) core.Row {
	r := core.Row{}
	putStr(r, "date", p.Date)
	putStr(r, "time", p.Time)
	putStr(r, "event_type", p.EventType)
	putStr(r, "subject", p.Subject)
	putStr(r, "description", p.Description)
	putStr(r, "location", p.Location)
	if p.ReminderSet != nil {
		r["reminder_set"] = *p.ReminderSet
	}
	if p.PreparationChecklist != nil {
		r["preparation_checklist"] = append([]string{}, *p.PreparationChecklist...)
	}
	return r
}

func gradeFromRow(r core.Row) Grade {
	return Grade{
		ID:             rowString(r, "id"),
		Subject:        rowString(r, "subject"),
		AssessmentName: rowString(r, "assessment_name"),
		Type:           rowString(r, "type"),
		MaxMarks:       rowFloat(r, "max_marks"),
		MarksObtained:  rowFloat(r, "marks_obtained"),
		Grade:          rowString(r, "grade"),
		DateGraded:     rowString(r, "date_graded"),
		Feedback:       rowString(r, "feedback"),
		Weight:         rowFloat(r, "weight"),
	}
}

func gradeToRow(g Grade) core.Row {
	return core.Row{
		"subject":         g.Subject,
		"assessment_name": g.AssessmentName,
		"type":            g.Type,
		"max_marks":       g.MaxMarks,
		"marks_obtained":  g.MarksObtained,
		"grade":           g.Grade,
		"date_graded":     g.DateGraded,
		"feedback":        g.Feedback,
		"weight":          g.Weight,
	}
}

func gradePatchToRow(p GradePatch) core.Row {
	r := core.Row{}
	putStr(r, "subject", p.Subject)
	putStr(r, "assessment_name", p.AssessmentName)
	putStr(r, "type", p.Type)
	putFloat(r, "max_marks", p.MaxMarks)
	putFloat(r, "marks_obtained", p.MarksObtained)
	putStr(r, "grade", p.Grade)
	putStr(r, "date_graded", p.DateGraded)
	putStr(r, "feedback", p.Feedback)
	putFloat(r, "weight", p.Weight)
	return r
}

func timetableEntryFromRow(r core.Row) TimetableEntry {
	return TimetableEntry{
		ID:        rowString(r, "id"),
		Day:       rowString(r, "day"),
		Period:    rowInt(r, "period"),
		Subject:   rowString(r, "subject"),
		Teacher:   rowString(r, "teacher"),
		Room:      rowString(r, "room"),
		StartTime: rowString(r, "start_time"),
		EndTime:   rowString(r, "end_time"),
	}
}

func timetableSlotToRow(ts TimetableSlot) core.Row {
	return core.Row{
		"subject":    ts.Subject,
		"teacher":    ts.Teacher,
		"room":       ts.Room,
		"start_time": ts.StartTime,
		"end_time":   ts.EndTime,
	}
}

func putStr(r core.Row, col string, v *string) {
	if v != nil {
		r[col] = *v
	}
}

func putFloat(r core.Row, col string, v *float64) {
	if v != nil {
		r[col] = *v
	}
}

// Row values come either from decoded JSON (string, float64, bool, []interface{})
// or straight from a database driver, so the readers below are lenient.

func rowString(r core.Row, col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func rowFloat(r core.Row, col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	default:
		return 0
	}
}

func rowInt(r core.Row, col string) int {
	return int(math.Round(rowFloat(r, col)))
}

func rowBool(r core.Row, col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func rowStrings(r core.Row, col string) []string {
	switch v := r[col].(type) {
	case []string:
		return append([]string{}, v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
		return []string{}
	case []byte:
		var out []string
		if err := json.Unmarshal(v, &out); err == nil {
			return out
		}
		return []string{}
	default:
		return []string{}
	}
}
