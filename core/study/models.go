package study

// Homework statuses
const (
	StatusNotStarted    = "Not Started"
	StatusInProgress    = "In Progress"
	StatusNeedsRevision = "Needs Revision"
	StatusCompleted     = "Completed"
	StatusSubmitted     = "Submitted"
)

// Priorities
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// Calendar event types
const (
	EventTypeEvent       = "Event"
	EventTypeExam        = "Exam"
	EventTypeQuiz        = "Quiz"
	EventTypeHomeworkDue = "Homework Due"
	EventTypeProject     = "Project"
	EventTypeAssignment  = "Assignment"
)

// Grade types
const (
	GradeTypeExam       = "Exam"
	GradeTypeAssignment = "Assignment"
	GradeTypeQuiz       = "Quiz"
	GradeTypeProject    = "Project"
)

var (
	Statuses   = []string{StatusNotStarted, StatusInProgress, StatusNeedsRevision, StatusCompleted, StatusSubmitted}
	Priorities = []string{PriorityHigh, PriorityMedium, PriorityLow}
	EventTypes = []string{EventTypeEvent, EventTypeExam, EventTypeQuiz, EventTypeHomeworkDue, EventTypeProject, EventTypeAssignment}
	GradeTypes = []string{GradeTypeExam, GradeTypeAssignment, GradeTypeQuiz, GradeTypeProject}

	// Days and Periods make up the weekly timetable grid.
	Days      = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	Weekdays  = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	Periods   = []int{1, 2, 3, 4, 5, 6, 7, 8}
	TimeSlots = []string{
		"8:00-8:45", "8:45-9:30", "9:30-10:15", "10:15-11:00",
		"11:15-12:00", "12:00-12:45", "1:30-2:15", "2:15-3:00",
	}
)

// TimeSlot returns the default time range of period, or "" when period is outside the grid.
func TimeSlot(period int) string {
	if period < 1 || period > len(TimeSlots) {
		return ""
	}
	return TimeSlots[period-1]
}

// Dates are kept as the strings the backend stores ("2006-01-02" or "2006-01-02T15:04");
// see ParseDate for the accepted layouts.
type (
	Homework struct {
		ID             string `json:"id"`
		Subject        string `json:"subject"`
		Assignment     string `json:"assignment"`
		DueDate        string `json:"dueDate"`
		AssignedDate   string `json:"assignedDate"`
		Status         string `json:"status"`
		Priority       string `json:"priority"`
		Notes          string `json:"notes"`
		SubmissionLink string `json:"submissionLink,omitempty"`
	}

	CalendarEvent struct {
		ID                   string   `json:"id"`
		Date                 string   `json:"date"`
		Time                 string   `json:"time"`
		EventType            string   `json:"eventType"`
		Subject              string   `json:"subject"`
		Description          string   `json:"description"`
		Location             string   `json:"location"`
		ReminderSet          bool     `json:"reminderSet"`
		PreparationChecklist []string `json:"preparationChecklist"`
	}

	Grade struct {
		ID             string  `json:"id"`
		Subject        string  `json:"subject"`
		AssessmentName string  `json:"assessmentName"`
		Type           string  `json:"type"`
		MaxMarks       float64 `json:"maxMarks"`
		MarksObtained  float64 `json:"marksObtained"`
		Grade          string  `json:"grade"` // letter
		DateGraded     string  `json:"dateGraded"`
		Feedback       string  `json:"feedback"`
		Weight         float64 `json:"weight"`
	}

	// TimetableEntry is the class held by a (Day, Period) slot.
	TimetableEntry struct {
		ID        string `json:"id"`
		Day       string `json:"day"`
		Period    int    `json:"period"`
		Subject   string `json:"subject"`
		Teacher   string `json:"teacher"`
		Room      string `json:"room"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	}

	// TimetableSlot is the editable content of a timetable slot.
	TimetableSlot struct {
		Subject   string `json:"subject"`
		Teacher   string `json:"teacher"`
		Room      string `json:"room"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	}
)

func (hw Homework) entityID() string       { return hw.ID }
func (ev CalendarEvent) entityID() string  { return ev.ID }
func (g Grade) entityID() string           { return g.ID }
func (te TimetableEntry) entityID() string { return te.ID }

// IsActive reports whether hw still needs work.
func (hw Homework) IsActive() bool {
	return hw.Status != StatusCompleted && hw.Status != StatusSubmitted
}

// IsEmpty reports whether the slot holds no class: it then clears the slot instead of being stored.
func (ts *TimetableSlot) IsEmpty() bool {
	return ts == nil || (ts.Subject == "" && ts.Teacher == "" && ts.Room == "")
}

// Partial updates: nil fields are left untouched.
type (
	HomeworkPatch struct {
		Subject        *string `json:"subject,omitempty"`
		Assignment     *string `json:"assignment,omitempty"`
		DueDate        *string `json:"dueDate,omitempty"`
		AssignedDate   *string `json:"assignedDate,omitempty"`
		Status         *string `json:"status,omitempty" validate:"omitempty,hwstatus"`
		Priority       *string `json:"priority,omitempty" validate:"omitempty,priority"`
		Notes          *string `json:"notes,omitempty"`
		SubmissionLink *string `json:"submissionLink,omitempty" validate:"omitempty,url"`
	}

	CalendarEventPatch struct {
		Date                 *string   `json:"date,omitempty"`
		Time                 *string   `json:"time,omitempty"`
		EventType            *string   `json:"eventType,omitempty" validate:"omitempty,eventtype"`
		Subject              *string   `json:"subject,omitempty"`
		Description          *string   `json:"description,omitempty"`
		Location             *string   `json:"location,omitempty"`
		ReminderSet          *bool     `json:"reminderSet,omitempty"`
		PreparationChecklist *[]string `json:"preparationChecklist,omitempty"`
	}

	GradePatch struct {
		Subject        *string  `json:"subject,omitempty"`
		AssessmentName *string  `json:"assessmentName,omitempty"`
		Type           *string  `json:"type,omitempty" validate:"omitempty,gradetype"`
		MaxMarks       *float64 `json:"maxMarks,omitempty" validate:"omitempty,gt=0"`
		MarksObtained  *float64 `json:"marksObtained,omitempty" validate:"omitempty,gte=0"`
		Grade          *string  `json:"grade,omitempty"`
		DateGraded     *string  `json:"dateGraded,omitempty"`
		Feedback       *string  `json:"feedback,omitempty"`
		Weight         *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
	}
)

func (p HomeworkPatch) apply(hw Homework) Homework {
	setStr(&hw.Subject, p.Subject)
	setStr(&hw.Assignment, p.Assignment)
	setStr(&hw.DueDate, p.DueDate)
	setStr(&hw.AssignedDate, p.AssignedDate)
	setStr(&hw.Status, p.Status)
	setStr(&hw.Priority, p.Priority)
	setStr(&hw.Notes, p.Notes)
	setStr(&hw.SubmissionLink, p.SubmissionLink)
	return hw
}

func (p CalendarEventPatch) apply(ev CalendarEvent) CalendarEvent {
	setStr(&ev.Date, p.Date)
	setStr(&ev.Time, p.Time)
	setStr(&ev.EventType, p.EventType)
	setStr(&ev.Subject, p.Subject)
	setStr(&ev.Description, p.Description)
	setStr(&ev.Location, p.Location)
	if p.ReminderSet != nil {
		ev.ReminderSet = *p.ReminderSet
	}
	if p.PreparationChecklist != nil {
		ev.PreparationChecklist = append([]string{}, *p.PreparationChecklist...)
	}
	return ev
}

func (p GradePatch) apply(g Grade) Grade {
	setStr(&g.Subject, p.Subject)
	setStr(&g.AssessmentName, p.AssessmentName)
	setStr(&g.Type, p.Type)
	setFloat(&g.MaxMarks, p.MaxMarks)
	setFloat(&g.MarksObtained, p.MarksObtained)
	setStr(&g.Grade, p.Grade)
	setStr(&g.DateGraded, p.DateGraded)
	setStr(&g.Feedback, p.Feedback)
	setFloat(&g.Weight, p.Weight)
	return g
}

func (ts TimetableSlot) apply(te TimetableEntry) TimetableEntry {
	te.Subject = ts.Subject
	te.Teacher = ts.Teacher
	te.Room = ts.Room
	te.StartTime = ts.StartTime
	te.EndTime = ts.EndTime
	return te
}

func setStr(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }

// Float returns a pointer to f, for building patches.
func Float(f float64) *float64 { return &f }

// Bool returns a pointer to b, for building patches.
func Bool(b bool) *bool { return &b }
