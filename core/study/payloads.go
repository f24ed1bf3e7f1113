package study

import (
	"github.com/trezcool/studyplanner/core"
)

// NewHomework contains the information needed to create a Homework.
type NewHomework struct {
	Subject        string `json:"subject" validate:"required"`
	Assignment     string `json:"assignment" validate:"required"`
	DueDate        string `json:"dueDate" validate:"required,studydate"`
	AssignedDate   string `json:"assignedDate" validate:"omitempty,studydate"`
	Status         string `json:"status" validate:"required,hwstatus"`
	Priority       string `json:"priority" validate:"required,priority"`
	Notes          string `json:"notes"`
	SubmissionLink string `json:"submissionLink" validate:"omitempty,url"`
}

func (nh *NewHomework) Validate() error {
	nh.Subject = core.CleanString(nh.Subject)
	nh.Assignment = core.CleanString(nh.Assignment)
	nh.DueDate = core.CleanString(nh.DueDate)
	nh.AssignedDate = core.CleanString(nh.AssignedDate)
	nh.Notes = core.CleanString(nh.Notes)
	nh.SubmissionLink = core.CleanString(nh.SubmissionLink)
	if nh.Status == "" {
		nh.Status = StatusNotStarted
	}
	if nh.Priority == "" {
		nh.Priority = PriorityMedium
	}
	return core.TranslateValidationErrors(core.Validate.Struct(nh))
}

func (nh NewHomework) Homework() Homework {
	return Homework{
		Subject:        nh.Subject,
		Assignment:     nh.Assignment,
		DueDate:        nh.DueDate,
		AssignedDate:   nh.AssignedDate,
		Status:         nh.Status,
		Priority:       nh.Priority,
		Notes:          nh.Notes,
		SubmissionLink: nh.SubmissionLink,
	}
}

// NewCalendarEvent contains the information needed to create a CalendarEvent.
// Exams also require a Subject.
type NewCalendarEvent struct {
	Date                 string   `json:"date" validate:"required,studydate"`
	Time                 string   `json:"time" validate:"omitempty,clock"`
	EventType            string   `json:"eventType" validate:"required,eventtype"`
	Subject              string   `json:"subject"`
	Description          string   `json:"description"`
	Location             string   `json:"location"`
	ReminderSet          bool     `json:"reminderSet"`
	PreparationChecklist []string `json:"preparationChecklist"`
}

func (ne *NewCalendarEvent) Validate() error {
	ne.Date = core.CleanString(ne.Date)
	ne.Time = core.CleanString(ne.Time)
	ne.Subject = core.CleanString(ne.Subject)
	ne.Description = core.CleanString(ne.Description)
	ne.Location = core.CleanString(ne.Location)
	if ne.EventType == "" {
		ne.EventType = EventTypeEvent
	}
	checklist := make([]string, 0, len(ne.PreparationChecklist))
	for _, item := range ne.PreparationChecklist {
		if item = core.CleanString(item); item != "" {
			checklist = append(checklist, item)
		}
	}
	ne.PreparationChecklist = checklist
	return core.TranslateValidationErrors(core.Validate.Struct(ne))
}

func (ne NewCalendarEvent) CalendarEvent() CalendarEvent {
	return CalendarEvent{
		Date:                 ne.Date,
		Time:                 ne.Time,
		EventType:            ne.EventType,
		Subject:              ne.Subject,
		Description:          ne.Description,
		Location:             ne.Location,
		ReminderSet:          ne.ReminderSet,
		PreparationChecklist: append([]string{}, ne.PreparationChecklist...),
	}
}

// NewGrade contains the information needed to record a Grade.
// MarksObtained may not exceed MaxMarks.
type NewGrade struct {
	Subject        string  `json:"subject" validate:"required"`
	AssessmentName string  `json:"assessmentName" validate:"required"`
	Type           string  `json:"type" validate:"required,gradetype"`
	MaxMarks       float64 `json:"maxMarks" validate:"gt=0"`
	MarksObtained  float64 `json:"marksObtained" validate:"gte=0"`
	DateGraded     string  `json:"dateGraded" validate:"required,studydate"`
	Feedback       string  `json:"feedback"`
	Weight         float64 `json:"weight" validate:"gte=0"`
}

func (ng *NewGrade) Validate() error {
	ng.Subject = core.CleanString(ng.Subject)
	ng.AssessmentName = core.CleanString(ng.AssessmentName)
	ng.DateGraded = core.CleanString(ng.DateGraded)
	ng.Feedback = core.CleanString(ng.Feedback)
	return core.TranslateValidationErrors(core.Validate.Struct(ng))
}

// Grade builds the Grade, deriving its letter from the marks.
func (ng NewGrade) Grade() Grade {
	return Grade{
		Subject:        ng.Subject,
		AssessmentName: ng.AssessmentName,
		Type:           ng.Type,
		MaxMarks:       ng.MaxMarks,
		MarksObtained:  ng.MarksObtained,
		Grade:          LetterGrade(Percentage(ng.MarksObtained, ng.MaxMarks)),
		DateGraded:     ng.DateGraded,
		Feedback:       ng.Feedback,
		Weight:         ng.Weight,
	}
}

// SlotUpdate addresses a timetable slot; a nil or empty Slot clears it.
type SlotUpdate struct {
	Day    string         `json:"day" validate:"required,weekday"`
	Period int            `json:"period" validate:"min=1,max=8"`
	Slot   *TimetableSlot `json:"slot" validate:"-"`
}

func (su *SlotUpdate) Validate() error {
	su.Day = core.CleanString(su.Day)
	if su.Slot != nil {
		su.Slot.Subject = core.CleanString(su.Slot.Subject)
		su.Slot.Teacher = core.CleanString(su.Slot.Teacher)
		su.Slot.Room = core.CleanString(su.Slot.Room)
		su.Slot.StartTime = core.CleanString(su.Slot.StartTime)
		su.Slot.EndTime = core.CleanString(su.Slot.EndTime)
		if !su.Slot.IsEmpty() && su.Slot.StartTime == "" {
			su.Slot.StartTime = TimeSlot(su.Period)
		}
	}
	return core.TranslateValidationErrors(core.Validate.Struct(su))
}

// ValidatePatch checks the fields set on a HomeworkPatch, CalendarEventPatch or GradePatch.
func ValidatePatch(patch interface{}) error {
	return core.TranslateValidationErrors(core.Validate.Struct(patch))
}
