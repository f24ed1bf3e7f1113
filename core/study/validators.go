package study

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/studyplanner/core"
)

var (
	hwStatusTag  = "hwstatus"
	hwStatusText = "{0} must be one of: Not Started, In Progress, Needs Revision, Completed, Submitted"

	priorityTag  = "priority"
	priorityText = "{0} must be one of: High, Medium, Low"

	eventTypeTag  = "eventtype"
	eventTypeText = "{0} must be one of: Event, Exam, Quiz, Homework Due, Project, Assignment"

	gradeTypeTag  = "gradetype"
	gradeTypeText = "{0} must be one of: Exam, Assignment, Quiz, Project"

	weekdayTag  = "weekday"
	weekdayText = "{0} must be a day of the week"

	dateTag  = "studydate"
	dateText = "{0} must be a date (YYYY-MM-DD) optionally followed by a time"

	clockTag   = "clock"
	clockText  = "{0} must be a time of day (HH:MM)"
	clockRegex = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

	examSubjectTag  = "examsubject"
	examSubjectText = "subject is required for exams"

	marksMaxTag  = "marksmax"
	marksMaxText = "marks obtained cannot exceed max marks"
)

func init() {
	for tag, fn := range map[string]validator.Func{
		hwStatusTag:  oneOf(Statuses),
		priorityTag:  oneOf(Priorities),
		eventTypeTag: oneOf(EventTypes),
		gradeTypeTag: oneOf(GradeTypes),
		weekdayTag:   oneOf(Weekdays),
		dateTag:      dateValidation,
		clockTag:     clockValidation,
	} {
		_ = core.Validate.RegisterValidation(tag, fn)
	}
	core.Validate.RegisterStructValidation(eventStructValidation, NewCalendarEvent{})
	core.Validate.RegisterStructValidation(gradeStructValidation, NewGrade{})

	for tag, text := range map[string]string{
		hwStatusTag:    hwStatusText,
		priorityTag:    priorityText,
		eventTypeTag:   eventTypeText,
		gradeTypeTag:   gradeTypeText,
		weekdayTag:     weekdayText,
		dateTag:        dateText,
		clockTag:       clockText,
		examSubjectTag: examSubjectText,
		marksMaxTag:    marksMaxText,
	} {
		core.RegisterCustomTranslation(core.Validate, core.Translator, tag, text)
	}
}

// Custom Validators

// oneOf accepts the exact values in choices. validator's own oneof splits on spaces,
// which rules out values like "Not Started".
func oneOf(choices []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, c := range choices {
			if v == c {
				return true
			}
		}
		return false
	}
}

func dateValidation(fl validator.FieldLevel) bool {
	_, ok := ParseDate(fl.Field().String())
	return ok
}

func clockValidation(fl validator.FieldLevel) bool {
	return clockRegex.MatchString(fl.Field().String())
}

// eventStructValidation requires a subject on exams.
func eventStructValidation(sl validator.StructLevel) {
	ev := sl.Current().Interface().(NewCalendarEvent)
	if ev.EventType == EventTypeExam && ev.Subject == "" {
		sl.ReportError(ev.Subject, "subject", "Subject", examSubjectTag, "")
	}
}

// gradeStructValidation enforces 0 <= marksObtained <= maxMarks.
func gradeStructValidation(sl validator.StructLevel) {
	g := sl.Current().Interface().(NewGrade)
	if g.MarksObtained > g.MaxMarks {
		sl.ReportError(g.MarksObtained, "marksObtained", "MarksObtained", marksMaxTag, "")
	}
}
