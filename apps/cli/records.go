package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/trezcool/studyplanner/core/study"
)

// Homework

func (cli *commandLine) homework(ctx context.Context, args []string) error {
	action, args, err := cli.subcommand("homework", args, "list", "add", "status", "delete")
	if err != nil {
		return err
	}
	if _, err = cli.p.requireUser(); err != nil {
		return err
	}

	switch action {
	case "list":
		fs := cli.flagSet("homework list")
		active := fs.Bool("active", false, "Only list homework that still needs work.")
		if err = fs.Parse(args); err != nil {
			return err
		}
		homework := cli.p.store.Homework()
		if *active {
			filtered := homework[:0]
			for _, hw := range homework {
				if hw.IsActive() {
					filtered = append(filtered, hw)
				}
			}
			homework = filtered
		}
		renderHomework(cli.out, homework, cli.now())
		return nil

	case "add":
		fs := cli.flagSet("homework add")
		var nh study.NewHomework
		fs.StringVar(&nh.Subject, "subject", "", "Subject (required).")
		fs.StringVar(&nh.Assignment, "assignment", "", "What to do (required).")
		fs.StringVar(&nh.DueDate, "due", "", "Due date, YYYY-MM-DD[THH:MM] (required).")
		fs.StringVar(&nh.AssignedDate, "assigned", "", "Assigned date, YYYY-MM-DD.")
		fs.StringVar(&nh.Status, "status", study.StatusNotStarted, "One of: "+strings.Join(study.Statuses, ", ")+".")
		fs.StringVar(&nh.Priority, "priority", study.PriorityMedium, "One of: "+strings.Join(study.Priorities, ", ")+".")
		fs.StringVar(&nh.Notes, "notes", "", "Free notes.")
		fs.StringVar(&nh.SubmissionLink, "link", "", "Submission URL.")
		if err = fs.Parse(args); err != nil {
			return err
		}
		nh.Status = matchOption(study.Statuses, nh.Status)
		nh.Priority = matchOption(study.Priorities, nh.Priority)
		if err = nh.Validate(); err != nil {
			return err
		}
		hw, err := cli.p.store.AddHomework(ctx, nh.Homework())
		if err != nil {
			return err
		}
		printSuccess(cli.out, "Added homework %s (%s)", hw.Assignment, shortID(hw.ID))
		return nil

	case "status":
		if len(args) != 2 {
			fmt.Fprintf(cli.out, "Usage: homework status ID STATUS\n  STATUS is one of: %s\n", strings.Join(study.Statuses, ", "))
			return errHelp
		}
		id, err := resolveID(homeworkIDs(cli.p.store.Homework()), args[0])
		if err != nil {
			return err
		}
		status := matchOption(study.Statuses, args[1])
		patch := study.HomeworkPatch{Status: &status}
		if err = study.ValidatePatch(patch); err != nil {
			return err
		}
		if err = cli.p.store.UpdateHomework(ctx, id, patch); err != nil {
			return err
		}
		printSuccess(cli.out, "Homework %s is now %s", shortID(id), status)
		return nil

	default: // delete
		if len(args) != 1 {
			fmt.Fprintln(cli.out, "Usage: homework delete ID")
			return errHelp
		}
		id, err := resolveID(homeworkIDs(cli.p.store.Homework()), args[0])
		if err != nil {
			return err
		}
		if err = cli.p.store.DeleteHomework(ctx, id); err != nil {
			return err
		}
		printSuccess(cli.out, "Deleted homework %s", shortID(id))
		return nil
	}
}

func homeworkIDs(items []study.Homework) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// Calendar events

func (cli *commandLine) events(ctx context.Context, args []string) error {
	action, args, err := cli.subcommand("events", args, "list", "add", "delete")
	if err != nil {
		return err
	}
	if _, err = cli.p.requireUser(); err != nil {
		return err
	}

	switch action {
	case "list":
		renderEvents(cli.out, cli.p.store.CalendarEvents(), cli.now())
		return nil

	case "add":
		fs := cli.flagSet("events add")
		var (
			ne        study.NewCalendarEvent
			checklist string
		)
		fs.StringVar(&ne.Date, "date", "", "Date, YYYY-MM-DD (required).")
		fs.StringVar(&ne.Time, "time", "", "Time of day, HH:MM.")
		fs.StringVar(&ne.EventType, "type", study.EventTypeEvent, "One of: "+strings.Join(study.EventTypes, ", ")+".")
		fs.StringVar(&ne.Subject, "subject", "", "Subject (required for exams).")
		fs.StringVar(&ne.Description, "description", "", "Description.")
		fs.StringVar(&ne.Location, "location", "", "Location.")
		fs.BoolVar(&ne.ReminderSet, "reminder", false, "Set a reminder.")
		fs.StringVar(&checklist, "checklist", "", "Comma separated preparation items.")
		if err = fs.Parse(args); err != nil {
			return err
		}
		ne.EventType = matchOption(study.EventTypes, ne.EventType)
		if checklist != "" {
			ne.PreparationChecklist = strings.Split(checklist, ",")
		}
		if err = ne.Validate(); err != nil {
			return err
		}
		ev, err := cli.p.store.AddCalendarEvent(ctx, ne.CalendarEvent())
		if err != nil {
			return err
		}
		printSuccess(cli.out, "Added %s on %s (%s)", strings.ToLower(ev.EventType), ev.Date, shortID(ev.ID))
		return nil

	default: // delete
		if len(args) != 1 {
			fmt.Fprintln(cli.out, "Usage: events delete ID")
			return errHelp
		}
		events := cli.p.store.CalendarEvents()
		ids := make([]string, len(events))
		for i, ev := range events {
			ids[i] = ev.ID
		}
		id, err := resolveID(ids, args[0])
		if err != nil {
			return err
		}
		if err = cli.p.store.DeleteCalendarEvent(ctx, id); err != nil {
			return err
		}
		printSuccess(cli.out, "Deleted event %s", shortID(id))
		return nil
	}
}

// Grades

func (cli *commandLine) grades(ctx context.Context, args []string) error {
	action, args, err := cli.subcommand("grades", args, "list", "add", "delete")
	if err != nil {
		return err
	}
	if _, err = cli.p.requireUser(); err != nil {
		return err
	}

	switch action {
	case "list":
		fs := cli.flagSet("grades list")
		subject := fs.String("subject", "", "Only list grades of subject.")
		if err = fs.Parse(args); err != nil {
			return err
		}
		grades := cli.p.store.Grades()
		if *subject != "" {
			filtered := grades[:0]
			for _, g := range grades {
				if strings.EqualFold(g.Subject, *subject) {
					filtered = append(filtered, g)
				}
			}
			grades = filtered
		}
		renderGrades(cli.out, grades)
		return nil

	case "add":
		fs := cli.flagSet("grades add")
		var ng study.NewGrade
		fs.StringVar(&ng.Subject, "subject", "", "Subject (required).")
		fs.StringVar(&ng.AssessmentName, "name", "", "Assessment name (required).")
		fs.StringVar(&ng.Type, "type", study.GradeTypeExam, "One of: "+strings.Join(study.GradeTypes, ", ")+".")
		fs.Float64Var(&ng.MaxMarks, "max", 100, "Maximum marks.")
		fs.Float64Var(&ng.MarksObtained, "marks", 0, "Marks obtained.")
		fs.StringVar(&ng.DateGraded, "date", cli.now().Format("2006-01-02"), "Date graded, YYYY-MM-DD.")
		fs.StringVar(&ng.Feedback, "feedback", "", "Feedback.")
		fs.Float64Var(&ng.Weight, "weight", 1, "Weight in the averages.")
		if err = fs.Parse(args); err != nil {
			return err
		}
		ng.Type = matchOption(study.GradeTypes, ng.Type)
		if err = ng.Validate(); err != nil {
			return err
		}
		g, err := cli.p.store.AddGrade(ctx, ng.Grade())
		if err != nil {
			return err
		}
		printSuccess(cli.out, "Recorded %s in %s: %s (%s)", g.AssessmentName, g.Subject, g.Grade, shortID(g.ID))
		return nil

	default: // delete
		if len(args) != 1 {
			fmt.Fprintln(cli.out, "Usage: grades delete ID")
			return errHelp
		}
		grades := cli.p.store.Grades()
		ids := make([]string, len(grades))
		for i, g := range grades {
			ids[i] = g.ID
		}
		id, err := resolveID(ids, args[0])
		if err != nil {
			return err
		}
		if err = cli.p.store.DeleteGrade(ctx, id); err != nil {
			return err
		}
		printSuccess(cli.out, "Deleted grade %s", shortID(id))
		return nil
	}
}

// Timetable

func (cli *commandLine) timetable(ctx context.Context, args []string) error {
	action, args, err := cli.subcommand("timetable", args, "show", "set", "clear")
	if err != nil {
		return err
	}
	if _, err = cli.p.requireUser(); err != nil {
		return err
	}
	if action == "show" {
		renderTimetable(cli.out, cli.p.store.Timetable())
		return nil
	}

	fs := cli.flagSet("timetable " + action)
	var (
		su   study.SlotUpdate
		slot study.TimetableSlot
	)
	fs.StringVar(&su.Day, "day", "", "Day of the week (required).")
	fs.IntVar(&su.Period, "period", 0, "Period, 1 to "+strconv.Itoa(len(study.Periods))+" (required).")
	if action == "set" {
		fs.StringVar(&slot.Subject, "subject", "", "Subject.")
		fs.StringVar(&slot.Teacher, "teacher", "", "Teacher.")
		fs.StringVar(&slot.Room, "room", "", "Room.")
		fs.StringVar(&slot.StartTime, "start", "", "Start time; defaults to the period's time slot.")
		fs.StringVar(&slot.EndTime, "end", "", "End time.")
	}
	if err = fs.Parse(args); err != nil {
		return err
	}
	if su.Day == "" || su.Period == 0 {
		fs.Usage()
		return errHelp
	}
	su.Day = matchOption(study.Weekdays, su.Day)
	if action == "set" {
		su.Slot = &slot
	}
	if err = su.Validate(); err != nil {
		return err
	}
	if err = cli.p.store.UpdateTimetable(ctx, su.Day, su.Period, su.Slot); err != nil {
		return err
	}
	if su.Slot.IsEmpty() {
		printSuccess(cli.out, "%s period %d is free", su.Day, su.Period)
	} else {
		printSuccess(cli.out, "%s period %d: %s", su.Day, su.Period, su.Slot.Subject)
	}
	return nil
}
