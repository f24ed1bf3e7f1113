package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/trezcool/studyplanner/core/study"
)

// Color palette
var (
	colorPrimary = lipgloss.Color("#6C63FF")
	colorMuted   = lipgloss.Color("#666666")
	colorSuccess = lipgloss.Color("#2ECC71")
	colorWarning = lipgloss.Color("#F39C12")
	colorError   = lipgloss.Color("#E74C3C")
	colorSubtle  = lipgloss.Color("#414868")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

func printEmpty(w io.Writer, what string) {
	fmt.Fprintln(w, subtitleStyle.Render("No "+what+" yet."))
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf(format, args...)))
}

// dueLabel describes how far date is from now.
func dueLabel(date string, now time.Time) string {
	days, ok := study.DaysLeft(date, now)
	switch {
	case !ok:
		return ""
	case days < 0:
		return warningStyle.Render(fmt.Sprintf("%dd overdue", -days))
	case days == 0:
		return warningStyle.Render("today")
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %dd", days)
	}
}

func renderHomework(w io.Writer, homework []study.Homework, now time.Time) {
	printTitle(w, "Homework")
	if len(homework) == 0 {
		printEmpty(w, "homework")
		return
	}
	sort.SliceStable(homework, func(i, j int) bool { return homework[i].DueDate < homework[j].DueDate })
	t := newTable("ID", "Subject", "Assignment", "Due", "", "Status", "Priority")
	for _, hw := range homework {
		due := ""
		if hw.IsActive() {
			due = dueLabel(hw.DueDate, now)
		}
		t.Row(shortID(hw.ID), hw.Subject, hw.Assignment, hw.DueDate, due, hw.Status, hw.Priority)
	}
	fmt.Fprintln(w, t.Render())
}

func renderEvents(w io.Writer, events []study.CalendarEvent, now time.Time) {
	printTitle(w, "Calendar")
	if len(events) == 0 {
		printEmpty(w, "events")
		return
	}
	t := newTable("ID", "Date", "Time", "Type", "Subject", "Description", "Location", "Reminder", "Checklist")
	for _, ev := range events {
		date := ev.Date
		if label := dueLabel(ev.Date, now); label != "" {
			date += " (" + label + ")"
		}
		reminder := ""
		if ev.ReminderSet {
			reminder = "yes"
		}
		t.Row(shortID(ev.ID), date, ev.Time, ev.EventType, ev.Subject, ev.Description, ev.Location, reminder,
			strings.Join(ev.PreparationChecklist, ", "))
	}
	fmt.Fprintln(w, t.Render())
}

func renderGrades(w io.Writer, grades []study.Grade) {
	printTitle(w, "Grades")
	if len(grades) == 0 {
		printEmpty(w, "grades")
		return
	}
	t := newTable("ID", "Subject", "Assessment", "Type", "Marks", "%", "Grade", "Weight", "Graded")
	for _, g := range grades {
		t.Row(shortID(g.ID), g.Subject, g.AssessmentName, g.Type,
			formatFloat(g.MarksObtained)+"/"+formatFloat(g.MaxMarks),
			formatFloat(study.Percentage(g.MarksObtained, g.MaxMarks)),
			g.Grade, formatFloat(g.Weight), g.DateGraded)
	}
	fmt.Fprintln(w, t.Render())

	avgs := study.SubjectAverages(grades)
	subjects := make([]string, 0, len(avgs))
	for s := range avgs {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	for _, s := range subjects {
		fmt.Fprintf(w, "%s %s%% (%s)\n", subtitleStyle.Render(s+":"), formatFloat(avgs[s]), study.LetterGrade(avgs[s]))
	}
	if avg, ok := study.WeightedAverage(grades); ok {
		fmt.Fprintf(w, "%s %s%% (%s)\n", titleStyle.Render("Overall:"), formatFloat(avg), study.LetterGrade(avg))
	}
}

// renderTimetable draws the weekly grid: one row per period, one column per school day.
func renderTimetable(w io.Writer, entries []study.TimetableEntry) {
	printTitle(w, "Timetable")
	days := append([]string{}, study.Days...)
	for _, te := range entries {
		if !contains(days, te.Day) {
			days = append(days, te.Day) // weekend classes
		}
	}
	slots := make(map[string]study.TimetableEntry, len(entries))
	for _, te := range entries {
		slots[te.Day+"/"+strconv.Itoa(te.Period)] = te
	}

	t := newTable(append([]string{"Period"}, days...)...)
	for _, period := range study.Periods {
		row := []string{fmt.Sprintf("%d  %s", period, study.TimeSlot(period))}
		for _, day := range days {
			te, ok := slots[day+"/"+strconv.Itoa(period)]
			if !ok {
				row = append(row, "")
				continue
			}
			cell := te.Subject
			if te.Room != "" {
				cell += " @" + te.Room
			}
			if te.Teacher != "" {
				cell += "\n" + te.Teacher
			}
			row = append(row, cell)
		}
		t.Row(row...)
	}
	fmt.Fprintln(w, t.Render())
}

func renderSummary(w io.Writer, name string, sum study.Summary) {
	printTitle(w, "Welcome back, "+name)
	if !sum.HasData {
		fmt.Fprintln(w, subtitleStyle.Render("Nothing planned yet: add homework, events or grades to get started."))
		return
	}

	avg := "n/a"
	if sum.HasAverage {
		avg = formatFloat(sum.Average) + "% (" + study.LetterGrade(sum.Average) + ")"
	}
	overdue := strconv.Itoa(sum.OverdueHomework)
	if sum.OverdueHomework > 0 {
		overdue = warningStyle.Render(overdue)
	}
	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render("Active homework\n"+strconv.Itoa(sum.ActiveHomework)),
		panelStyle.Render("Overdue\n"+overdue),
		panelStyle.Render("Upcoming events\n"+strconv.Itoa(sum.UpcomingEvents)),
		panelStyle.Render("Average\n"+avg),
	)
	fmt.Fprintln(w, stats)

	printTitle(w, "Due this week")
	if len(sum.Upcoming) == 0 {
		fmt.Fprintln(w, subtitleStyle.Render("Nothing due in the next 7 days."))
		return
	}
	t := newTable("When", "Kind", "Title", "Details", "Date")
	for _, item := range sum.Upcoming {
		when := fmt.Sprintf("in %dd", item.DaysLeft)
		switch item.DaysLeft {
		case 0:
			when = warningStyle.Render("today")
		case 1:
			when = "tomorrow"
		}
		t.Row(when, item.Kind, item.Title, item.Description, item.Date)
	}
	fmt.Fprintln(w, t.Render())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
