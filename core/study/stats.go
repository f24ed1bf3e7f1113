package study

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	upcomingWindowDays = 7
	upcomingMaxItems   = 5
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses the date strings stored on entities, in local time unless they carry an offset.
func ParseDate(s string) (time.Time, bool) {
	t, _, ok := parseDate(s, time.Local)
	return t, ok
}

func parseDate(s string, loc *time.Location) (t time.Time, hasTime, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for i, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			return parsed, i < len(dateLayouts)-1, true
		}
	}
	return time.Time{}, false, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysLeft returns the number of calendar days between now and date (negative when past).
func DaysLeft(date string, now time.Time) (int, bool) {
	t, _, ok := parseDate(date, now.Location())
	if !ok {
		return 0, false
	}
	t = t.In(now.Location())
	days := startOfDay(t).Sub(startOfDay(now)).Hours() / 24
	return int(math.Round(days)), true
}

// IsOverdue reports whether date has passed: date-only values are overdue from the next day on.
// Unparsable dates are never overdue.
func IsOverdue(date string, now time.Time) bool {
	t, hasTime, ok := parseDate(date, now.Location())
	if !ok {
		return false
	}
	if hasTime {
		return t.Before(now)
	}
	return t.Before(startOfDay(now))
}

// Percentage returns obtained/max as a percentage rounded to one decimal.
func Percentage(obtained, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return round1(obtained / max * 100)
}

func LetterGrade(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}

// WeightedAverage averages the grade percentages by weight. Grades without a positive weight are ignored;
// ok is false when no grade counts.
func WeightedAverage(grades []Grade) (avg float64, ok bool) {
	var sum, weights float64
	for _, g := range grades {
		if g.Weight <= 0 || g.MaxMarks <= 0 {
			continue
		}
		sum += g.MarksObtained / g.MaxMarks * 100 * g.Weight
		weights += g.Weight
	}
	if weights == 0 {
		return 0, false
	}
	return round1(sum / weights), true
}

// SubjectAverage is the WeightedAverage of the grades of subject.
func SubjectAverage(grades []Grade, subject string) (float64, bool) {
	var filtered []Grade
	for _, g := range grades {
		if g.Subject == subject {
			filtered = append(filtered, g)
		}
	}
	return WeightedAverage(filtered)
}

// SubjectAverages returns the weighted average of every graded subject, by subject name.
func SubjectAverages(grades []Grade) map[string]float64 {
	subjects := make(map[string]struct{})
	for _, g := range grades {
		subjects[g.Subject] = struct{}{}
	}
	avgs := make(map[string]float64, len(subjects))
	for s := range subjects {
		if avg, ok := SubjectAverage(grades, s); ok {
			avgs[s] = avg
		}
	}
	return avgs
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// Upcoming item kinds
const (
	KindHomework = "homework"
	KindEvent    = "event"
)

type UpcomingItem struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	DaysLeft    int    `json:"daysLeft"`
}

// Summary is the dashboard view of the store.
type Summary struct {
	ActiveHomework  int            `json:"activeHomework"`
	OverdueHomework int            `json:"overdueHomework"`
	UpcomingEvents  int            `json:"upcomingEvents"`
	GradeCount      int            `json:"gradeCount"`
	Average         float64        `json:"average"`
	HasAverage      bool           `json:"hasAverage"`
	Upcoming        []UpcomingItem `json:"upcoming"`
	HasData         bool           `json:"hasData"`
}

// Summarize computes the dashboard: counters, the overall weighted average and the
// next active homework and events due within a week.
func Summarize(homework []Homework, events []CalendarEvent, grades []Grade, now time.Time) Summary {
	sum := Summary{
		GradeCount: len(grades),
		HasData:    len(homework) > 0 || len(events) > 0 || len(grades) > 0,
	}
	sum.Average, sum.HasAverage = WeightedAverage(grades)

	type candidate struct {
		item UpcomingItem
		at   time.Time
	}
	var candidates []candidate
	add := func(item UpcomingItem) {
		at, _, ok := parseDate(item.Date, now.Location())
		if !ok {
			return
		}
		days, _ := DaysLeft(item.Date, now)
		item.DaysLeft = days
		candidates = append(candidates, candidate{item: item, at: at})
	}

	for _, hw := range homework {
		if !hw.IsActive() {
			continue
		}
		sum.ActiveHomework++
		if IsOverdue(hw.DueDate, now) {
			sum.OverdueHomework++
		}
		add(UpcomingItem{Kind: KindHomework, ID: hw.ID, Title: hw.Assignment, Description: hw.Subject, Date: hw.DueDate})
	}
	for _, ev := range events {
		if IsOverdue(ev.Date, now) {
			continue
		}
		sum.UpcomingEvents++
		title := ev.Subject
		if title == "" {
			title = ev.EventType
		}
		add(UpcomingItem{Kind: KindEvent, ID: ev.ID, Title: title, Description: ev.Description, Date: ev.Date})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })
	sum.Upcoming = make([]UpcomingItem, 0, upcomingMaxItems)
	for _, c := range candidates {
		if c.item.DaysLeft < 0 || c.item.DaysLeft > upcomingWindowDays {
			continue
		}
		sum.Upcoming = append(sum.Upcoming, c.item)
		if len(sum.Upcoming) == upcomingMaxItems {
			break
		}
	}
	return sum
}
