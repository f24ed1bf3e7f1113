package study

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, time.March, 3, 14, 30, 0, 0, time.UTC)

func TestDaysLeft(t *testing.T) {
	tests := []struct {
		date   string
		want   int
		wantOk bool
	}{
		{date: "2025-03-03", want: 0, wantOk: true},
		{date: "2025-03-03T08:00", want: 0, wantOk: true},
		{date: "2025-03-04T00:01", want: 1, wantOk: true},
		{date: "2025-03-10", want: 7, wantOk: true},
		{date: "2025-02-28", want: -3, wantOk: true},
		{date: "2025-03-05T10:00:00Z", want: 2, wantOk: true},
		{date: "", wantOk: false},
		{date: "next week", wantOk: false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, ok := DaysLeft(tt.date, now)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsOverdue(t *testing.T) {
	tests := []struct {
		date string
		want bool
	}{
		{date: "2025-03-03", want: false},
		{date: "2025-03-02", want: true},
		{date: "2025-03-03T14:00", want: true},
		{date: "2025-03-03T15:00", want: false},
		{date: "garbage", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverdue(tt.date, now))
		})
	}
}

func TestGradeStats(t *testing.T) {
	assert.Equal(t, 75.0, Percentage(15, 20))
	assert.Equal(t, 66.7, Percentage(2, 3))
	assert.Equal(t, 0.0, Percentage(5, 0))

	for pct, want := range map[float64]string{95: "A", 90: "A", 89.9: "B", 80: "B", 75: "C", 60: "D", 59.9: "F", 0: "F"} {
		assert.Equal(t, want, LetterGrade(pct), "LetterGrade(%v)", pct)
	}

	grades := []Grade{
		{Subject: "Math", MaxMarks: 20, MarksObtained: 15, Weight: 1},  // 75
		{Subject: "Math", MaxMarks: 100, MarksObtained: 91, Weight: 3}, // 91
		{Subject: "Bio", MaxMarks: 10, MarksObtained: 5, Weight: 0},    // ignored
		{Subject: "Bio", MaxMarks: 0, MarksObtained: 5, Weight: 2},     // ignored
	}
	avg, ok := WeightedAverage(grades)
	assert.True(t, ok)
	assert.Equal(t, 87.0, avg)

	avg, ok = SubjectAverage(grades, "Math")
	assert.True(t, ok)
	assert.Equal(t, 87.0, avg)

	_, ok = SubjectAverage(grades, "Bio")
	assert.False(t, ok)
	_, ok = WeightedAverage(nil)
	assert.False(t, ok)

	assert.Equal(t, map[string]float64{"Math": 87}, SubjectAverages(grades))
}

func TestSummarize(t *testing.T) {
	homework := []Homework{
		{ID: "late", Assignment: "Essay", Subject: "English", DueDate: "2025-03-01", Status: StatusInProgress},
		{ID: "done", Assignment: "Lab", Subject: "Bio", DueDate: "2025-03-04", Status: StatusSubmitted},
		{ID: "soon", Assignment: "Set 3", Subject: "Math", DueDate: "2025-03-04T23:59", Status: StatusNotStarted},
		{ID: "far", Assignment: "Project", Subject: "Art", DueDate: "2025-04-01", Status: StatusNotStarted},
	}
	events := []CalendarEvent{
		{ID: "past", Date: "2025-02-01", EventType: EventTypeQuiz},
		{ID: "exam", Date: "2025-03-03", EventType: EventTypeExam, Subject: "Physics"},
		{ID: "trip", Date: "2025-03-08", EventType: EventTypeEvent},
	}
	grades := []Grade{{MaxMarks: 10, MarksObtained: 8, Weight: 1}}

	sum := Summarize(homework, events, grades, now)
	assert.Equal(t, 3, sum.ActiveHomework)
	assert.Equal(t, 1, sum.OverdueHomework)
	assert.Equal(t, 2, sum.UpcomingEvents)
	assert.Equal(t, 1, sum.GradeCount)
	assert.True(t, sum.HasAverage)
	assert.Equal(t, 80.0, sum.Average)
	assert.True(t, sum.HasData)

	var got []string
	for _, item := range sum.Upcoming {
		got = append(got, item.ID)
	}
	assert.Equal(t, []string{"exam", "soon", "trip"}, got)
	assert.Equal(t, "Physics", sum.Upcoming[0].Title)
	assert.Equal(t, KindEvent, sum.Upcoming[0].Kind)
	assert.Equal(t, 1, sum.Upcoming[1].DaysLeft)
	assert.Equal(t, EventTypeEvent, sum.Upcoming[2].Title)

	empty := Summarize(nil, nil, nil, now)
	assert.False(t, empty.HasData)
	assert.Empty(t, empty.Upcoming)
}

func TestSummarize_limitsUpcoming(t *testing.T) {
	var homework []Homework
	for _, d := range []string{"2025-03-09", "2025-03-08", "2025-03-07", "2025-03-06", "2025-03-05", "2025-03-04"} {
		homework = append(homework, Homework{ID: d, DueDate: d, Status: StatusNotStarted})
	}
	sum := Summarize(homework, nil, nil, now)
	assert.Len(t, sum.Upcoming, 5)
	assert.Equal(t, "2025-03-04", sum.Upcoming[0].ID)
	assert.Equal(t, "2025-03-08", sum.Upcoming[4].ID)
}
