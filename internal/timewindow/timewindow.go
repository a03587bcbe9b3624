package timewindow

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// EndDate returns start plus duration whole days.
func EndDate(start time.Time, durationDays int) time.Time {
	return Day(start).AddDate(0, 0, durationDays)
}

// StatusAt compares calendar days, so a challenge is still active on its end date.
func StatusAt(start, end, now time.Time) Status {
	today := Day(now)
	switch {
	case today.Before(Day(start)):
		return StatusUpcoming
	case today.After(Day(end)):
		return StatusEnded
	default:
		return StatusActive
	}
}

func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// DaysRemaining is zero once the end date has passed.
func DaysRemaining(end, now time.Time) int {
	n := DaysBetween(now, end)
	if n < 0 {
		return 0
	}
	return n
}

// DayOfChallenge is 1 on the start date. Dates before the start yield values below 1.
func DayOfChallenge(start, date time.Time) int {
	return DaysBetween(start, date) + 1
}

func ResolveTaskDate(start time.Time, dayIndex int) time.Time {
	return Day(start).AddDate(0, 0, dayIndex-1)
}
