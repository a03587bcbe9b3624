package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestStatusAt(t *testing.T) {
	start := mustDate(t, "2024-01-01")
	end := EndDate(start, 7)
	assert.Equal(t, "2024-01-08", FormatDate(end))

	cases := []struct {
		now  string
		want Status
	}{
		{"2023-12-31", StatusUpcoming},
		{"2024-01-01", StatusActive},
		{"2024-01-05", StatusActive},
		{"2024-01-08", StatusActive},
		{"2024-01-09", StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.now, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusAt(start, end, mustDate(t, tc.now)))
		})
	}
}

func TestStatusAtIgnoresTimeOfDay(t *testing.T) {
	start := mustDate(t, "2024-01-01")
	end := EndDate(start, 7)
	lateOnEndDay := time.Date(2024, 1, 8, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, StatusActive, StatusAt(start, end, lateOnEndDay))
}

func TestDayOfChallengeRoundTrip(t *testing.T) {
	start := mustDate(t, "2024-02-27")
	for day := 1; day <= 10; day++ {
		date := ResolveTaskDate(start, day)
		assert.Equal(t, day, DayOfChallenge(start, date))
	}
	assert.Equal(t, "2024-03-01", FormatDate(ResolveTaskDate(start, 4)))
	assert.Equal(t, 0, DayOfChallenge(start, mustDate(t, "2024-02-26")))
}

func TestDaysRemaining(t *testing.T) {
	end := mustDate(t, "2024-01-08")
	assert.Equal(t, 3, DaysRemaining(end, mustDate(t, "2024-01-05")))
	assert.Equal(t, 0, DaysRemaining(end, mustDate(t, "2024-01-08")))
	assert.Equal(t, 0, DaysRemaining(end, mustDate(t, "2024-02-01")))
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("01/02/2024")
	assert.Error(t, err)
}
