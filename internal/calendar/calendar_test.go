package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicelog/internal/clock"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestClassify(t *testing.T) {
	cal := New(WithLeaveDates(date(t, "2026-03-04"), date(t, "2026-03-07")))

	cases := []struct {
		day  string
		want DayKind
	}{
		{"2026-03-02", DayWorking}, // Monday
		{"2026-03-04", DayLeave},
		{"2026-03-07", DayWeekend}, // Saturday, also declared leave
		{"2026-03-08", DayWeekend},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cal.Classify(date(t, tc.day)), tc.day)
	}
}

func TestWorkingDays(t *testing.T) {
	cal := New()
	// Mon 2 Mar .. Sun 15 Mar: two full weeks.
	assert.Equal(t, 10, cal.WorkingDays(date(t, "2026-03-02"), date(t, "2026-03-15")))
	assert.Equal(t, 0, cal.WorkingDays(date(t, "2026-03-07"), date(t, "2026-03-08")))
	assert.Equal(t, 0, cal.WorkingDays(date(t, "2026-03-10"), date(t, "2026-03-09")))

	withLeave := cal.WithLeave([]time.Time{date(t, "2026-03-03")})
	assert.Equal(t, 9, withLeave.WorkingDays(date(t, "2026-03-02"), date(t, "2026-03-15")))
	assert.Equal(t, 10, cal.WorkingDays(date(t, "2026-03-02"), date(t, "2026-03-15")), "original calendar is unchanged")

	noWeekend := New(WithWeekend())
	assert.Equal(t, 14, noWeekend.WorkingDays(date(t, "2026-03-02"), date(t, "2026-03-15")))
}

func TestLeaveDaysBetween(t *testing.T) {
	cal := New(WithLeaveDates(date(t, "2026-01-01"), date(t, "2026-01-05"), date(t, "2026-02-01")))
	assert.Equal(t, 2, cal.LeaveDaysBetween(date(t, "2026-01-01"), date(t, "2026-01-31")))
}

func TestDayArithmetic(t *testing.T) {
	a := date(t, "2026-01-01")
	b := date(t, "2026-01-10")
	assert.Equal(t, 9, DaysBetween(a, b))
	assert.Equal(t, -9, DaysBetween(b, a))
	assert.Equal(t, 10, DaysInclusive(a, b))
	assert.Equal(t, 1, DaysInclusive(a, a))
	assert.Equal(t, 0, DaysInclusive(b, a))

	// DST change in Sydney on 2026-04-05 must not skew the count.
	syd, err := time.LoadLocation("Australia/Sydney")
	if err == nil {
		from := time.Date(2026, 4, 4, 23, 0, 0, 0, syd)
		to := time.Date(2026, 4, 6, 1, 0, 0, 0, syd)
		assert.Equal(t, 2, DaysBetween(from, to))
	}
}

func TestTodayUsesClockAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	fake := clock.NewFake(time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC))
	cal := New(WithClock(fake), WithLocation(loc))

	assert.Equal(t, date(t, "2026-05-02"), cal.Today())

	start, end := cal.DayBounds(date(t, "2026-05-02"))
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, loc), start)
	assert.True(t, end.Before(time.Date(2026, 5, 3, 0, 0, 0, 0, loc)))
}
