// Package calendar resolves "today" and classifies dates as working days,
// weekend days or declared leave days.
//
// Dates are represented as time.Time values at UTC midnight. DateOf converts
// any instant to that form using the calendar's location, so arithmetic on
// dates never crosses a DST boundary.
package calendar

import (
	"fmt"
	"time"

	"voicelog/internal/clock"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// DayKind classifies a calendar date.
type DayKind string

const (
	DayWorking DayKind = "working"
	DayWeekend DayKind = "weekend"
	DayLeave   DayKind = "leave"
)

// Calendar is immutable once built; WithLeave returns a copy.
type Calendar struct {
	clock   clock.Clock
	loc     *time.Location
	weekend map[time.Weekday]bool
	leave   map[time.Time]struct{}
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithClock sets the time source used by Now and Today.
func WithClock(c clock.Clock) Option {
	return func(cal *Calendar) { cal.clock = c }
}

// WithLocation sets the location used to decide which date an instant falls on.
func WithLocation(loc *time.Location) Option {
	return func(cal *Calendar) {
		if loc != nil {
			cal.loc = loc
		}
	}
}

// WithWeekend replaces the default Saturday/Sunday weekend. Passing no days
// yields a calendar without weekends.
func WithWeekend(days ...time.Weekday) Option {
	return func(cal *Calendar) {
		cal.weekend = make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			cal.weekend[d] = true
		}
	}
}

// WithLeaveDates declares leave days.
func WithLeaveDates(dates ...time.Time) Option {
	return func(cal *Calendar) {
		for _, d := range dates {
			cal.leave[DateOf(d)] = struct{}{}
		}
	}
}

// New builds a calendar. Defaults: wall clock, local time, Saturday/Sunday weekend.
func New(opts ...Option) *Calendar {
	cal := &Calendar{
		clock:   clock.Real{},
		loc:     time.Local,
		weekend: map[time.Weekday]bool{time.Saturday: true, time.Sunday: true},
		leave:   make(map[time.Time]struct{}),
	}
	for _, opt := range opts {
		opt(cal)
	}
	return cal
}

// WithLeave returns a copy of the calendar whose leave set is exactly dates.
func (c *Calendar) WithLeave(dates []time.Time) *Calendar {
	cp := &Calendar{
		clock:   c.clock,
		loc:     c.loc,
		weekend: c.weekend,
		leave:   make(map[time.Time]struct{}, len(dates)),
	}
	for _, d := range dates {
		cp.leave[DateOf(d)] = struct{}{}
	}
	return cp
}

// Now returns the current instant.
func (c *Calendar) Now() time.Time {
	return c.clock.Now()
}

// Today returns the current date in the calendar's location.
func (c *Calendar) Today() time.Time {
	return c.DateIn(c.clock.Now())
}

// Location returns the location used for date boundaries.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// DateIn returns the date t falls on in the calendar's location.
func (c *Calendar) DateIn(t time.Time) time.Time {
	return DateOf(t.In(c.loc))
}

// DayBounds returns the first and last instant of date in the calendar's location.
func (c *Calendar) DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, c.loc).Add(-time.Nanosecond)
	return start, end
}

// Classify reports what kind of day date is. A leave date falling on a
// weekend is classified as weekend.
func (c *Calendar) Classify(date time.Time) DayKind {
	date = DateOf(date)
	if c.weekend[date.Weekday()] {
		return DayWeekend
	}
	if _, ok := c.leave[date]; ok {
		return DayLeave
	}
	return DayWorking
}

// IsWorkingDay reports whether date is neither weekend nor leave.
func (c *Calendar) IsWorkingDay(date time.Time) bool {
	return c.Classify(date) == DayWorking
}

// IsLeaveDay reports whether date was declared as leave.
func (c *Calendar) IsLeaveDay(date time.Time) bool {
	_, ok := c.leave[DateOf(date)]
	return ok
}

// WorkingDays counts working days in the closed range [from, to].
func (c *Calendar) WorkingDays(from, to time.Time) int {
	from, to = DateOf(from), DateOf(to)
	n := 0
	for d := from; !d.After(to); d = d.Add(day) {
		if c.IsWorkingDay(d) {
			n++
		}
	}
	return n
}

// LeaveDaysBetween counts declared leave dates in the closed range [from, to].
func (c *Calendar) LeaveDaysBetween(from, to time.Time) int {
	from, to = DateOf(from), DateOf(to)
	n := 0
	for d := range c.leave {
		if !d.Before(from) && !d.After(to) {
			n++
		}
	}
	return n
}

// DateOf truncates t to its calendar date, expressed as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)) / day)
}

// DaysInclusive counts calendar days in [a, b]; zero when b is before a.
func DaysInclusive(a, b time.Time) int {
	n := DaysBetween(a, b) + 1
	if n < 0 {
		return 0
	}
	return n
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
