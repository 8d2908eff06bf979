// Package calendar enumerates the business days a backtest steps through.
//
// A business day is Monday through Friday. Exchange holidays are opt-in:
// the default calendar treats every weekday as a session and lets days
// without a bar fall back to the most recent bar on or before them.
package calendar

import "time"

// Calendar decides which dates are business days.
type Calendar struct {
	holidays map[string]bool
}

// Weekdays is the Mon–Fri calendar with no holidays.
var Weekdays = New()

// New builds a calendar that additionally skips the given holidays.
func New(holidays ...time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[dateKey(h)] = true
	}
	return c
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsHoliday returns true if t's calendar date is a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[dateKey(t)]
}

// IsBusinessDay returns true if t is a weekday and not a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	return IsWeekday(t) && !c.IsHoliday(t)
}

// BusinessDays returns every business day in [from, to], both ends
// inclusive, at midnight UTC. It returns nil when to is before from.
func (c *Calendar) BusinessDays(from, to time.Time) []time.Time {
	from, to = truncate(from), truncate(to)
	if to.Before(from) {
		return nil
	}
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

// Previous returns the latest business day on or before t.
func (c *Calendar) Previous(t time.Time) time.Time {
	d := truncate(t)
	for i := 0; i < 30; i++ { // weekends plus a run of holidays
		if c.IsBusinessDay(d) {
			return d
		}
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// Next returns the first business day strictly after t.
func (c *Calendar) Next(t time.Time) time.Time {
	d := truncate(t).AddDate(0, 0, 1)
	for i := 0; i < 30; i++ {
		if c.IsBusinessDay(d) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// BusinessDays enumerates Mon–Fri dates in [from, to].
func BusinessDays(from, to time.Time) []time.Time {
	return Weekdays.BusinessDays(from, to)
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
