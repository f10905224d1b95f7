package domain

import "time"

// DateLayout is the wire and storage format of civil dates.
const DateLayout = time.DateOnly

// Civil dates are carried as time.Time values at midnight UTC.

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateIn returns the calendar day of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return Date(y, m, d)
}

// AsDate drops the clock part of t, keeping its own calendar fields.
func AsDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// AddDays shifts a civil date by n days.
func AddDays(date time.Time, n int) time.Time {
	return date.AddDate(0, 0, n)
}

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to time.Time) int {
	return int(AsDate(to).Sub(AsDate(from)).Hours() / 24)
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(date time.Time) string {
	return date.Format(DateLayout)
}
