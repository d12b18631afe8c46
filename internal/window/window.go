// Package window holds the UTC calendar-day helpers shared by the quota
// counter and its stores. A day is identified by its YYYY-MM-DD string in UTC.
package window

import "time"

// DayLayout is the format used for day identifiers.
const DayLayout = "2006-01-02"

// Day returns the UTC calendar day containing t.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// StartOfDay returns the UTC midnight at or before t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NextMidnight returns the first UTC midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// UntilMidnight returns the time left in t's UTC day.
func UntilMidnight(t time.Time) time.Duration {
	return NextMidnight(t).Sub(t)
}
