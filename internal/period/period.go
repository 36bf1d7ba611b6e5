// Package period derives calendar bucket keys (day, Sunday-based week,
// month) from timestamps in a single configured UTC offset. Every layer
// of the aggregation pipeline goes through these helpers so that day
// boundaries never depend on the database session or host timezone.
package period

import (
	"fmt"
	"time"
)

// DayFormat is the canonical key format for daily buckets and rollups.
const DayFormat = "2006-01-02"

// Zone builds a fixed-offset location from an offset in minutes east of
// UTC. The offset is a deployment setting, not a constant.
func Zone(offsetMinutes int) *time.Location {
	sign := "+"
	m := offsetMinutes
	if m < 0 {
		sign = "-"
		m = -m
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, m/60, m%60)
	return time.FixedZone(name, offsetMinutes*60)
}

// DayKey returns the calendar-day key for t in the given location.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayFormat)
}

// ParseDay parses a day key into midnight local time.
func ParseDay(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayFormat, key, loc)
}

// Midnight truncates t to 00:00:00 in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekStart returns the Sunday 00:00:00 opening the week containing t.
func WeekStart(t time.Time) time.Time {
	d := Midnight(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// WeekEnd returns the Saturday 23:59:59 closing the week containing t.
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 6).Add(23*time.Hour + 59*time.Minute + 59*time.Second)
}

// WeekNumber returns the ISO week number for t: the week containing
// January 4th is week 1 and ties across year boundaries resolve by the
// Thursday rule.
func WeekNumber(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

// WeekYear returns the calendar year used to key weekly rollups. Note
// this is the year of the date itself, not the ISO week-year, so the
// handful of days whose ISO week belongs to the neighbouring year stay
// keyed under their calendar year.
func WeekYear(t time.Time) int {
	return t.Year()
}

// MonthRange returns the first and last calendar day of a month as
// local midnights.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// MonthName returns the English month name for a 1-12 month number.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return time.Month(month).String()
}
