package utils

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitline/internal/constants"
)

// localDateTimeLayouts are the wall-clock formats accepted for a due date.
var localDateTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// NowInTimezone returns the current time in the specified timezone.
func NowInTimezone(timezone string) (time.Time, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return time.Now().In(loc), nil
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return true
	}
	_, err := time.LoadLocation(timezone)
	return err == nil
}

// ParseDateInLocation parses a date string (YYYY-MM-DD) in the specified timezone.
func ParseDateInLocation(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	// Return the date at midnight in the specified timezone
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// ParseLocalDateTime resolves a wall-clock date-time entered in loc into an
// absolute instant. A bare date (YYYY-MM-DD) means 23:59 that day. Wall-clock
// times skipped by a daylight-saving transition are rejected.
func ParseLocalDateTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, fmt.Errorf("location is required")
	}

	var wall time.Time
	var err error
	if d, derr := time.Parse(constants.DateFormat, value); derr == nil {
		wall = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, time.UTC)
	} else {
		for _, layout := range localDateTimeLayouts {
			wall, err = time.Parse(layout, value)
			if err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date-time %q: expected YYYY-MM-DDTHH:MM", value)
		}
	}

	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, loc)
	if t.Year() != wall.Year() || t.Month() != wall.Month() || t.Day() != wall.Day() ||
		t.Hour() != wall.Hour() || t.Minute() != wall.Minute() {
		return time.Time{}, fmt.Errorf("%s does not exist in %s (daylight saving transition)", value, loc)
	}
	return t, nil
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// AddDays moves t by n calendar days in loc, keeping the wall-clock time.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+n, lt.Hour(), lt.Minute(), lt.Second(), lt.Nanosecond(), loc)
}

// DayWindow returns [midnight, next midnight) of t's calendar day in loc.
// The window is 23 or 25 hours long on transition days.
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := StartOfDay(t, loc)
	return start, AddDays(start, 1, loc)
}

// DayKey returns the YYYY-MM-DD calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(constants.DateFormat)
}

// StartOfWeek returns Sunday 00:00 of the week containing ref, in loc.
func StartOfWeek(ref time.Time, loc *time.Location) time.Time {
	lt := ref.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()-int(lt.Weekday()), 0, 0, 0, 0, loc)
}

// EndOfWeek returns the last instant of the Saturday ending ref's week, in loc.
func EndOfWeek(ref time.Time, loc *time.Location) time.Time {
	return WeekEndExclusive(ref, loc).Add(-time.Nanosecond)
}

// WeekEndExclusive returns the Sunday 00:00 following ref's week. Queries use
// it as the exclusive upper bound.
func WeekEndExclusive(ref time.Time, loc *time.Location) time.Time {
	start := StartOfWeek(ref, loc)
	return time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, loc)
}

// LastNDays returns midnight of the calendar day n-1 days before ref's day.
func LastNDays(n int, ref time.Time, loc *time.Location) time.Time {
	if n < 1 {
		n = 1
	}
	lt := ref.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()-(n-1), 0, 0, 0, 0, loc)
}

// WeekdayLabels returns the short weekday names of the 7-day window ending on
// ref's day, oldest first.
func WeekdayLabels(ref time.Time, loc *time.Location) []string {
	start := LastNDays(constants.HistoryDays, ref, loc)
	labels := make([]string, 0, constants.HistoryDays)
	for i := 0; i < constants.HistoryDays; i++ {
		day := time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, loc)
		labels = append(labels, day.Weekday().String()[:3])
	}
	return labels
}
