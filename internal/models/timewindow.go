package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Clock is a time of day with minute resolution, serialized as "HH:MM".
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, NewValidationError("invalid time of day %q, want HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Minutes returns the clock as minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalJSON renders the clock as "HH:MM".
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts "HH:MM".
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Date is a calendar day, serialized as "YYYY-MM-DD".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, NewValidationError("invalid date %q, want YYYY-MM-DD", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// StartOfDay returns the first instant of the date in the given location.
func (d Date) StartOfDay(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last instant of the date in the given location.
func (d Date) EndOfDay(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// weekdayNames maps accepted day names (long and abbreviated, any case) to
// time.Weekday values.
var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// MatchesDay reports whether now's weekday is in the day list. An empty list
// is a wildcard.
func MatchesDay(days []string, now time.Time) bool {
	if len(days) == 0 {
		return true
	}
	for _, day := range days {
		if wd, ok := weekdayNames[strings.ToLower(day)]; ok && wd == now.Weekday() {
			return true
		}
	}
	return false
}

// InClockWindow reports whether now's time of day falls in [start, end].
// A window where start > end wraps midnight: it matches when now >= start or
// now <= end. Nil bounds are open.
func InClockWindow(start, end *Clock, now time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	switch {
	case start == nil:
		return minute <= end.Minutes()
	case end == nil:
		return minute >= start.Minutes()
	case start.Minutes() > end.Minutes():
		return minute >= start.Minutes() || minute <= end.Minutes()
	default:
		return minute >= start.Minutes() && minute <= end.Minutes()
	}
}
