// Package timeutil provides school-day arithmetic.
// All day-granular rules (streaks, daily challenges) count calendar dates in a single
// configured school timezone; this package is the only place that knows how.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultSchoolTZ is the fallback school timezone (Asia/Almaty, UTC+5, no DST).
var DefaultSchoolTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// DayLayout is the canonical date key format ("2006-01-02").
const DayLayout = "2006-01-02"

// Clock returns the current time. Engines take a Clock so tests can pin "now".
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// LoadLocation resolves a timezone name. An empty name yields DefaultSchoolTZ.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return DefaultSchoolTZ, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Hosts without tzdata still know the default zone.
		if name == DefaultSchoolTZ.String() {
			return DefaultSchoolTZ, nil
		}
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

func orDefault(loc *time.Location) *time.Location {
	if loc == nil {
		return DefaultSchoolTZ
	}
	return loc
}

// StartOfDay returns local midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	loc = orDefault(loc)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's calendar date in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// CivilDay returns the number of calendar days between 1970-01-01 and t's date in loc.
// Consecutive dates differ by exactly one regardless of DST transitions.
func CivilDay(t time.Time, loc *time.Location) int {
	local := t.In(orDefault(loc))
	utcMidnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return int(utcMidnight.Unix() / 86400)
}

// DayKey formats t's calendar date in loc as "2006-01-02".
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(orDefault(loc)).Format(DayLayout)
}

// ParseDayKey parses a "2006-01-02" key as local midnight in loc.
func ParseDayKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayLayout, key, orDefault(loc))
}

// IsSameDay checks if two instants fall on the same calendar date in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return CivilDay(t1, loc) == CivilDay(t2, loc)
}

// IsConsecutiveDay checks if t2 falls on the calendar date right after t1.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	return CivilDay(t2, loc)-CivilDay(t1, loc) == 1
}

// DaysBetween returns the calendar-date distance from t1 to t2 (negative if t2 is earlier).
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	return CivilDay(t2, loc) - CivilDay(t1, loc)
}
