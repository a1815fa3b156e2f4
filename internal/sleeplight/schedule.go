package sleeplight

import (
	"strconv"
	"strings"
	"time"
)

const (
	morningBoostWindow    = 90 * time.Minute
	eveningWinddownWindow = 120 * time.Minute
)

// ParseClock resolves an "HH:MM" string to that wall-clock time on now's date,
// in now's location. It reports false for absent or malformed input.
func ParseClock(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	hh, mm, found := strings.Cut(value, ":")
	if !found || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !allDigits(hh+mm) {
		return time.Time{}, false
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, false
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, false
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// inWindow reports whether start <= t <= start+length
func inWindow(t, start time.Time, length time.Duration) bool {
	return !t.Before(start) && !t.After(start.Add(length))
}

// SleepSpanHours returns the hours between the sleep and wake anchors, treating a
// wake time at or before the sleep time as the next morning.
func SleepSpanHours(pattern DailyPattern, now time.Time) (float64, bool) {
	wake, okWake := ParseClock(pattern.Wake, now)
	sleep, okSleep := ParseClock(pattern.Sleep, now)
	if !okWake || !okSleep {
		return 0, false
	}
	if !wake.After(sleep) {
		wake = wake.Add(24 * time.Hour)
	}
	return wake.Sub(sleep).Hours(), true
}
