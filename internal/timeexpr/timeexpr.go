// Package timeexpr parses the human time expressions accepted by --since.
package timeexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Matches "2h", "30m ago", "1d", "2w ago", "1mo".
var relativeRegex = regexp.MustCompile(`^(\d+)\s*(mo|w|d|h|m|s)(\s+ago)?$`)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Past resolves an expression to a point at or before now. It accepts
// relative offsets ("2h", "15m ago", "1mo"), Go durations ("1h30m"),
// "today", "yesterday", weekday names ("mon", "last fri"), dates
// (2006-01-02) and RFC3339 timestamps.
func Past(s string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	input := strings.ToLower(raw)

	switch input {
	case "now":
		return now, nil
	case "today":
		return midnight(now), nil
	case "yesterday":
		return midnight(now).AddDate(0, 0, -1), nil
	}

	if t, ok := lastWeekday(input, now); ok {
		return t, nil
	}

	if m := relativeRegex.FindStringSubmatch(input); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return time.Time{}, fmt.Errorf("invalid relative time %q", raw)
		}
		return back(now, n, m[2]), nil
	}

	if d, err := time.ParseDuration(input); err == nil && d > 0 {
		return now.Add(-d), nil
	}

	if t, err := time.ParseInLocation("2006-01-02", raw, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid time expression %q", raw)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// lastWeekday returns the most recent midnight falling on the named day.
// "last" skips today.
func lastWeekday(input string, now time.Time) (time.Time, bool) {
	strict := false
	if rest, ok := strings.CutPrefix(input, "last "); ok {
		strict = true
		input = strings.TrimSpace(rest)
	}
	day, ok := weekdays[input]
	if !ok {
		return time.Time{}, false
	}
	today := midnight(now)
	delta := (int(today.Weekday()) - int(day) + 7) % 7
	if strict && delta == 0 {
		delta = 7
	}
	return today.AddDate(0, 0, -delta), true
}

func back(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "mo":
		return now.AddDate(0, -n, 0)
	case "w":
		return now.AddDate(0, 0, -7*n)
	case "d":
		return now.AddDate(0, 0, -n)
	case "h":
		return now.Add(-time.Duration(n) * time.Hour)
	case "m":
		return now.Add(-time.Duration(n) * time.Minute)
	default:
		return now.Add(-time.Duration(n) * time.Second)
	}
}
