package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var naturalTime = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

var timeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime accepts RFC3339, a local "YYYY-MM-DD[ HH:MM]" timestamp, or
// natural language such as "tomorrow 3pm" relative to now.
func parseTime(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	r, err := naturalTime.Parse(s, now.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return r.Time, nil
}

// parseOptionalTime is parseTime for flags that may be left empty.
func parseOptionalTime(s string, now time.Time, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseTime(s, now, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDay resolves a --day flag; empty means today.
func parseDay(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return now.In(loc), nil
	}
	return parseTime(s, now, loc)
}

// parseDuration accepts Go durations ("1h30m") and bare minutes ("90").
func parseDuration(s string) (int, error) {
	s = strings.TrimSpace(s)
	var minutes int
	if _, err := fmt.Sscanf(s, "%d", &minutes); err == nil && fmt.Sprint(minutes) == s {
		if minutes <= 0 {
			return 0, fmt.Errorf("duration must be positive (got %s)", s)
		}
		return minutes, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < time.Minute {
		return 0, fmt.Errorf("duration must be at least a minute (got %s)", s)
	}
	return int(d / time.Minute), nil
}
