package core

import (
	"fmt"
	"strings"
	"time"
)

// WeekWindow holds the inclusive boundaries of one calendar week.
type WeekWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, boundaries included.
func (w WeekWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WeekWindowOf resolves the calendar week containing now. The week begins on
// start at 00:00:00 and ends 6 days later at 23:59:59.999999999, both in
// now's location. Every operation that reasons about "this week" must go
// through this function with the same start weekday, otherwise the weekly
// capacity invariant becomes window-inconsistent.
func WeekWindowOf(now time.Time, start time.Weekday) WeekWindow {
	daysBack := int(now.Weekday()) - int(start)
	if daysBack < 0 {
		daysBack += 7
	}
	y, m, d := now.AddDate(0, 0, -daysBack).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return WeekWindow{Start: first, End: last}
}

// ParseWeekStart maps a configured week-start name to a weekday. Only sunday
// and monday are supported; the convention is pinned in configuration rather
// than inherited from any library or locale default.
func ParseWeekStart(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	default:
		return time.Sunday, fmt.Errorf("unsupported week start %q (want sunday or monday)", name)
	}
}
