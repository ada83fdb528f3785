// Package report derives the dashboard and report view models from the
// current user, task and category snapshots. Every function is pure: the
// caller passes "now" and the inputs, and gets a fresh result back.
package report

import (
	"math"
	"time"
)

// Window is a closed interval [Start, End] in a fixed location.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the window, inclusive on both ends.
func (w Window) Contains(t *time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// MonthOf returns the local calendar month containing now.
func MonthOf(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// WeekOf returns the Monday-start week containing now.
func WeekOf(now time.Time) Window {
	offset := (int(now.Weekday()) + 6) % 7 // Monday = 0
	start := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, now.Location())
	return Window{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond)}
}

// DaysIn returns the number of days in the month containing t.
func DaysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// percent returns round(part/total*100), or 0 when total is 0.
func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
