// Package datewindow computes calendar windows (today, this week, this
// month) relative to an explicit reference instant and a fixed UTC offset.
// Business logic must never call time.Now directly for windowing; it asks a
// Calculator so tests can pin the clock.
package datewindow

import "time"

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Calculator derives windows for a fixed UTC offset (e.g. IST = +5h30m).
type Calculator struct {
	loc *time.Location
}

// New creates a Calculator for the given offset in minutes east of UTC.
func New(offsetMinutes int) Calculator {
	return Calculator{loc: time.FixedZone("clinic", offsetMinutes*60)}
}

// Day returns the calendar day containing ref.
func (c Calculator) Day(ref time.Time) Window {
	l := ref.In(c.loc)
	start := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Week returns the Monday-to-Monday week containing ref.
func (c Calculator) Week(ref time.Time) Window {
	l := ref.In(c.loc)
	weekday := int(l.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc).
		AddDate(0, 0, -(weekday - 1))
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Month returns the calendar month containing ref.
func (c Calculator) Month(ref time.Time) Window {
	l := ref.In(c.loc)
	start := time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, c.loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// LastDays returns the trailing window of n whole days ending at ref.
func (c Calculator) LastDays(ref time.Time, n int) Window {
	return Window{Start: ref.AddDate(0, 0, -n), End: ref}
}
