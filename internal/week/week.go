// Package week computes the Monday to Sunday audit window used by selection
// and quota pacing. All dates are calendar days in UTC.
package week

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window is the audit week containing a reference date.
type Window struct {
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	WorkingDaysRemaining int       `json:"working_days_remaining"`
}

// StartDate and EndDate format the window bounds as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(dateLayout) }
func (w Window) EndDate() string   { return w.End.Format(dateLayout) }

// Contains reports whether day falls inside the window.
func (w Window) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Compute returns the window for ref. Working days run Monday through
// Saturday; a Sunday reference counts as the last working day so the
// remaining count is never zero.
func Compute(ref time.Time) Window {
	day := Day(ref)
	idx := weekdayIndex(day.Weekday())
	start := day.AddDate(0, 0, -(idx - 1))

	remaining := 7 - idx
	if day.Weekday() == time.Sunday {
		remaining = 1
	}

	return Window{
		Start:                start,
		End:                  start.AddDate(0, 0, 6),
		WorkingDaysRemaining: remaining,
	}
}

// weekdayIndex maps Monday=1 .. Sunday=7.
func weekdayIndex(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// DefaultReference is the day a run at now should audit: yesterday, or the
// Saturday before when yesterday was a Sunday.
func DefaultReference(now time.Time) time.Time {
	ref := Day(now).AddDate(0, 0, -1)
	if ref.Weekday() == time.Sunday {
		ref = ref.AddDate(0, 0, -1)
	}
	return ref
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Format renders a day as YYYY-MM-DD.
func Format(t time.Time) string {
	return Day(t).Format(dateLayout)
}

// CatchUp lists the working days after lastCovered up to and including
// target, oldest first, keeping at most maxDays of the most recent ones.
// A zero lastCovered yields just target.
func CatchUp(lastCovered, target time.Time, maxDays int) []time.Time {
	target = Day(target)
	if lastCovered.IsZero() {
		if target.Weekday() == time.Sunday {
			return nil
		}
		return []time.Time{target}
	}

	var days []time.Time
	for d := Day(lastCovered).AddDate(0, 0, 1); !d.After(target); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	if maxDays > 0 && len(days) > maxDays {
		days = days[len(days)-maxDays:]
	}
	return days
}
