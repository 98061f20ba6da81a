// Package calendar implements business-hours arithmetic on top of a
// working-calendar collaborator that decides which days are worked.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// WorkingCalendar answers which instants are worked and advances dates by
// working time.
type WorkingCalendar interface {
	IsWorkingInstant(ctx context.Context, t time.Time) (bool, error)
	AddWorkingHours(ctx context.Context, from time.Time, hours float64) (time.Time, error)
	AddWorkingDays(ctx context.Context, from time.Time, days int) (time.Time, error)
}

// maxScanDays bounds searches for the next working day
const maxScanDays = 366

// EveryDay treats every day as a working day
type EveryDay struct{}

func (EveryDay) IsWorkingInstant(ctx context.Context, t time.Time) (bool, error) {
	return true, nil
}

func (EveryDay) AddWorkingHours(ctx context.Context, from time.Time, hours float64) (time.Time, error) {
	return from.Add(time.Duration(hours * float64(time.Hour))), nil
}

func (EveryDay) AddWorkingDays(ctx context.Context, from time.Time, days int) (time.Time, error) {
	return from.AddDate(0, 0, days), nil
}

// Weekdays works Monday to Friday except the listed holidays
type Weekdays struct {
	location *time.Location
	holidays map[string]bool
}

// NewWeekdays creates a Monday-Friday calendar. Holidays are YYYY-MM-DD
// dates in loc.
func NewWeekdays(loc *time.Location, holidays []string) (*Weekdays, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := &Weekdays{location: loc, holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		d, err := time.ParseInLocation(time.DateOnly, h, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		w.holidays[d.Format(time.DateOnly)] = true
	}
	return w, nil
}

func (w *Weekdays) isWorkingDay(t time.Time) bool {
	local := t.In(w.location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !w.holidays[local.Format(time.DateOnly)]
}

func (w *Weekdays) IsWorkingInstant(ctx context.Context, t time.Time) (bool, error) {
	return w.isWorkingDay(t), nil
}

// AddWorkingHours counts only time on working days
func (w *Weekdays) AddWorkingHours(ctx context.Context, from time.Time, hours float64) (time.Time, error) {
	remaining := time.Duration(hours * float64(time.Hour))
	t := from.In(w.location)
	for i := 0; remaining > 0; i++ {
		if i > maxScanDays*2 {
			return time.Time{}, fmt.Errorf("no working day within %d days of %s", maxScanDays, from.Format(time.RFC3339))
		}
		midnight := startOfDay(t).AddDate(0, 0, 1)
		if !w.isWorkingDay(t) {
			t = midnight
			continue
		}
		avail := midnight.Sub(t)
		if remaining <= avail {
			return t.Add(remaining), nil
		}
		remaining -= avail
		t = midnight
	}
	return t, nil
}

// AddWorkingDays moves forward by days working days
func (w *Weekdays) AddWorkingDays(ctx context.Context, from time.Time, days int) (time.Time, error) {
	t := from.In(w.location)
	for added, scanned := 0, 0; added < days; scanned++ {
		if scanned > maxScanDays*2 {
			return time.Time{}, fmt.Errorf("no working day within %d days of %s", maxScanDays, from.Format(time.RFC3339))
		}
		t = t.AddDate(0, 0, 1)
		if w.isWorkingDay(t) {
			added++
		}
	}
	return t, nil
}

// NationalHolidays returns the fixed-date public holidays of a year
func NationalHolidays(year int) []string {
	dates := []struct {
		month time.Month
		day   int
	}{
		{time.January, 1},
		{time.March, 8},
		{time.March, 21},
		{time.May, 9},
		{time.September, 1},
		{time.October, 1},
		{time.December, 8},
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, time.Date(year, d.month, d.day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly))
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
