package calendar

import (
	"context"
	"time"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/pkg/logging"
)

// BusinessHours runs work inside a daily window on the days the working
// calendar allows.
type BusinessHours struct {
	startHour, startMinute int
	endHour, endMinute     int
	location               *time.Location
	calendar               WorkingCalendar
	logger                 *logging.Logger
}

// NewBusinessHours creates the 09:00-18:00 window on every day in UTC
func NewBusinessHours() *BusinessHours {
	return &BusinessHours{
		startHour: 9,
		endHour:   18,
		location:  time.UTC,
		calendar:  EveryDay{},
		logger:    logging.NewNop(),
	}
}

// NewBusinessHoursFromConfig builds the window from configuration
func NewBusinessHoursFromConfig(cfg *config.Config, cal WorkingCalendar, logger *logging.Logger) *BusinessHours {
	bh := NewBusinessHours()
	bh.startHour, bh.startMinute, _ = config.ParseClock(cfg.Scheduling.WorkdayStart)
	bh.endHour, bh.endMinute, _ = config.ParseClock(cfg.Scheduling.WorkdayEnd)
	bh.location = cfg.Location()
	if cal != nil {
		bh.calendar = cal
	}
	if logger != nil {
		bh.logger = logger.WithComponent("business-hours")
	}
	return bh
}

// WithCalendar returns a copy consulting cal for working days
func (b *BusinessHours) WithCalendar(cal WorkingCalendar) *BusinessHours {
	out := *b
	out.calendar = cal
	return &out
}

// Location returns the timezone of the window
func (b *BusinessHours) Location() *time.Location {
	return b.location
}

// Calendar returns the working-calendar collaborator
func (b *BusinessHours) Calendar() WorkingCalendar {
	return b.calendar
}

func (b *BusinessHours) dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, b.startHour, b.startMinute, 0, 0, b.location)
}

func (b *BusinessHours) dayEnd(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, b.endHour, b.endMinute, 0, 0, b.location)
}

// DayLength is the working time in one day
func (b *BusinessHours) DayLength() time.Duration {
	ref := time.Date(2000, 1, 3, 0, 0, 0, 0, b.location)
	return b.dayEnd(ref).Sub(b.dayStart(ref))
}

// isWorkingDay asks the collaborator; an error counts as working
func (b *BusinessHours) isWorkingDay(ctx context.Context, t time.Time) bool {
	ok, err := b.calendar.IsWorkingInstant(ctx, b.dayStart(t))
	if err != nil {
		b.logger.WithError(err).Warn("Working calendar unavailable, assuming working day", "date", t.Format(time.DateOnly))
		return true
	}
	return ok
}

// Roll moves t forward to the next working instant. Instants inside the
// window of a working day are returned unchanged.
func (b *BusinessHours) Roll(ctx context.Context, t time.Time) time.Time {
	t = t.In(b.location)
	for i := 0; i < maxScanDays; i++ {
		start, end := b.dayStart(t), b.dayEnd(t)
		switch {
		case !t.Before(end):
			t = b.dayStart(start.AddDate(0, 0, 1))
			continue
		case !b.isWorkingDay(ctx, t):
			t = b.dayStart(start.AddDate(0, 0, 1))
			continue
		case t.Before(start):
			return start
		default:
			return t
		}
	}
	return t
}

// Advance returns the instant reached after d of working time from start.
// Work stops at the end of each day and resumes at the next working
// instant. An empty daily window counts the remainder as continuous time.
func (b *BusinessHours) Advance(ctx context.Context, start time.Time, d time.Duration) time.Time {
	t := b.Roll(ctx, start)
	remaining := d
	for remaining > 0 {
		end := b.dayEnd(t)
		avail := end.Sub(t)
		if avail <= 0 || remaining <= avail {
			return t.Add(remaining)
		}
		remaining -= avail
		t = b.Roll(ctx, end)
	}
	return t
}

// CapacityHours sums the working hours of the days in [from, to]
func (b *BusinessHours) CapacityHours(ctx context.Context, from, to time.Time) float64 {
	from, to = from.In(b.location), to.In(b.location)
	day := b.dayStart(from)
	var total time.Duration
	for i := 0; !day.After(to) && i < maxScanDays*5; i++ {
		if b.isWorkingDay(ctx, day) {
			total += b.DayLength()
		}
		day = b.dayStart(day.AddDate(0, 0, 1))
	}
	return total.Hours()
}
