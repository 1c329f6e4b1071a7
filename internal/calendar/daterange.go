package calendar

import (
	"time"

	"calgrid/internal/model"
)

const (
	daysPerWeek   = 7
	monthGridDays = 6 * daysPerWeek
)

// Range is the half-open visible window [StartTime, EndTime).
type Range struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Contains reports whether t falls inside [StartTime, EndTime).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// Equal compares instants, ignoring location.
func (r Range) Equal(o Range) bool {
	return r.StartTime.Equal(o.StartTime) && r.EndTime.Equal(o.EndTime)
}

// RangeOptions are the inputs of ComputeRange besides the reference date.
type RangeOptions struct {
	// WeekStart is the first weekday of a week, 0=Sunday.
	WeekStart int
	StartHour int
	EndHour   int
}

// ComputeRange returns the visible window for mode around ref. All arithmetic
// is calendar arithmetic in ref's location, so DST transitions never shift
// boundaries off midnight.
func ComputeRange(ref time.Time, mode Mode, opts RangeOptions) (Range, error) {
	if err := validateWeekStart("weekStart", opts.WeekStart); err != nil {
		return Range{}, err
	}

	switch mode {
	case ModeMonth:
		first := firstOfMonth(ref)
		return Range{StartTime: first, EndTime: first.AddDate(0, 1, 0)}, nil
	case ModeWeek:
		start := weekStart(model.DateOf(ref), opts.WeekStart)
		return Range{StartTime: start, EndTime: start.AddDate(0, 0, daysPerWeek)}, nil
	case ModeDay:
		if err := validateHours(opts.StartHour, opts.EndHour); err != nil {
			return Range{}, err
		}
		y, m, d := ref.Date()
		loc := ref.Location()
		return Range{
			StartTime: time.Date(y, m, d, opts.StartHour, 0, 0, 0, loc),
			EndTime:   time.Date(y, m, d, opts.EndHour, 0, 0, 0, loc),
		}, nil
	default:
		return Range{}, configErr("mode", mode, "must be day, week or month")
	}
}

// MonthGrid returns the 42-day span drawn by the month view for ref's month:
// six whole weeks starting at the week-start weekday on or before the 1st.
func MonthGrid(ref time.Time, weekStartDay int) (Range, error) {
	if err := validateWeekStart("weekStart", weekStartDay); err != nil {
		return Range{}, err
	}
	start := weekStart(firstOfMonth(ref), weekStartDay)
	return Range{StartTime: start, EndTime: start.AddDate(0, 0, monthGridDays)}, nil
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// weekStart steps date back to the closest day whose weekday is startDay.
func weekStart(date time.Time, startDay int) time.Time {
	diff := (int(date.Weekday()) - startDay + daysPerWeek) % daysPerWeek
	return date.AddDate(0, 0, -diff)
}

// dayBounds returns the visible [startHour, endHour) window of one date.
func dayBounds(date time.Time, startHour, endHour int) (time.Time, time.Time) {
	y, m, d := date.Date()
	loc := date.Location()
	return time.Date(y, m, d, startHour, 0, 0, 0, loc), time.Date(y, m, d, endHour, 0, 0, 0, loc)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
