package calendar

import (
	"sort"
	"time"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// Build computes the view of mode for the visible range rng. opts.Mode is
// ignored in favour of mode. Malformed events are skipped; use Ingest to get
// the individual validation errors.
func Build(events []model.Event, rng Range, mode Mode, opts Options) (View, error) {
	opts.Mode = mode
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	valid, rejected := Ingest(events)
	if len(rejected) > 0 {
		appLog.Debug("calendar: build skipped invalid events", "count", len(rejected))
	}

	switch mode {
	case ModeMonth:
		return buildMonth(valid, rng, opts)
	case ModeWeek:
		return buildWeek(valid, rng, opts), nil
	default:
		return buildDay(valid, rng, opts), nil
	}
}

// Ingest validates events and returns the accepted ones in stable
// chronological order (start, end, input order) plus one *ValidationError per
// rejected event. The input slice is not modified.
func Ingest(events []model.Event) ([]model.Event, []error) {
	valid := make([]model.Event, 0, len(events))
	var errs []error
	for _, ev := range events {
		if err := validateEvent(ev); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, ev)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if !valid[i].StartTime.Equal(valid[j].StartTime) {
			return valid[i].StartTime.Before(valid[j].StartTime)
		}
		return valid[i].EndTime.Before(valid[j].EndTime)
	})
	return valid, errs
}

func validateEvent(ev model.Event) error {
	switch {
	case ev.StartTime.IsZero():
		return &ValidationError{Identifier: ev.Identifier, Reason: "missing start time"}
	case ev.EndTime.IsZero():
		return &ValidationError{Identifier: ev.Identifier, Reason: "missing end time"}
	case ev.StartTime.After(ev.EndTime):
		return &ValidationError{Identifier: ev.Identifier, Reason: "start time is after end time"}
	}
	return nil
}

func buildMonth(events []model.Event, rng Range, opts Options) (*MonthView, error) {
	grid, err := MonthGrid(rng.StartTime, opts.StartingDayMonth)
	if err != nil {
		return nil, err
	}
	month := rng.StartTime.Month()
	today := opts.Now().In(rng.StartTime.Location())

	view := &MonthView{
		Range:      rng,
		DayHeaders: make([]string, 0, daysPerWeek),
		Rows:       make([]MonthViewRow, 0, monthGridDays),
	}
	for i := 0; i < monthGridDays; i++ {
		date := grid.StartTime.AddDate(0, 0, i)
		if i < daysPerWeek {
			view.DayHeaders = append(view.DayHeaders, opts.Formatter.FormatMonthViewDayHeader(date))
		}
		dayEvents := eventsOnDate(events, date)
		view.Rows = append(view.Rows, MonthViewRow{
			Date:      date,
			Label:     opts.Formatter.FormatMonthViewDay(date),
			Events:    dayEvents,
			HasEvent:  len(dayEvents) > 0,
			Secondary: date.Month() != month,
			Disabled:  opts.isDisabled(date),
			Current:   sameDate(date, today),
		})
	}
	return view, nil
}

func buildWeek(events []model.Event, rng Range, opts Options) *WeekView {
	today := opts.Now().In(rng.StartTime.Location())
	slots := opts.SlotCount()

	view := &WeekView{
		Range:      rng,
		DayHeaders: make([]string, 0, daysPerWeek),
		Days:       make([]WeekDay, 0, daysPerWeek),
		Rows:       make([][]TimeRow, slots),
	}
	for s := range view.Rows {
		view.Rows[s] = make([]TimeRow, daysPerWeek)
	}

	for d := 0; d < daysPerWeek; d++ {
		date := rng.StartTime.AddDate(0, 0, d)
		label := opts.Formatter.FormatWeekViewDayHeader(date)
		view.DayHeaders = append(view.DayHeaders, label)
		view.Days = append(view.Days, WeekDay{
			Date:     date,
			Label:    label,
			Disabled: opts.isDisabled(date),
			Current:  sameDate(date, today),
		})

		col := newColumn(date, opts)
		rows := col.rows(opts.Formatter.FormatWeekViewHourColumn)
		col.fill(rows, col.layout(events))
		for s := range rows {
			view.Rows[s][d] = rows[s]
		}
	}

	view.AllDayEvents = weekAllDayLane(events, rng)
	return view
}

func buildDay(events []model.Event, rng Range, opts Options) *DayView {
	date := model.DateOf(rng.StartTime)
	col := newColumn(date, opts)
	rows := col.rows(opts.Formatter.FormatDayViewHourColumn)
	col.fill(rows, col.layout(events))

	var allDay []model.Event
	for _, ev := range events {
		if ev.AllDay && coversDate(ev, date) {
			allDay = append(allDay, ev)
		}
	}

	return &DayView{
		Range:        rng,
		AllDayEvents: allDay,
		Rows:         rows,
	}
}

// eventsOnDate returns the events intersecting the calendar date. All-day
// events count by date only; timed events by their instants.
func eventsOnDate(events []model.Event, date time.Time) []model.Event {
	dayStart := date
	dayEnd := date.AddDate(0, 0, 1)
	var out []model.Event
	for _, ev := range events {
		if ev.AllDay {
			if coversDate(ev, date) {
				out = append(out, ev)
			}
			continue
		}
		if intersects(ev, dayStart, dayEnd) {
			out = append(out, ev)
		}
	}
	return out
}

// intersects reports whether a timed event touches [from, to). Zero-length
// events count when their instant lies inside the window.
func intersects(ev model.Event, from, to time.Time) bool {
	if !ev.EndTime.After(ev.StartTime) {
		return !ev.StartTime.Before(from) && ev.StartTime.Before(to)
	}
	return ev.StartTime.Before(to) && ev.EndTime.After(from)
}

// coversDate compares civil dates so that an all-day event stored in another
// location still lands on its own date.
func coversDate(ev model.Event, date time.Time) bool {
	loc := date.Location()
	first := civilDate(ev.FirstDate(), loc)
	end := civilDate(ev.EndDate(), loc)
	d := model.DateOf(date)
	return !d.Before(first) && d.Before(end)
}

func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// weekAllDayLane places all-day events on day columns and resolves their lanes.
func weekAllDayLane(events []model.Event, rng Range) []DisplayEvent {
	loc := rng.StartTime.Location()
	first := model.DateOf(rng.StartTime)
	var items []DisplayEvent
	for _, ev := range events {
		if !ev.AllDay {
			continue
		}
		start := daysBetween(first, civilDate(ev.FirstDate(), loc))
		end := daysBetween(first, civilDate(ev.EndDate(), loc))
		if end <= 0 || start >= daysPerWeek {
			continue
		}
		items = append(items, DisplayEvent{
			Event:      ev,
			StartIndex: max(start, 0),
			EndIndex:   min(end, daysPerWeek),
		})
	}
	return resolveLanes(items, func(d DisplayEvent) (time.Time, time.Time) {
		return first.AddDate(0, 0, d.StartIndex), first.AddDate(0, 0, d.EndIndex)
	})
}

// daysBetween counts calendar days from a to b, both at midnight. Rounding
// absorbs 23h/25h DST days.
func daysBetween(a, b time.Time) int {
	hours := b.Sub(a).Hours()
	if hours < 0 {
		return -int(-hours/24 + 0.5)
	}
	return int(hours/24 + 0.5)
}
