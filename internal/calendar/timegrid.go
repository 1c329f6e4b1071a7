package calendar

import (
	"time"

	"calgrid/internal/model"
)

// column is one day of a day/week time grid.
type column struct {
	date      time.Time
	from, to  time.Time
	step      int
	slot      time.Duration
	startHour int
	slotCount int
}

func newColumn(date time.Time, opts Options) column {
	from, to := dayBounds(date, opts.StartHour, opts.EndHour)
	return column{
		date:      date,
		from:      from,
		to:        to,
		step:      opts.Step,
		slot:      time.Duration(opts.Step) * time.Minute,
		startHour: opts.StartHour,
		slotCount: opts.SlotCount(),
	}
}

// rows creates the empty slot rows of the column. Rows follow wall-clock
// time: a row whose wall time is skipped by a DST jump keeps its label and
// points at the first instant after the gap.
func (c column) rows(label func(time.Time) string) []TimeRow {
	y, m, d := c.date.Date()
	loc := c.date.Location()
	rows := make([]TimeRow, c.slotCount)
	for i := range rows {
		minutes := c.startHour*60 + i*c.step
		h, mi := minutes/60, minutes%60
		t := time.Date(y, m, d, h, mi, 0, 0, loc)
		if gap := h*60 + mi - (t.Hour()*60 + t.Minute()); gap > 0 && sameDate(t, c.date) {
			t = t.Add(time.Duration(gap) * time.Minute)
		}
		name, off := t.Zone()
		wall := time.Date(y, m, d, h, mi, 0, 0, time.FixedZone(name, off))
		rows[i] = TimeRow{Time: t, Label: label(wall), Events: []DisplayEvent{}}
	}
	return rows
}

// wallOffset is the wall-clock distance of t from the column's first visible
// hour, so slot indexes match row times on 23h and 25h days.
func (c column) wallOffset(t time.Time) time.Duration {
	t = t.In(c.date.Location())
	y, m, d := c.date.Date()
	ty, tm, td := t.Date()
	days := daysBetween(time.Date(y, m, d, 0, 0, 0, 0, time.UTC), time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC))
	off := time.Duration(days*24+t.Hour()-c.startHour)*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	// The first visible hour itself may fall in a DST gap.
	return max(off, 0)
}

// place computes the slot coordinates of a timed event, clipped to the
// visible window. ok is false when the event does not touch the column.
func (c column) place(ev model.Event) (DisplayEvent, bool) {
	if ev.AllDay || !intersects(ev, c.from, c.to) {
		return DisplayEvent{}, false
	}

	start := ev.StartTime
	if start.Before(c.from) {
		start = c.from
	}
	end := ev.EndTime
	if end.After(c.to) {
		end = c.to
	}

	startOff := c.wallOffset(start)
	de := DisplayEvent{
		Event:       ev,
		StartIndex:  int(startOff / c.slot),
		StartOffset: fraction(startOff%c.slot, c.slot),
	}

	if end.After(start) {
		endOff := c.wallOffset(end)
		de.EndIndex = int(endOff / c.slot)
		if rem := endOff % c.slot; rem > 0 {
			de.EndIndex++
			de.EndOffset = fraction(c.slot-rem, c.slot)
		}
	}

	if de.StartIndex >= c.slotCount {
		de.StartIndex = c.slotCount - 1
	}
	if de.EndIndex > c.slotCount {
		de.EndIndex = c.slotCount
		de.EndOffset = 0
	}
	// Zero-length events still occupy one slot.
	if de.EndIndex <= de.StartIndex {
		de.EndIndex = de.StartIndex + 1
		de.EndOffset = 0
	}
	return de, true
}

// layout places every timed event of the column and resolves lanes.
func (c column) layout(events []model.Event) []DisplayEvent {
	var placed []DisplayEvent
	for _, ev := range events {
		if de, ok := c.place(ev); ok {
			placed = append(placed, de)
		}
	}
	return resolveLanes(placed, c.slotLaneBounds)
}

// slotLaneBounds is the interval a placed event occupies for lane purposes. A
// zero-length event reaches only to the end of the slot it is drawn in.
func (c column) slotLaneBounds(d DisplayEvent) (time.Time, time.Time) {
	ev := d.Event
	if ev.EndTime.After(ev.StartTime) {
		return ev.StartTime, ev.EndTime
	}
	return ev.StartTime, ev.StartTime.Add(c.slot - c.wallOffset(ev.StartTime)%c.slot)
}

// fill appends each display event to every row it spans.
func (c column) fill(rows []TimeRow, placed []DisplayEvent) {
	for _, de := range placed {
		for i := de.StartIndex; i < de.EndIndex && i < len(rows); i++ {
			rows[i].Events = append(rows[i].Events, de)
		}
	}
}

// slotIndex returns the slot holding t, or -1 outside the visible window.
func (c column) slotIndex(t time.Time) int {
	if t.Before(c.from) || !t.Before(c.to) {
		return -1
	}
	idx := int(c.wallOffset(t) / c.slot)
	if idx >= c.slotCount {
		return c.slotCount - 1
	}
	return idx
}

func fraction(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
