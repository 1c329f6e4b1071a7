package calendar

import (
	"time"

	"calgrid/internal/model"
)

// SelectionModel holds the currently selected cell, if any.
type SelectionModel struct {
	current *TimeSelected
}

// Current returns the selection and whether there is one.
func (s *SelectionModel) Current() (TimeSelected, bool) {
	if s.current == nil {
		return TimeSelected{}, false
	}
	return *s.current, true
}

func (s *SelectionModel) Clear() {
	s.current = nil
}

func (s *SelectionModel) set(ts TimeSelected) {
	s.current = &ts
}

// Select resolves the cell of date in view and makes it the selection.
// Disabled and out-of-range cells fail with *SelectionError unless
// opts.AutoSelect is on, in which case the call is a no-op and the previous
// selection is returned. changed reports whether the selection moved.
func (s *SelectionModel) Select(view View, date time.Time, opts Options) (ts TimeSelected, changed bool, err error) {
	cell, ok := resolveCell(view, date, opts)
	switch {
	case !ok:
		err = &SelectionError{Time: date, Err: ErrCellOutOfRange}
	case cell.Disabled:
		err = &SelectionError{Time: date, Err: ErrCellDisabled}
	}
	if err != nil {
		if opts.AutoSelect {
			cur, _ := s.Current()
			return cur, false, nil
		}
		return TimeSelected{}, false, err
	}
	s.set(cell)
	return cell, true, nil
}

// autoSelect picks the reference date when it is a selectable day of the
// month, otherwise the first selectable day of the month. When the whole
// month is disabled the reference cell (or the 1st of the month) is kept and
// reported as disabled. ok is false when the view holds neither; the
// selection is then cleared.
func (s *SelectionModel) autoSelect(v *MonthView, ref time.Time) (ts TimeSelected, idx int, ok bool) {
	idx = v.Cell(ref)
	if idx >= 0 && selectable(v.Rows[idx]) {
		return s.selectRow(v, idx), idx, true
	}
	for i, row := range v.Rows {
		if selectable(row) {
			return s.selectRow(v, i), i, true
		}
	}
	if idx < 0 {
		idx = v.Cell(v.Range.StartTime)
	}
	if idx < 0 {
		s.Clear()
		return TimeSelected{}, -1, false
	}
	return s.selectRow(v, idx), idx, true
}

func (s *SelectionModel) selectRow(v *MonthView, idx int) TimeSelected {
	ts := monthCell(v.Rows[idx])
	s.set(ts)
	return ts
}

func selectable(row MonthViewRow) bool {
	return !row.Secondary && !row.Disabled
}

func monthCell(row MonthViewRow) TimeSelected {
	return TimeSelected{
		SelectedTime: row.Date,
		Events:       append([]model.Event(nil), row.Events...),
		Disabled:     row.Disabled,
	}
}

// resolveCell maps date to the cell that holds it in view.
func resolveCell(view View, date time.Time, opts Options) (TimeSelected, bool) {
	switch v := view.(type) {
	case *MonthView:
		idx := v.Cell(date)
		if idx < 0 {
			return TimeSelected{}, false
		}
		return monthCell(v.Rows[idx]), true
	case *WeekView:
		loc := v.Range.StartTime.Location()
		day := daysBetween(model.DateOf(v.Range.StartTime), model.DateOf(date.In(loc)))
		if day < 0 || day >= len(v.Days) {
			return TimeSelected{}, false
		}
		col := newColumn(v.Days[day].Date, opts)
		slot := col.slotIndex(date)
		if slot < 0 {
			return TimeSelected{}, false
		}
		row := v.Rows[slot][day]
		return TimeSelected{
			SelectedTime: row.Time,
			Events:       displayedEvents(row.Events),
			Disabled:     v.Days[day].Disabled,
		}, true
	case *DayView:
		date = date.In(v.Range.StartTime.Location())
		col := newColumn(model.DateOf(v.Range.StartTime), opts)
		slot := col.slotIndex(date)
		if slot < 0 {
			return TimeSelected{}, false
		}
		row := v.Rows[slot]
		return TimeSelected{
			SelectedTime: row.Time,
			Events:       displayedEvents(row.Events),
			Disabled:     opts.isDisabled(model.DateOf(v.Range.StartTime)),
		}, true
	default:
		return TimeSelected{}, false
	}
}

func displayedEvents(des []DisplayEvent) []model.Event {
	out := make([]model.Event, 0, len(des))
	for _, de := range des {
		out = append(out, de.Event)
	}
	return out
}
