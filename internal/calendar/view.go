package calendar

import (
	"time"

	"calgrid/internal/model"
)

// View is an immutable, renderable snapshot for one mode and reference date.
// Concrete types are *DayView, *WeekView and *MonthView.
type View interface {
	Mode() Mode
	Visible() Range
}

// DisplayEvent wraps an event with grid coordinates. For time grids the
// indexes are slot indexes; for the week all-day lane they are day columns.
// EndIndex is exclusive.
type DisplayEvent struct {
	Event      model.Event `json:"event"`
	StartIndex int         `json:"startIndex"`
	EndIndex   int         `json:"endIndex"`
	// StartOffset is the fraction of the first slot before the event starts,
	// EndOffset the fraction of the last slot after it ends. Both are in [0,1).
	StartOffset float64 `json:"startOffset,omitempty"`
	EndOffset   float64 `json:"endOffset,omitempty"`
	// OverlapNumber is the 0-based lane; Position is the lane count of the
	// overlap group, so the rendered width is 1/Position.
	OverlapNumber int `json:"overlapNumber"`
	Position      int `json:"position"`
}

// TimeRow is one slot of a day column.
type TimeRow struct {
	Time   time.Time      `json:"time"`
	Label  string         `json:"label"`
	Events []DisplayEvent `json:"events"`
}

// MonthViewRow is one day cell of the month grid.
type MonthViewRow struct {
	Date      time.Time     `json:"date"`
	Label     string        `json:"label"`
	Events    []model.Event `json:"events"`
	HasEvent  bool          `json:"hasEvent"`
	Secondary bool          `json:"secondary"`
	Disabled  bool          `json:"disabled"`
	Current   bool          `json:"current"`
	Selected  bool          `json:"selected"`
}

type MonthView struct {
	Range      Range          `json:"range"`
	DayHeaders []string       `json:"dayHeaders"`
	Rows       []MonthViewRow `json:"rows"`
}

func (v *MonthView) Mode() Mode     { return ModeMonth }
func (v *MonthView) Visible() Range { return v.Range }

// Grid returns the span actually drawn, including adjacent-month days.
func (v *MonthView) Grid() Range {
	if len(v.Rows) == 0 {
		return v.Range
	}
	first := v.Rows[0].Date
	return Range{StartTime: first, EndTime: v.Rows[len(v.Rows)-1].Date.AddDate(0, 0, 1)}
}

// Cell returns the index of the cell holding date, or -1.
func (v *MonthView) Cell(date time.Time) int {
	for i, row := range v.Rows {
		if sameDate(row.Date, date.In(row.Date.Location())) {
			return i
		}
	}
	return -1
}

// withSelection returns a copy whose Selected flags mark the cell at idx
// (idx < 0 clears the selection). Rows slices are copied, not shared.
func (v *MonthView) withSelection(idx int) *MonthView {
	cp := *v
	cp.Rows = make([]MonthViewRow, len(v.Rows))
	copy(cp.Rows, v.Rows)
	for i := range cp.Rows {
		cp.Rows[i].Selected = i == idx
	}
	return &cp
}

// WeekDay describes one day column of the week view.
type WeekDay struct {
	Date     time.Time `json:"date"`
	Label    string    `json:"label"`
	Disabled bool      `json:"disabled"`
	Current  bool      `json:"current"`
}

type WeekView struct {
	Range      Range     `json:"range"`
	DayHeaders []string  `json:"dayHeaders"`
	Days       []WeekDay `json:"days"`
	// AllDayEvents spans day columns; StartIndex/EndIndex are day indexes.
	AllDayEvents []DisplayEvent `json:"allDayEvents"`
	// Rows is indexed [slot][day].
	Rows [][]TimeRow `json:"rows"`
}

func (v *WeekView) Mode() Mode     { return ModeWeek }
func (v *WeekView) Visible() Range { return v.Range }

type DayView struct {
	Range        Range         `json:"range"`
	AllDayEvents []model.Event `json:"allDayEvents"`
	Rows         []TimeRow     `json:"rows"`
}

func (v *DayView) Mode() Mode     { return ModeDay }
func (v *DayView) Visible() Range { return v.Range }

// TimeSelected is the answer to a cell selection.
type TimeSelected struct {
	SelectedTime time.Time     `json:"selectedTime"`
	Events       []model.Event `json:"events"`
	Disabled     bool          `json:"disabled"`
}
