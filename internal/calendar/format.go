package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DateFormatter turns canonical dates into display strings. The engine never
// builds user-facing text itself; hosts plug in a locale-aware implementation.
type DateFormatter interface {
	FormatMonthViewDay(date time.Time) string
	FormatMonthViewDayHeader(date time.Time) string
	FormatMonthViewTitle(date time.Time) string
	FormatWeekViewDayHeader(date time.Time) string
	FormatWeekViewTitle(date time.Time) string
	FormatWeekViewHourColumn(date time.Time) string
	FormatDayViewTitle(date time.Time) string
	FormatDayViewHourColumn(date time.Time) string
}

// LayoutFormatter formats with Go time layouts. WeekTitle may contain one %d
// verb, which receives the ISO week number.
type LayoutFormatter struct {
	Day           string
	DayHeader     string
	MonthTitle    string
	WeekTitle     string
	WeekDayHeader string
	HourColumn    string
	DayTitle      string
}

// DefaultFormatter returns layouts matching the component's stock formats.
func DefaultFormatter() LayoutFormatter {
	return LayoutFormatter{
		Day:           "2",
		DayHeader:     "Mon",
		MonthTitle:    "January 2006",
		WeekTitle:     "January 2006, Week %d",
		WeekDayHeader: "Mon 2",
		HourColumn:    "3PM",
		DayTitle:      "January 02, 2006",
	}
}

func (f LayoutFormatter) FormatMonthViewDay(date time.Time) string {
	return date.Format(f.Day)
}

func (f LayoutFormatter) FormatMonthViewDayHeader(date time.Time) string {
	return date.Format(f.DayHeader)
}

func (f LayoutFormatter) FormatMonthViewTitle(date time.Time) string {
	return date.Format(f.MonthTitle)
}

func (f LayoutFormatter) FormatWeekViewDayHeader(date time.Time) string {
	return date.Format(f.WeekDayHeader)
}

func (f LayoutFormatter) FormatWeekViewTitle(date time.Time) string {
	layout := f.WeekTitle
	if !strings.Contains(layout, "%d") {
		return date.Format(layout)
	}
	_, week := date.ISOWeek()
	// Escape other percent signs before handing the layout to Sprintf.
	layout = strings.ReplaceAll(layout, "%", "%%")
	layout = strings.Replace(layout, "%%d", "%d", 1)
	return fmt.Sprintf(date.Format(layout), week)
}

func (f LayoutFormatter) FormatWeekViewHourColumn(date time.Time) string {
	return date.Format(f.HourColumn)
}

func (f LayoutFormatter) FormatDayViewTitle(date time.Time) string {
	return date.Format(f.DayTitle)
}

func (f LayoutFormatter) FormatDayViewHourColumn(date time.Time) string {
	return date.Format(f.HourColumn)
}

// titleFor picks the title formatter for the mode. Week titles are formatted
// from the first day of the range, day titles from the day itself and month
// titles from the first of the month.
func titleFor(f DateFormatter, mode Mode, rng Range) string {
	switch mode {
	case ModeMonth:
		return f.FormatMonthViewTitle(rng.StartTime)
	case ModeWeek:
		return f.FormatWeekViewTitle(rng.StartTime)
	default:
		return f.FormatDayViewTitle(rng.StartTime)
	}
}
