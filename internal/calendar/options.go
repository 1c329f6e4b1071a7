package calendar

import (
	"context"
	"time"

	"calgrid/internal/model"
)

// Mode selects the calendar granularity.
type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

// QueryMode tells the engine whether the event source is complete (local) or
// has to be fetched per visible range (remote).
type QueryMode string

const (
	QueryLocal  QueryMode = "local"
	QueryRemote QueryMode = "remote"
)

// Common slot widths in minutes. Any positive divisor of 60 is accepted.
const (
	StepQuarterHour = 15
	StepHalfHour    = 30
	StepHour        = 60
)

// EventLoader fetches events for a visible range when QueryMode is remote.
type EventLoader interface {
	LoadEvents(ctx context.Context, rng Range) ([]model.Event, error)
}

// Options is the full engine configuration.
type Options struct {
	Mode Mode
	// Step is the slot width in minutes for day and week views.
	Step int
	// StartHour and EndHour bound the day/week time grid, [StartHour, EndHour).
	StartHour int
	EndHour   int
	// StartingDayMonth and StartingDayWeek are the first weekday (0=Sunday)
	// of the month grid and of the week view.
	StartingDayMonth int
	StartingDayWeek  int

	AutoSelect bool
	QueryMode  QueryMode

	// MarkDisabled reports dates that may be rendered but not selected.
	MarkDisabled func(date time.Time) bool

	Formatter DateFormatter
	Loader    EventLoader

	// Now is used for the "current" flag and Today navigation.
	Now func() time.Time
}

// DefaultOptions returns a month view starting on Sunday with hourly slots.
func DefaultOptions() Options {
	return Options{
		Mode:       ModeMonth,
		Step:       StepHour,
		StartHour:  0,
		EndHour:    24,
		AutoSelect: true,
		QueryMode:  QueryLocal,
		Formatter:  DefaultFormatter(),
		Now:        time.Now,
	}
}

// Validate checks every option and returns the first *ConfigurationError.
func (o Options) Validate() error {
	switch o.Mode {
	case ModeDay, ModeWeek, ModeMonth:
	default:
		return configErr("mode", o.Mode, "must be day, week or month")
	}
	if err := validateStep(o.Step); err != nil {
		return err
	}
	if err := validateHours(o.StartHour, o.EndHour); err != nil {
		return err
	}
	if err := validateWeekStart("startingDayMonth", o.StartingDayMonth); err != nil {
		return err
	}
	if err := validateWeekStart("startingDayWeek", o.StartingDayWeek); err != nil {
		return err
	}
	switch o.QueryMode {
	case QueryLocal, QueryRemote:
	default:
		return configErr("queryMode", o.QueryMode, "must be local or remote")
	}
	return nil
}

// SlotsPerHour returns 60/Step.
func (o Options) SlotsPerHour() int {
	return 60 / o.Step
}

// SlotCount returns the number of slot rows in one day column.
func (o Options) SlotCount() int {
	return (o.EndHour - o.StartHour) * o.SlotsPerHour()
}

func (o Options) withDefaults() Options {
	if o.Formatter == nil {
		o.Formatter = DefaultFormatter()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) isDisabled(date time.Time) bool {
	return o.MarkDisabled != nil && o.MarkDisabled(date)
}

func (o Options) weekStartFor(mode Mode) int {
	if mode == ModeMonth {
		return o.StartingDayMonth
	}
	return o.StartingDayWeek
}

func (o Options) rangeOptions() RangeOptions {
	return RangeOptions{
		WeekStart: o.weekStartFor(o.Mode),
		StartHour: o.StartHour,
		EndHour:   o.EndHour,
	}
}

func validateStep(step int) error {
	if step <= 0 || step > 60 || 60%step != 0 {
		return configErr("step", step, "must evenly divide 60")
	}
	return nil
}

func validateHours(start, end int) error {
	if start < 0 || start > 24 {
		return configErr("startHour", start, "must be within 0..24")
	}
	if end < 0 || end > 24 {
		return configErr("endHour", end, "must be within 0..24")
	}
	if start >= end {
		return configErr("startHour", start, "must be before endHour")
	}
	return nil
}

func validateWeekStart(field string, day int) error {
	if day < 0 || day > 6 {
		return configErr(field, day, "must be a weekday 0..6")
	}
	return nil
}
