package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// Engine owns the current view and selection for one calendar. It is not safe
// for concurrent use; every call runs to completion synchronously and hosts
// sharing an Engine between goroutines must serialize access.
type Engine struct {
	opts   Options
	ref    time.Time
	source []model.Event

	rng   Range
	title string
	view  View

	selection SelectionModel
	notifier  RangeNotifier

	onCurrentDate   []func(time.Time)
	onTimeSelected  []func(TimeSelected)
	onEventSelected []func(model.Event)
	onViewChanged   []func(View)
}

// New validates opts and builds the first view around ref (opts.Now() when
// ref is zero).
func New(opts Options, ref time.Time) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		ref = opts.Now()
	}
	e := &Engine{opts: opts, ref: ref}
	if err := e.rebuild(); err != nil {
		return nil, err
	}
	return e, nil
}

// Callbacks run synchronously in registration order.

// OnRangeChanged registers fn for every rebuild that moves the visible range.
func (e *Engine) OnRangeChanged(fn func(RangeChange)) { e.notifier.OnRangeChanged(fn) }

// OnTitleChanged registers fn for title changes.
func (e *Engine) OnTitleChanged(fn func(string)) { e.notifier.OnTitleChanged(fn) }

// OnCurrentDateChanged registers fn for reference date changes.
func (e *Engine) OnCurrentDateChanged(fn func(time.Time)) {
	e.onCurrentDate = append(e.onCurrentDate, fn)
}

// OnTimeSelected registers fn for selection changes, including auto-selection.
func (e *Engine) OnTimeSelected(fn func(TimeSelected)) {
	e.onTimeSelected = append(e.onTimeSelected, fn)
}

// OnEventSelected registers fn for SelectEvent calls.
func (e *Engine) OnEventSelected(fn func(model.Event)) {
	e.onEventSelected = append(e.onEventSelected, fn)
}

// OnViewChanged registers fn for every rebuilt view.
func (e *Engine) OnViewChanged(fn func(View)) { e.onViewChanged = append(e.onViewChanged, fn) }

// Options returns the options in force.
func (e *Engine) Options() Options { return e.opts }

// View returns the current view; it is replaced, never mutated, on rebuild.
func (e *Engine) View() View { return e.view }

// Range returns the current visible range.
func (e *Engine) Range() Range { return e.rng }

// Title returns the formatted title of the current range.
func (e *Engine) Title() string { return e.title }

// ReferenceDate returns the date the current view is built around.
func (e *Engine) ReferenceDate() time.Time { return e.ref }

// Events returns the accepted event source in layout order.
func (e *Engine) Events() []model.Event {
	return append([]model.Event(nil), e.source...)
}

// Selection returns the current selection and whether there is one.
func (e *Engine) Selection() (TimeSelected, bool) {
	return e.selection.Current()
}

// SetReferenceDate moves the calendar to date; zero means now.
func (e *Engine) SetReferenceDate(date time.Time) error {
	if date.IsZero() {
		date = e.opts.Now()
	}
	changed := !date.Equal(e.ref)
	prev := e.ref
	e.ref = date
	if err := e.rebuild(); err != nil {
		e.ref = prev
		return err
	}
	if changed {
		for _, fn := range e.onCurrentDate {
			fn(date)
		}
	}
	return nil
}

// SetMode switches between day, week and month.
func (e *Engine) SetMode(mode Mode) error {
	return e.Update("mode", string(mode))
}

// SetEventSource replaces the event list. Malformed events are excluded and
// returned as *ValidationError values; the others are laid out.
func (e *Engine) SetEventSource(events []model.Event) []error {
	valid, errs := Ingest(events)
	for _, err := range errs {
		appLog.Warn("calendar: event rejected", "reason", err.Error())
	}
	e.source = valid
	if err := e.rebuild(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// LoadEvents refreshes the event source. In remote query mode the loader is
// asked for the currently visible span; in local mode the view is rebuilt from
// the events already held.
func (e *Engine) LoadEvents(ctx context.Context) error {
	if e.opts.QueryMode != QueryRemote {
		return e.rebuild()
	}
	if e.opts.Loader == nil {
		return configErr("loader", nil, "remote query mode needs an event loader")
	}

	span, err := VisibleSpan(e.ref, e.opts)
	if err != nil {
		return err
	}
	events, err := e.opts.Loader.LoadEvents(ctx, span)
	if err != nil {
		return fmt.Errorf("calendar: load events: %w", err)
	}
	appLog.Debug("calendar: events loaded", "count", len(events), "start", span.StartTime, "end", span.EndTime)

	if errs := e.SetEventSource(events); len(errs) > 0 {
		appLog.Warn("calendar: loaded events partially rejected", "rejected", len(errs))
	}
	return nil
}

// SelectCell selects the cell containing date.
func (e *Engine) SelectCell(date time.Time) (TimeSelected, error) {
	ts, changed, err := e.selection.Select(e.view, date, e.opts)
	if err != nil {
		appLog.Debug("calendar: selection refused", "date", date, "reason", err.Error())
		return TimeSelected{}, err
	}
	if changed {
		e.markSelected()
		e.emitTimeSelected(ts)
	}
	return ts, nil
}

// SelectEvent reports that the host picked an event, e.g. from the detail list.
func (e *Engine) SelectEvent(ev model.Event) {
	for _, fn := range e.onEventSelected {
		fn(ev)
	}
}

// Next moves one period forward: a month to the 1st of the next month, a
// week by seven days, a day by one day.
func (e *Engine) Next() error {
	return e.SetReferenceDate(e.shift(1))
}

// Previous moves one period back.
func (e *Engine) Previous() error {
	return e.SetReferenceDate(e.shift(-1))
}

// Today moves to opts.Now().
func (e *Engine) Today() error {
	return e.SetReferenceDate(e.opts.Now())
}

func (e *Engine) shift(dir int) time.Time {
	switch e.opts.Mode {
	case ModeMonth:
		return firstOfMonth(e.ref).AddDate(0, dir, 0)
	case ModeWeek:
		return e.ref.AddDate(0, 0, dir*daysPerWeek)
	default:
		return e.ref.AddDate(0, 0, dir)
	}
}

// Update is the single entry point for option changes coming from a host
// binding. The value is coerced to the option's type; a value that fails
// coercion or validation returns a *ConfigurationError and changes nothing.
func (e *Engine) Update(field string, value any) error {
	next := e.opts
	var err error

	switch field {
	case "mode":
		var s string
		if s, err = cast.ToStringE(value); err == nil {
			next.Mode = Mode(strings.ToLower(strings.TrimSpace(s)))
		}
	case "step":
		next.Step, err = cast.ToIntE(value)
	case "startHour":
		next.StartHour, err = cast.ToIntE(value)
	case "endHour":
		next.EndHour, err = cast.ToIntE(value)
	case "startingDayMonth":
		next.StartingDayMonth, err = cast.ToIntE(value)
	case "startingDayWeek":
		next.StartingDayWeek, err = cast.ToIntE(value)
	case "autoSelect":
		next.AutoSelect, err = cast.ToBoolE(value)
	case "queryMode":
		var s string
		if s, err = cast.ToStringE(value); err == nil {
			next.QueryMode = QueryMode(strings.ToLower(strings.TrimSpace(s)))
		}
	case "markDisabled":
		switch fn := value.(type) {
		case nil:
			next.MarkDisabled = nil
		case func(time.Time) bool:
			next.MarkDisabled = fn
		default:
			err = fmt.Errorf("unsupported type %T", value)
		}
	case "currentDate":
		var t time.Time
		if t, err = cast.ToTimeE(value); err != nil {
			return configErr(field, value, err.Error())
		}
		return e.SetReferenceDate(t)
	case "eventSource":
		events, ok := value.([]model.Event)
		if !ok && value != nil {
			return configErr(field, fmt.Sprintf("%T", value), "must be []model.Event")
		}
		return errors.Join(e.SetEventSource(events)...)
	default:
		return configErr(field, value, "unknown option")
	}

	if err != nil {
		return configErr(field, value, err.Error())
	}
	if err := next.Validate(); err != nil {
		return err
	}

	prev := e.opts
	e.opts = next
	if err := e.rebuild(); err != nil {
		e.opts = prev
		return err
	}
	return nil
}

// rebuild recomputes range, title and view from scratch and then publishes
// range/title changes and selection updates.
func (e *Engine) rebuild() error {
	rng, err := ComputeRange(e.ref, e.opts.Mode, e.opts.rangeOptions())
	if err != nil {
		return err
	}
	view, err := Build(e.source, rng, e.opts.Mode, e.opts)
	if err != nil {
		return err
	}

	rangeChanged := e.view == nil || e.view.Mode() != view.Mode() || !e.rng.Equal(rng)
	e.rng = rng
	e.view = view
	e.title = titleFor(e.opts.Formatter, e.opts.Mode, rng)

	appLog.Debug("calendar: view rebuilt",
		"mode", e.opts.Mode,
		"start", rng.StartTime,
		"end", rng.EndTime,
		"events", len(e.source),
	)

	e.notifier.Observe(rng, e.title)

	if rangeChanged {
		e.selectAfterRangeChange()
	} else {
		e.refreshSelection()
	}

	for _, fn := range e.onViewChanged {
		fn(e.view)
	}
	return nil
}

// selectAfterRangeChange auto-selects in month mode and otherwise drops a
// selection that is no longer visible.
func (e *Engine) selectAfterRangeChange() {
	if mv, ok := e.view.(*MonthView); ok && e.opts.AutoSelect {
		ts, idx, ok := e.selection.autoSelect(mv, e.ref)
		e.view = mv.withSelection(idx)
		if ok {
			e.emitTimeSelected(ts)
		}
		return
	}
	e.refreshSelection()
}

// refreshSelection re-resolves the current selection against the new view so
// its events stay current.
func (e *Engine) refreshSelection() {
	cur, ok := e.selection.Current()
	if !ok {
		return
	}
	cell, inView := resolveCell(e.view, cur.SelectedTime, e.opts)
	if !inView {
		e.selection.Clear()
	} else {
		e.selection.set(cell)
	}
	e.markSelected()
}

func (e *Engine) markSelected() {
	mv, ok := e.view.(*MonthView)
	if !ok {
		return
	}
	idx := -1
	if cur, ok := e.selection.Current(); ok {
		idx = mv.Cell(cur.SelectedTime)
	}
	e.view = mv.withSelection(idx)
}

func (e *Engine) emitTimeSelected(ts TimeSelected) {
	for _, fn := range e.onTimeSelected {
		fn(ts)
	}
}
