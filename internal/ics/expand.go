package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

const defaultMaxPerEvent = 5000

// Window is the half-open span [Start, End) to expand into.
type Window struct {
	// Location is the display timezone of the produced events. Nil means
	// time.Local.
	Location *time.Location

	Start time.Time
	End   time.Time

	// MaxPerEvent caps the instances of a single recurring event. Zero uses
	// the default of 5000.
	MaxPerEvent int
}

// Expansion is the result of Expand.
type Expansion struct {
	Events []model.Event
	// Truncated lists UIDs whose instances hit MaxPerEvent.
	Truncated []string
}

// Expand materializes entries into events overlapping w. It applies RRULE,
// EXDATE and RECURRENCE-ID overrides. Timed events are converted to
// w.Location; all-day events keep their calendar dates.
func Expand(entries []Entry, w Window) (Expansion, error) {
	var out Expansion

	if w.End.Before(w.Start) {
		return out, errors.New("ics: window end is before window start")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxPerEvent <= 0 {
		w.MaxPerEvent = defaultMaxPerEvent
	}

	bases := make(map[string][]Entry)
	overrides := make(map[string][]Entry)
	for _, e := range entries {
		if e.IsOverride() {
			overrides[e.UID] = append(overrides[e.UID], e)
		} else {
			bases[e.UID] = append(bases[e.UID], e)
		}
	}

	uids := make([]string, 0, len(bases))
	for uid := range bases {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for _, uid := range uids {
		ov := overrides[uid]
		delete(overrides, uid)

		for _, base := range bases[uid] {
			if base.RRule == "" {
				if ev, ok := expandSingle(base, ov, w); ok {
					out.Events = append(out.Events, ev)
				}
				continue
			}
			events, capped := expandRecurring(base, ov, w)
			out.Events = append(out.Events, events...)
			if capped {
				out.Truncated = append(out.Truncated, uid)
				appLog.Warn("ics expansion truncated", "uid", uid, "cap", w.MaxPerEvent)
			}
		}
	}

	// Overrides whose series is not in the feed still describe a real instance.
	for _, ovs := range overrides {
		for _, o := range ovs {
			if overlaps(o.Start, o.End, w) {
				out.Events = append(out.Events, toEvent(o, o.Start, o.End, w.Location))
			}
		}
	}

	sort.SliceStable(out.Events, func(i, j int) bool {
		a, b := out.Events[i], out.Events[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.Identifier < b.Identifier
	})
	return out, nil
}

func expandSingle(base Entry, ovs []Entry, w Window) (model.Event, bool) {
	src, start, end := base, base.Start, base.End
	if o, ok := overrideFor(ovs, start); ok {
		src, start, end = o, o.Start, o.End
	}
	if !overlaps(start, end, w) {
		return model.Event{}, false
	}
	return toEvent(src, start, end, w.Location), true
}

func expandRecurring(base Entry, ovs []Entry, w Window) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(base.RRule)
	if err != nil {
		appLog.Error("ics: bad RRULE", err, "uid", base.UID, "rrule", base.RRule)
		return nil, false
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	loc := base.Start.Location()
	for _, ex := range base.ExDates {
		set.ExDate(ex.In(loc))
	}

	dur := base.End.Sub(base.Start)
	allDayDays := 0
	if base.AllDay {
		allDayDays = max(1, calendarDays(base.Start, base.End))
	}

	// Widen the lower bound by the duration so instances already running at
	// the window start are found.
	starts := set.Between(w.Start.Add(-dur).In(loc), w.End.In(loc), true)

	var (
		out    []model.Event
		capped bool
	)
	for _, s := range starts {
		e := s.Add(dur)
		if base.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			e = s.AddDate(0, 0, allDayDays)
		}

		src, start, end := base, s, e
		if o, ok := overrideFor(ovs, s); ok {
			src, start, end = o, o.Start, o.End
		}
		if !overlaps(start, end, w) {
			continue
		}
		if len(out) == w.MaxPerEvent {
			capped = true
			break
		}
		out = append(out, toEvent(src, start, end, w.Location))
	}
	return out, capped
}

// overrideFor finds the override whose RECURRENCE-ID is the instance start.
func overrideFor(ovs []Entry, start time.Time) (Entry, bool) {
	for _, o := range ovs {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Entry{}, false
}

// overlaps tests [start, end) against the window; instants count when they
// fall inside it.
func overlaps(start, end time.Time, w Window) bool {
	if !start.Before(w.End) {
		return false
	}
	if !end.After(start) {
		return !start.Before(w.Start)
	}
	return end.After(w.Start)
}

func toEvent(e Entry, start, end time.Time, loc *time.Location) model.Event {
	ev := model.Event{
		Title:       e.Summary,
		AllDay:      e.AllDay,
		SourceID:    e.Source.ID,
		Description: e.Description,
		Location:    e.Location,
	}
	if e.AllDay {
		ev.StartTime = civil(start, loc)
		ev.EndTime = civil(end, loc)
		ev.Identifier = e.UID + "/" + start.Format("20060102")
	} else {
		ev.StartTime = start.In(loc)
		ev.EndTime = end.In(loc)
		ev.Identifier = e.UID + "/" + start.UTC().Format(time.RFC3339)
	}
	return ev
}

// civil moves t's calendar date to midnight in loc.
func civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func calendarDays(a, b time.Time) int {
	a, b = civil(a, time.UTC), civil(b, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
