package model

import "time"

// Event is a single materialized calendar entry as handed to the view engine.
// Recurrences are already expanded and StartTime/EndTime are absolute instants.
// Callers own the value; the engine copies it and never writes back.
type Event struct {
	// Identifier is unique within one event source (e.g. UID plus instance start).
	Identifier string `json:"identifier" yaml:"identifier"`
	Title      string `json:"title" yaml:"title"`

	StartTime time.Time `json:"startTime" yaml:"start_time"`
	EndTime   time.Time `json:"endTime" yaml:"end_time"`

	// AllDay events cover whole calendar dates regardless of time-of-day.
	AllDay bool `json:"allDay" yaml:"all_day"`

	// Optional metadata carried from the loader; the engine ignores it.
	SourceID    string `json:"sourceId,omitempty" yaml:"source_id,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
}

// Duration returns EndTime - StartTime.
func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// FirstDate returns midnight of the date StartTime falls on, in StartTime's location.
func (e Event) FirstDate() time.Time {
	return DateOf(e.StartTime)
}

// EndDate returns the exclusive end date of an all-day event. An all-day event
// that starts and ends on the same date still covers that one date.
func (e Event) EndDate() time.Time {
	start := e.FirstDate()
	ey, em, ed := e.EndTime.Date()
	end := time.Date(ey, em, ed, 0, 0, 0, 0, start.Location())
	// An end exactly at midnight is exclusive; anything later covers that date too.
	h, mi, sec := e.EndTime.Clock()
	if h != 0 || mi != 0 || sec != 0 || e.EndTime.Nanosecond() != 0 {
		end = end.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return end
}

// DateOf truncates t to midnight of its calendar date in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
