package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calgrid/internal/log"
)

// Entry is one VEVENT as read from a feed, before recurrence expansion.
type Entry struct {
	Source Source

	UID      string
	Sequence int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on VEVENTs that replace one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// IsOverride reports whether the entry replaces a recurring instance.
func (e Entry) IsOverride() bool { return e.RecurrenceID != nil }

// ParseICS parses one ICS payload. Broken VEVENTs are logged and skipped so a
// single bad entry does not blank a whole calendar.
func ParseICS(src Source, body []byte) ([]Entry, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	var entries []Entry
	for _, ve := range cal.Events() {
		entry, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		entries = append(entries, entry)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "entries", len(entries))
	return entries, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (Entry, error) {
	entry := Entry{Source: src}

	entry.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if entry.UID == "" {
		return entry, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(propValue(ve, ical.ComponentPropertySequence)); err == nil {
		entry.Sequence = n
	}
	entry.Summary = propValue(ve, ical.ComponentPropertySummary)
	entry.Description = propValue(ve, ical.ComponentPropertyDescription)
	entry.Location = propValue(ve, ical.ComponentPropertyLocation)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return entry, errors.New("missing DTSTART")
	}
	entry.AllDay = isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		return entry, fmt.Errorf("DTSTART: %w", err)
	}
	entry.Start = start

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		entry.End = end
	case entry.AllDay:
		// No DTEND on a date event means the single day.
		entry.End = start.AddDate(0, 0, 1)
	default:
		entry.End = start
	}
	if entry.End.Before(entry.Start) {
		return entry, fmt.Errorf("DTEND %s before DTSTART %s", entry.End.Format(time.RFC3339), entry.Start.Format(time.RFC3339))
	}

	entry.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := paramLocation(p, start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				entry.ExDates = append(entry.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		t, err := parseICSTime(rid.Value, paramLocation(rid, start.Location()))
		if err != nil {
			return entry, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		entry.RecurrenceID = &t
	}

	return entry, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	p := ve.GetProperty(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// isDateValue detects VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// paramLocation resolves the TZID parameter, or returns def.
func paramLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tz := p.ICalParameters["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return def
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
// Floating and date values are interpreted in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
