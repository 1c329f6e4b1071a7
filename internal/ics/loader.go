package ics

import (
	"context"
	"errors"
	"time"

	"calgrid/internal/calendar"
	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// Loader feeds the calendar engine from ICS subscriptions in remote query
// mode: every LoadEvents call fetches, parses and expands for the asked range.
type Loader struct {
	fetcher     *Fetcher
	sources     []Source
	location    *time.Location
	maxPerEvent int
}

var _ calendar.EventLoader = (*Loader)(nil)

// NewLoader builds a Loader over sources. loc is the display timezone.
func NewLoader(fetcher *Fetcher, sources []Source, loc *time.Location) *Loader {
	return &Loader{fetcher: fetcher, sources: sources, location: loc}
}

// SetMaxPerEvent overrides the per-series instance cap.
func (l *Loader) SetMaxPerEvent(n int) { l.maxPerEvent = n }

// LoadEvents implements calendar.EventLoader. Sources that fail are skipped
// as long as at least one produced data; if all of them fail the joined
// errors are returned.
func (l *Loader) LoadEvents(ctx context.Context, rng calendar.Range) ([]model.Event, error) {
	if len(l.sources) == 0 {
		return nil, nil
	}

	results, errs := l.fetcher.FetchAll(ctx, l.sources)
	if len(results) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var entries []Entry
	for _, res := range results {
		parsed, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics source skipped", err, "id", res.Source.ID)
			continue
		}
		entries = append(entries, parsed...)
	}

	exp, err := Expand(entries, Window{
		Location:    l.location,
		Start:       rng.StartTime,
		End:         rng.EndTime,
		MaxPerEvent: l.maxPerEvent,
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("ics events loaded",
		"sources", len(results),
		"failed", len(errs),
		"events", len(exp.Events),
		"start", rng.StartTime,
		"end", rng.EndTime,
	)
	return exp.Events, nil
}
