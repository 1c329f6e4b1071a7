package calendar

import (
	"sort"
	"time"

	"calgrid/internal/model"
)

// minLaneSpan is the span given to zero-length events by AssignLanes so they
// still claim a lane of their own.
const minLaneSpan = time.Minute

// AssignLanes lays out events that share one column. The result is sorted by
// start, end and input order; every event gets the lowest lane free at its
// start, and Position is the lane count of its overlap group.
func AssignLanes(events []model.Event) []DisplayEvent {
	items := make([]DisplayEvent, 0, len(events))
	for _, ev := range events {
		items = append(items, DisplayEvent{Event: ev})
	}
	return resolveLanes(items, func(d DisplayEvent) (time.Time, time.Time) {
		return laneBounds(d.Event, minLaneSpan)
	})
}

// laneBounds returns the interval an event occupies for lane purposes.
func laneBounds(ev model.Event, minSpan time.Duration) (time.Time, time.Time) {
	if !ev.EndTime.After(ev.StartTime) {
		return ev.StartTime, ev.StartTime.Add(minSpan)
	}
	return ev.StartTime, ev.EndTime
}

// resolveLanes is greedy interval colouring over bounds. Items whose intervals
// touch only at an endpoint may share a lane. The input slice is not modified.
func resolveLanes(items []DisplayEvent, bounds func(DisplayEvent) (time.Time, time.Time)) []DisplayEvent {
	if len(items) == 0 {
		return nil
	}

	out := make([]DisplayEvent, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		si, ei := bounds(out[i])
		sj, ej := bounds(out[j])
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return ei.Before(ej)
	})

	var (
		laneEnd    []time.Time
		laneBusy   []bool
		active     int
		groupStart int
		groupLanes int
	)

	for i := range out {
		start, end := bounds(out[i])

		for l := range laneBusy {
			if laneBusy[l] && !laneEnd[l].After(start) {
				laneBusy[l] = false
				active--
			}
		}

		// Nothing is running any more: the previous overlap group is complete.
		if active == 0 && i > groupStart {
			setPosition(out[groupStart:i], groupLanes)
			groupStart, groupLanes = i, 0
		}

		lane := -1
		for l, busy := range laneBusy {
			if !busy {
				lane = l
				break
			}
		}
		if lane < 0 {
			laneEnd = append(laneEnd, end)
			laneBusy = append(laneBusy, true)
			lane = len(laneBusy) - 1
		} else {
			laneEnd[lane] = end
			laneBusy[lane] = true
		}
		active++

		out[i].OverlapNumber = lane
		if lane+1 > groupLanes {
			groupLanes = lane + 1
		}
	}
	setPosition(out[groupStart:], groupLanes)

	return out
}

func setPosition(group []DisplayEvent, lanes int) {
	for i := range group {
		group[i].Position = lanes
	}
}
