package calendar

import (
	"time"

	"calgrid/internal/model"
)

// Snapshot is a rendered view together with its range and title.
type Snapshot struct {
	Mode  Mode   `json:"mode"`
	Range Range  `json:"range"`
	Title string `json:"title"`
	View  View   `json:"view"`
}

// VisibleSpan is the window whose events a view for ref needs: the range in
// day and week mode, the whole 42-day grid in month mode.
func VisibleSpan(ref time.Time, opts Options) (Range, error) {
	if opts.Mode == ModeMonth {
		return MonthGrid(ref, opts.StartingDayMonth)
	}
	return ComputeRange(ref, opts.Mode, opts.rangeOptions())
}

// Render builds a one-off view for ref without any selection state.
func Render(events []model.Event, ref time.Time, opts Options) (Snapshot, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Snapshot{}, err
	}
	rng, err := ComputeRange(ref, opts.Mode, opts.rangeOptions())
	if err != nil {
		return Snapshot{}, err
	}
	view, err := Build(events, rng, opts.Mode, opts)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Mode:  opts.Mode,
		Range: rng,
		Title: titleFor(opts.Formatter, opts.Mode, rng),
		View:  view,
	}, nil
}
