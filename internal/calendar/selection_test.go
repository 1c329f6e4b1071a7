package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoSelectFallsBackToFirstOfMonth(t *testing.T) {
	opts := testOptions()
	opts.MarkDisabled = func(time.Time) bool { return true }
	rng, err := ComputeRange(date(2024, time.March, 15), ModeMonth, opts.rangeOptions())
	require.NoError(t, err)
	v, err := Build(nil, rng, ModeMonth, opts)
	require.NoError(t, err)
	mv := v.(*MonthView)

	// The reference date lies outside the grid; the whole month is disabled.
	var sel SelectionModel
	ts, idx, ok := sel.autoSelect(mv, date(2024, time.June, 10))
	require.True(t, ok)
	assert.Equal(t, mv.Cell(date(2024, time.March, 1)), idx)
	assert.True(t, ts.Disabled)
}

func TestAutoSelectWithoutMatchingCell(t *testing.T) {
	var sel SelectionModel
	sel.set(TimeSelected{SelectedTime: date(2024, time.March, 1)})

	empty := &MonthView{}
	assert.NotPanics(t, func() {
		ts, idx, ok := sel.autoSelect(empty, date(2024, time.March, 15))
		assert.False(t, ok)
		assert.Equal(t, -1, idx)
		assert.Zero(t, ts)
	})
	_, ok := sel.Current()
	assert.False(t, ok)
}
