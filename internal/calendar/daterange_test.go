package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, time.UTC)
}

func TestComputeRange(t *testing.T) {
	ref := at(2024, time.March, 15, 13, 45)

	tests := []struct {
		name      string
		mode      Mode
		opts      RangeOptions
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"month", ModeMonth, RangeOptions{}, date(2024, time.March, 1), date(2024, time.April, 1)},
		{"week sunday", ModeWeek, RangeOptions{WeekStart: 0}, date(2024, time.March, 10), date(2024, time.March, 17)},
		{"week monday", ModeWeek, RangeOptions{WeekStart: 1}, date(2024, time.March, 11), date(2024, time.March, 18)},
		{"week saturday", ModeWeek, RangeOptions{WeekStart: 6}, date(2024, time.March, 9), date(2024, time.March, 16)},
		{"day full", ModeDay, RangeOptions{StartHour: 0, EndHour: 24}, date(2024, time.March, 15), date(2024, time.March, 16)},
		{"day hours", ModeDay, RangeOptions{StartHour: 8, EndHour: 18}, at(2024, time.March, 15, 8, 0), at(2024, time.March, 15, 18, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := ComputeRange(ref, tt.mode, tt.opts)
			require.NoError(t, err)
			assert.True(t, rng.StartTime.Equal(tt.wantStart), "start %s", rng.StartTime)
			assert.True(t, rng.EndTime.Equal(tt.wantEnd), "end %s", rng.EndTime)

			again, err := ComputeRange(ref, tt.mode, tt.opts)
			require.NoError(t, err)
			assert.True(t, again.Equal(rng))
		})
	}
}

func TestComputeRangeStableWithinPeriod(t *testing.T) {
	opts := RangeOptions{WeekStart: 1, StartHour: 0, EndHour: 24}
	base, err := ComputeRange(date(2024, time.March, 11), ModeWeek, opts)
	require.NoError(t, err)

	for d := 0; d < 7; d++ {
		rng, err := ComputeRange(at(2024, time.March, 11+d, 23, 59), ModeWeek, opts)
		require.NoError(t, err)
		assert.True(t, rng.Equal(base), "day %d", d)
		assert.True(t, rng.Contains(at(2024, time.March, 11+d, 12, 0)))
	}
}

func TestComputeRangeRejectsBadOptions(t *testing.T) {
	ref := date(2024, time.March, 15)

	_, err := ComputeRange(ref, ModeWeek, RangeOptions{WeekStart: 7})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "weekStart", cfgErr.Field)

	_, err = ComputeRange(ref, ModeDay, RangeOptions{StartHour: 10, EndHour: 10})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "startHour", cfgErr.Field)

	_, err = ComputeRange(ref, Mode("year"), RangeOptions{})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "mode", cfgErr.Field)
}

func TestComputeRangeAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// DST starts on 2024-03-10 in New York.
	ref := time.Date(2024, time.March, 12, 9, 0, 0, 0, loc)
	rng, err := ComputeRange(ref, ModeWeek, RangeOptions{WeekStart: 0})
	require.NoError(t, err)

	assert.Equal(t, 10, rng.StartTime.Day())
	assert.Equal(t, 17, rng.EndTime.Day())
	assert.Equal(t, 0, rng.EndTime.Hour())
	assert.Equal(t, 7*24*time.Hour-time.Hour, rng.EndTime.Sub(rng.StartTime))
}

func TestMonthGrid(t *testing.T) {
	grid, err := MonthGrid(date(2024, time.March, 15), 0)
	require.NoError(t, err)
	assert.True(t, grid.StartTime.Equal(date(2024, time.February, 25)))
	assert.True(t, grid.EndTime.Equal(date(2024, time.April, 7)))

	// A month starting on the week-start day begins on its 1st.
	grid, err = MonthGrid(date(2024, time.September, 20), 0)
	require.NoError(t, err)
	assert.True(t, grid.StartTime.Equal(date(2024, time.September, 1)))
}
