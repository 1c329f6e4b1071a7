package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/calendar"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
timezone: UTC
calendar:
  mode: Week
  step: 30
  start_hour: 8
  end_hour: 18
  starting_day_week: Monday
ics:
  - url: https://example.com/a.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "cache", cfg.CacheDir)
	assert.Equal(t, "week", cfg.Calendar.Mode)
	assert.Equal(t, "sunday", cfg.Calendar.StartingDayMonth)
	assert.True(t, cfg.Calendar.AutoSelect)
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "ics-1", cfg.ICS[0].ID)

	opts, err := cfg.CalendarOptions()
	require.NoError(t, err)
	assert.Equal(t, calendar.ModeWeek, opts.Mode)
	assert.Equal(t, 30, opts.Step)
	assert.Equal(t, 20, opts.SlotCount())
	assert.Equal(t, 1, opts.StartingDayWeek)
	assert.Equal(t, 0, opts.StartingDayMonth)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("calendar: [\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestCalendarOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"step", func(c *Config) { c.Calendar.Step = 25 }, "step"},
		{"hours", func(c *Config) { c.Calendar.StartHour, c.Calendar.EndHour = 20, 8 }, "startHour"},
		{"mode", func(c *Config) { c.Calendar.Mode = "year" }, "mode"},
		{"weekday", func(c *Config) { c.Calendar.StartingDayWeek = "someday" }, "starting_day_week"},
		{"disabled", func(c *Config) { c.Calendar.DisabledWeekdays = []string{"caturday"} }, "disabled_weekdays"},
		{"query", func(c *Config) { c.Calendar.QueryMode = "cloud" }, "queryMode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Timezone = "UTC"
			tt.mutate(cfg)

			err := cfg.Validate()
			var cfgErr *calendar.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidateSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.ICS = []ICSConfig{{ID: "a", URL: "https://example.com/a.ics"}, {ID: "a", URL: "https://example.com/b.ics"}}
	assert.ErrorContains(t, cfg.Validate(), "duplicate")

	cfg.ICS = []ICSConfig{{ID: "a"}}
	assert.ErrorContains(t, cfg.Validate(), "no url")

	cfg.ICS = nil
	cfg.Timezone = "Mars/Olympus_Mons"
	assert.ErrorContains(t, cfg.Validate(), "timezone")
}

func TestCalendarOptionsDisabledWeekdaysAndFormats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendar.DisabledWeekdays = []string{"sat", "Sunday"}
	cfg.Calendar.Formats.MonthTitle = "2006-01"

	opts, err := cfg.CalendarOptions()
	require.NoError(t, err)

	require.NotNil(t, opts.MarkDisabled)
	assert.True(t, opts.MarkDisabled(time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC)))
	assert.True(t, opts.MarkDisabled(time.Date(2024, time.March, 17, 0, 0, 0, 0, time.UTC)))
	assert.False(t, opts.MarkDisabled(time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC)))

	march := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03", opts.Formatter.FormatMonthViewTitle(march))
	assert.Equal(t, "Fri", opts.Formatter.FormatMonthViewDayHeader(march))
	assert.Equal(t, time.UTC, opts.Now().Location())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CALGRID_MODE", "day")
	t.Setenv("CALGRID_STEP", "15")
	t.Setenv("CALGRID_AUTO_SELECT", "false")
	t.Setenv("CALGRID_LISTEN", ":7070")
	t.Setenv("CALGRID_BASIC_AUTH_USERNAME", "admin")
	t.Setenv("CALGRID_BASIC_AUTH_PASSWORD", "secret")

	cfg := DefaultConfig()
	ApplyEnv(cfg)

	assert.Equal(t, "day", cfg.Calendar.Mode)
	assert.Equal(t, 15, cfg.Calendar.Step)
	assert.False(t, cfg.Calendar.AutoSelect)
	assert.Equal(t, ":7070", cfg.Listen)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.Equal(t, "secret", cfg.BasicAuth.Password)

	// Unset variables leave the file values alone.
	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, 24, cfg.Calendar.EndHour)
}

func TestReadEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- identifier: standup
  title: Standup
  start_time: 2024-03-15T09:00:00Z
  end_time: 2024-03-15T09:15:00Z
- identifier: holiday
  title: Holiday
  start_time: 2024-03-18T00:00:00Z
  end_time: 2024-03-19T00:00:00Z
  all_day: true
`), 0o600))

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "standup", events[0].Identifier)
	assert.Equal(t, 15*time.Minute, events[0].Duration())
	assert.True(t, events[1].AllDay)

	out := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, WriteEvents(out, events))
	copied, err := ReadEvents(out)
	require.NoError(t, err)
	require.Len(t, copied, 2)
	assert.True(t, copied[0].StartTime.Equal(events[0].StartTime))

	_, err = ReadEvents(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
