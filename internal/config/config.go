package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"calgrid/internal/calendar"
	"calgrid/internal/model"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// FormatConfig overrides the Go time layouts used for labels and titles.
// Empty fields keep the stock layout.
type FormatConfig struct {
	Day           string `yaml:"day,omitempty" json:"day,omitempty"`
	DayHeader     string `yaml:"day_header,omitempty" json:"day_header,omitempty"`
	MonthTitle    string `yaml:"month_title,omitempty" json:"month_title,omitempty"`
	WeekTitle     string `yaml:"week_title,omitempty" json:"week_title,omitempty"`
	WeekDayHeader string `yaml:"week_day_header,omitempty" json:"week_day_header,omitempty"`
	HourColumn    string `yaml:"hour_column,omitempty" json:"hour_column,omitempty"`
	DayTitle      string `yaml:"day_title,omitempty" json:"day_title,omitempty"`
}

// CalendarConfig is the file form of calendar.Options.
type CalendarConfig struct {
	// Mode is "day", "week" or "month".
	Mode string `yaml:"mode" json:"mode"`
	// Step is the slot width in minutes (15, 30 or 60).
	Step      int `yaml:"step" json:"step"`
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`

	// StartingDayMonth and StartingDayWeek are weekday names ("sunday", "monday", ...).
	StartingDayMonth string `yaml:"starting_day_month" json:"starting_day_month"`
	StartingDayWeek  string `yaml:"starting_day_week" json:"starting_day_week"`

	AutoSelect bool `yaml:"auto_select" json:"auto_select"`

	// QueryMode is "local" (events_file) or "remote" (ICS sources per visible range).
	QueryMode string `yaml:"query_mode" json:"query_mode"`

	// DisabledWeekdays lists weekday names whose cells cannot be selected.
	DisabledWeekdays []string `yaml:"disabled_weekdays,omitempty" json:"disabled_weekdays,omitempty"`

	Formats FormatConfig `yaml:"formats,omitempty" json:"formats,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// EventsFile is a YAML list of events used in local query mode.
	EventsFile string `yaml:"events_file,omitempty" json:"events_file,omitempty"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic event reloads. Empty disables the refresher.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Seoul",
		RefreshCron: "*/15 * * * *",
		CacheDir:    "cache",
		Calendar: CalendarConfig{
			Mode:             string(calendar.ModeMonth),
			Step:             calendar.StepHour,
			StartHour:        0,
			EndHour:          24,
			StartingDayMonth: "sunday",
			StartingDayWeek:  "sunday",
			AutoSelect:       true,
			QueryMode:        string(calendar.QueryLocal),
		},
		ICS:       []ICSConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. It never rejects
// anything; see Validate.
func (c *Config) Normalize() {
	def := DefaultConfig()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}

	cal := &c.Calendar
	cal.Mode = strings.ToLower(strings.TrimSpace(cal.Mode))
	if cal.Mode == "" {
		cal.Mode = def.Calendar.Mode
	}
	if cal.Step == 0 {
		cal.Step = def.Calendar.Step
	}
	if cal.StartHour == 0 && cal.EndHour == 0 {
		cal.EndHour = def.Calendar.EndHour
	}
	cal.StartingDayMonth = strings.ToLower(strings.TrimSpace(cal.StartingDayMonth))
	if cal.StartingDayMonth == "" {
		cal.StartingDayMonth = def.Calendar.StartingDayMonth
	}
	cal.StartingDayWeek = strings.ToLower(strings.TrimSpace(cal.StartingDayWeek))
	if cal.StartingDayWeek == "" {
		cal.StartingDayWeek = def.Calendar.StartingDayWeek
	}
	cal.QueryMode = strings.ToLower(strings.TrimSpace(cal.QueryMode))
	if cal.QueryMode == "" {
		cal.QueryMode = def.Calendar.QueryMode
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
}

// Validate reports the first setting the application cannot run with.
// Calendar option problems come back as *calendar.ConfigurationError.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := c.CalendarOptions(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.ICS))
	for _, src := range c.ICS {
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("config: ics source %q has no url", src.ID)
		}
		if seen[src.ID] {
			return fmt.Errorf("config: duplicate ics source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("config: basic_auth.username is empty")
	}
	return nil
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CalendarOptions converts the calendar section into engine options. Formatter
// layouts fall back to the defaults, Now reports wall time in the configured
// timezone. Loader is left for the caller to set.
func (c *Config) CalendarOptions() (calendar.Options, error) {
	cal := c.Calendar
	opts := calendar.DefaultOptions()

	opts.Mode = calendar.Mode(cal.Mode)
	opts.Step = cal.Step
	opts.StartHour = cal.StartHour
	opts.EndHour = cal.EndHour
	opts.AutoSelect = cal.AutoSelect
	opts.QueryMode = calendar.QueryMode(cal.QueryMode)

	var err error
	if opts.StartingDayMonth, err = parseWeekday("starting_day_month", cal.StartingDayMonth); err != nil {
		return calendar.Options{}, err
	}
	if opts.StartingDayWeek, err = parseWeekday("starting_day_week", cal.StartingDayWeek); err != nil {
		return calendar.Options{}, err
	}

	if len(cal.DisabledWeekdays) > 0 {
		disabled := make(map[time.Weekday]bool, len(cal.DisabledWeekdays))
		for _, name := range cal.DisabledWeekdays {
			wd, err := parseWeekday("disabled_weekdays", name)
			if err != nil {
				return calendar.Options{}, err
			}
			disabled[time.Weekday(wd)] = true
		}
		opts.MarkDisabled = func(d time.Time) bool { return disabled[d.Weekday()] }
	}

	opts.Formatter = cal.Formats.formatter()

	loc := c.Location()
	opts.Now = func() time.Time { return time.Now().In(loc) }

	if err := opts.Validate(); err != nil {
		return calendar.Options{}, err
	}
	return opts, nil
}

func (f FormatConfig) formatter() calendar.LayoutFormatter {
	out := calendar.DefaultFormatter()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Day, f.Day)
	set(&out.DayHeader, f.DayHeader)
	set(&out.MonthTitle, f.MonthTitle)
	set(&out.WeekTitle, f.WeekTitle)
	set(&out.WeekDayHeader, f.WeekDayHeader)
	set(&out.HourColumn, f.HourColumn)
	set(&out.DayTitle, f.DayTitle)
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(field, name string) (int, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, &calendar.ConfigurationError{Field: field, Value: name, Reason: "must be a weekday name"}
	}
	return int(wd), nil
}

// envKeys are the settings that can be overridden with CALGRID_* variables.
var envKeys = []string{
	"log_level",
	"listen",
	"timezone",
	"events_file",
	"refresh",
	"cache_dir",
	"mode",
	"step",
	"start_hour",
	"end_hour",
	"starting_day_month",
	"starting_day_week",
	"auto_select",
	"query_mode",
	"basic_auth_username",
	"basic_auth_password",
}

// ApplyEnv overlays CALGRID_* environment variables (CALGRID_MODE,
// CALGRID_STEP, CALGRID_LISTEN, ...) on top of cfg.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("CALGRID")
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str("log_level", &cfg.LogLevel)
	str("listen", &cfg.Listen)
	str("timezone", &cfg.Timezone)
	str("events_file", &cfg.EventsFile)
	str("refresh", &cfg.RefreshCron)
	str("cache_dir", &cfg.CacheDir)
	str("mode", &cfg.Calendar.Mode)
	num("step", &cfg.Calendar.Step)
	num("start_hour", &cfg.Calendar.StartHour)
	num("end_hour", &cfg.Calendar.EndHour)
	str("starting_day_month", &cfg.Calendar.StartingDayMonth)
	str("starting_day_week", &cfg.Calendar.StartingDayWeek)
	str("query_mode", &cfg.Calendar.QueryMode)
	if v.IsSet("auto_select") {
		cfg.Calendar.AutoSelect = v.GetBool("auto_select")
	}

	if v.IsSet("basic_auth_username") {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{}
		}
		cfg.BasicAuth.Username = v.GetString("basic_auth_username")
		cfg.BasicAuth.Password = v.GetString("basic_auth_password")
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML on top of the defaults
//   - normalize
//
// Environment overrides are applied separately with ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file in the same directory + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calgrid-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadEvents loads a YAML list of events for local query mode. Times use
// YAML timestamps (RFC3339).
func ReadEvents(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read events %s: %w", path, err)
	}
	var events []model.Event
	if err := yaml.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("config: parse events %s: %w", path, err)
	}
	return events, nil
}

// WriteEvents stores events in the format ReadEvents understands.
func WriteEvents(path string, events []model.Event) error {
	data, err := yaml.Marshal(events)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}
