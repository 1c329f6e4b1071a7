package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"calgrid/internal/calendar"
	"calgrid/internal/config"
	"calgrid/internal/ics"
	appLog "calgrid/internal/log"
	"calgrid/internal/refresh"
	"calgrid/internal/web"
)

const version = "0.1.0"

type rootFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "calgrid",
		Short:         "Calendar view engine with a JSON API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "Path to config file")

	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newViewCommand(flags))
	root.AddCommand(newRangeCommand(flags))
	root.AddCommand(newExportCommand(flags))
	return root
}

// loadConfig reads the config file, applies CALGRID_* overrides and the log
// level, and validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	cfg.Normalize()

	level, ok := appLog.ParseLevel(cfg.LogLevel)
	if !ok {
		appLog.Warn("unknown log level, using INFO", "log_level", cfg.LogLevel)
	}
	appLog.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// calendarOptions builds engine options from cfg, attaching the ICS loader
// in remote query mode.
func calendarOptions(cfg *config.Config) (calendar.Options, error) {
	opts, err := cfg.CalendarOptions()
	if err != nil {
		return calendar.Options{}, err
	}
	if opts.QueryMode == calendar.QueryRemote {
		opts.Loader = newLoader(cfg)
	}
	return opts, nil
}

func newLoader(cfg *config.Config) *ics.Loader {
	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, s := range cfg.ICS {
		sources = append(sources, ics.Source{ID: s.ID, URL: s.URL})
	}
	return ics.NewLoader(ics.NewFetcher(cfg.CacheDir), sources, cfg.Location())
}

// newEngine builds the engine around ref and loads its events: the events
// file in local mode, the ICS sources in remote mode.
func newEngine(ctx context.Context, cfg *config.Config, opts calendar.Options, ref time.Time) (*calendar.Engine, error) {
	engine, err := calendar.New(opts, ref)
	if err != nil {
		return nil, err
	}

	if opts.QueryMode == calendar.QueryLocal && cfg.EventsFile != "" {
		events, err := config.ReadEvents(cfg.EventsFile)
		if err != nil {
			return nil, err
		}
		if errs := engine.SetEventSource(events); len(errs) > 0 {
			appLog.Warn("some events were rejected", "file", cfg.EventsFile, "rejected", len(errs))
		}
		return engine, nil
	}

	if err := engine.LoadEvents(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calendar API and refresh events on schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("calgrid starting",
				"version", version,
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"mode", cfg.Calendar.Mode,
				"query_mode", cfg.Calendar.QueryMode,
				"ics_count", len(cfg.ICS),
				"refresh", cfg.RefreshCron,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts, err := calendarOptions(cfg)
			if err != nil {
				return err
			}
			engine, err := newEngine(ctx, cfg, opts, time.Time{})
			if err != nil {
				// Serve without events when the feeds are down; the refresher retries.
				if opts.QueryMode != calendar.QueryRemote {
					return err
				}
				appLog.Error("initial event load failed", err)
				if engine, err = calendar.New(opts, time.Time{}); err != nil {
					return err
				}
			}

			srv, err := web.NewServer(cfg, engine, nil)
			if err != nil {
				return err
			}

			if cfg.RefreshCron != "" {
				sched, err := refresh.New(cfg.RefreshCron, cfg.Location(), srv, 0)
				if err != nil {
					return err
				}
				sched.Start(ctx)
				defer sched.Stop()
			}

			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			appLog.Info("calgrid exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

type viewFlags struct {
	mode string
	date string
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "day, week or month (default from config)")
	cmd.Flags().StringVarP(&f.date, "date", "d", "", "Reference date YYYY-MM-DD (default today)")
}

// resolve applies the flags to opts and returns the reference date.
func (f *viewFlags) resolve(opts *calendar.Options, loc *time.Location) (time.Time, error) {
	if f.mode != "" {
		opts.Mode = calendar.Mode(strings.ToLower(f.mode))
	}
	if f.date == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", f.date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", f.date)
	}
	return t, nil
}

func newViewCommand(flags *rootFlags) *cobra.Command {
	vf := &viewFlags{}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the view model for a date as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			opts, err := calendarOptions(cfg)
			if err != nil {
				return err
			}
			ref, err := vf.resolve(&opts, cfg.Location())
			if err != nil {
				return err
			}
			engine, err := newEngine(cmd.Context(), cfg, opts, ref)
			if err != nil {
				return err
			}

			snap := calendar.Snapshot{
				Mode:  engine.Options().Mode,
				Range: engine.Range(),
				Title: engine.Title(),
				View:  engine.View(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	vf.register(cmd)
	return cmd
}

func newRangeCommand(flags *rootFlags) *cobra.Command {
	vf := &viewFlags{}

	cmd := &cobra.Command{
		Use:   "range",
		Short: "Print the title and date range for a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			opts, err := cfg.CalendarOptions()
			if err != nil {
				return err
			}
			ref, err := vf.resolve(&opts, cfg.Location())
			if err != nil {
				return err
			}
			// No events needed for the range alone.
			opts.QueryMode = calendar.QueryLocal
			engine, err := calendar.New(opts, ref)
			if err != nil {
				return err
			}

			rng := engine.Range()
			fmt.Fprintln(cmd.OutOrStdout(), engine.Title())
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rng.StartTime.Format(time.RFC3339), rng.EndTime.Format(time.RFC3339))
			return nil
		},
	}
	vf.register(cmd)
	return cmd
}

// newExportCommand snapshots the ICS sources for the visible span into a
// YAML events file usable in local query mode.
func newExportCommand(flags *rootFlags) *cobra.Command {
	vf := &viewFlags{}
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch ICS sources for the visible span and write them as an events file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if len(cfg.ICS) == 0 {
				return errors.New("no ics sources configured")
			}
			opts, err := cfg.CalendarOptions()
			if err != nil {
				return err
			}
			ref, err := vf.resolve(&opts, cfg.Location())
			if err != nil {
				return err
			}
			if ref.IsZero() {
				ref = opts.Now()
			}
			span, err := calendar.VisibleSpan(ref, opts)
			if err != nil {
				return err
			}

			events, err := newLoader(cfg).LoadEvents(cmd.Context(), span)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.EventsFile
			}
			if out == "" {
				return errors.New("no output file: set --out or events_file")
			}
			if err := config.WriteEvents(out, events); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", len(events), out)
			return nil
		},
	}
	vf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output events file (default events_file from config)")
	return cmd
}
