package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calgrid/internal/log"
)

// Reloader reloads the calendar event source.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler runs a Reloader on a cron schedule. Runs never overlap; a tick
// that fires while the previous reload is still busy is skipped.
type Scheduler struct {
	cron     *cron.Cron
	reloader Reloader
	timeout  time.Duration

	stopOnce sync.Once
	stopped  chan struct{}
}

// New parses a 5-field cron spec in loc. timeout bounds a single reload; zero
// means one minute.
func New(spec string, loc *time.Location, r Reloader, timeout time.Duration) (*Scheduler, error) {
	if r == nil {
		return nil, errors.New("refresh: reloader is required")
	}
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		reloader: r,
		timeout:  timeout,
		stopped:  make(chan struct{}),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins ticking and stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	if next := s.Next(); !next.IsZero() {
		appLog.Info("refresh scheduler started", "next", next)
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop waits for a running reload to finish. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		close(s.stopped)
		appLog.Info("refresh scheduler stopped")
	})
}

// Done is closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Next returns the next scheduled reload, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce performs a reload immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.reloader.Reload(ctx); err != nil {
		appLog.Error("refresh failed", err, "elapsed", time.Since(start).Round(time.Millisecond))
		return err
	}
	appLog.Debug("refresh done", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *Scheduler) run() {
	_ = s.RunOnce(context.Background())
}
