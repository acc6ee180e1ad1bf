package core

// scheduler.go runs periodic maintenance for import job records.
//
// The retention sweep deletes finished jobs older than the retention window from
// import_jobs and forgets them in the dispatcher. A failed sweep is logged and
// retried on the next tick; it never stops the application.

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	Days     int    // Keep finished jobs this many days (default: 30)
	Schedule string // Standard 5-field cron expression (default: "0 3 * * *")
}

const (
	defaultRetentionDays     = 30
	defaultRetentionSchedule = "0 3 * * *"
)

// RetentionScheduler periodically purges old job records.
type RetentionScheduler struct {
	cron       *cron.Cron
	jobs       *JobStore   // may be nil
	dispatcher *Dispatcher // may be nil
	cfg        RetentionConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewRetentionScheduler registers the sweep on cfg.Schedule.
// It returns an error if the schedule does not parse.
func NewRetentionScheduler(jobs *JobStore, d *Dispatcher, cfg RetentionConfig, logger *slog.Logger) (*RetentionScheduler, error) {
	if cfg.Days <= 0 {
		cfg.Days = defaultRetentionDays
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultRetentionSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &RetentionScheduler{
		cron:       cron.New(),
		jobs:       jobs,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the cron scheduler in its own goroutine.
func (s *RetentionScheduler) Start() {
	s.cron.Start()
	s.logger.Info("retention scheduler started",
		"retention_days", s.cfg.Days,
		"schedule", s.cfg.Schedule,
	)
}

// Stop halts scheduling and waits for a running sweep, or for ctx.
func (s *RetentionScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("retention scheduler stopped")
}

// Sweep performs one purge cycle and returns the number of deleted rows.
func (s *RetentionScheduler) Sweep(ctx context.Context) int64 {
	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -s.cfg.Days)

	forgotten := 0
	if s.dispatcher != nil {
		forgotten = s.dispatcher.Forget(cutoff)
	}

	var deleted int64
	if s.jobs != nil {
		n, err := s.jobs.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error("retention sweep failed", "error", err)
			return 0
		}
		deleted = n
	}

	if deleted > 0 || forgotten > 0 {
		s.logger.Info("retention sweep completed",
			"deleted", deleted,
			"forgotten", forgotten,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return deleted
}
