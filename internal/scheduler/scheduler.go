// Package scheduler triggers pipeline runs on a fixed interval for deployments without an external scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-etl/internal/lifecycle"
)

// Scheduler periodically runs the pipeline through a RunGuard.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	guard      *lifecycle.RunGuard
	interval   time.Duration
	runTimeout time.Duration
	logger     *zap.Logger
}

// New creates a Scheduler. runTimeout bounds each scheduled run (0 = unbounded).
func New(guard *lifecycle.RunGuard, interval, runTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		guard:      guard,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start schedules the job and starts the scheduler. The first run happens immediately.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", s.interval)
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.runOnce)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	res, err := s.guard.TryRun(ctx)
	switch {
	case err == nil:
		s.logger.Debug("scheduled run completed", zap.String("run_id", res.RunID))
	case errors.Is(err, lifecycle.ErrRunInProgress), errors.Is(err, lifecycle.ErrShuttingDown):
		s.logger.Info("scheduled run skipped", zap.String("reason", err.Error()))
	default:
		// The pipeline already logged the failure with its run id.
		s.logger.Debug("scheduled run failed", zap.String("run_id", res.RunID))
	}
}

// Stop stops the scheduler and cancels any future jobs. A run already in progress is not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
