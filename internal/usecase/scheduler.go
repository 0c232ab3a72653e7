package usecase

import (
	"context"
	"log/slog"
	"time"

	"CCNLMonitor/internal/ports"
)

// Scheduler wires the cron driver with the monitoring cycle.
type Scheduler struct {
	driver       ports.Scheduler
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, orchestrator *Orchestrator, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, orchestrator: orchestrator, logger: logger}
}

// Start registers the monitoring cycle with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.orchestrator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if ctx.Err() != nil {
			return
		}
		cycle := s.orchestrator.RunMonitoringCycle(ctx)
		if s.logger != nil {
			s.logger.Debug("scheduled cycle done", "trigger", trigger, "items", cycle.Total)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
