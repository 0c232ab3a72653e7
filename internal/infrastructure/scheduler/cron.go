package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"CCNLMonitor/internal/ports"
)

// CronScheduler runs monitoring cycles on a cron expression.
type CronScheduler struct {
	mu       sync.Mutex
	spec     string
	location *time.Location
	logger   *slog.Logger
	cron     *cron.Cron
	entryID  cron.EntryID
	now      func() time.Time
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates spec and builds a scheduler in loc (UTC when nil).
func NewCronScheduler(spec string, loc *time.Location, logger *slog.Logger) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, location: loc, logger: logger, now: time.Now}, nil
}

// Start registers job and starts the cron runner. Overlapping runs are
// skipped. The runner stops when ctx is cancelled.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler: job is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	runner := cron.New(
		cron.WithLocation(c.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	id, err := runner.AddFunc(c.spec, func() {
		job(c.now().In(c.location))
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.cron, c.entryID = runner, id
	runner.Start()

	if c.logger != nil {
		c.logger.Info("scheduler started", "cron", c.spec, "location", c.location.String(), "next", runner.Entry(id).Next)
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the runner and waits for a running job, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}
	done := runner.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next scheduled run, or the zero time when not started.
func (c *CronScheduler) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return time.Time{}
	}
	return c.cron.Entry(c.entryID).Next
}
