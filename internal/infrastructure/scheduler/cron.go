package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/pkg/logger"
)

// CronScheduler fires one job per configured cron slot in a fixed timezone.
type CronScheduler struct {
	specs    []string
	location *time.Location
	log      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	done chan struct{} // closed by Stop to release the ctx watcher
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler for standard five-field cron specs.
func NewCronScheduler(specs []string, location *time.Location, log *slog.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &CronScheduler{specs: specs, location: location, log: log}
}

// Validate parses every spec without starting anything.
func (c *CronScheduler) Validate() error {
	for i, spec := range c.specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("slot %d %q: %w", i, spec, err)
		}
	}
	return nil
}

// Start registers the job for every slot. The job receives the slot index.
// Runs of the same slot never overlap; cross-slot overlap is the caller's concern.
func (c *CronScheduler) Start(ctx context.Context, job func(trigger time.Time, slot int)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cronLog := cron.PrintfLogger(logger.FromSlog(c.log, "cron"))
	runner := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	for i, spec := range c.specs {
		slot := i
		id, err := runner.AddFunc(spec, func() {
			job(time.Now().In(c.location), slot)
		})
		if err != nil {
			return fmt.Errorf("slot %d %q: %w", slot, spec, err)
		}
		c.log.Info("cron slot registered", "slot", slot, "spec", spec, "next", runner.Entry(id).Schedule.Next(time.Now().In(c.location)))
	}

	runner.Start()
	c.cron = runner
	done := make(chan struct{})
	c.done = done

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop(context.Background())
		case <-done:
		}
	}()
	return nil
}

// Stop halts the cron runner and waits for a running job up to ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
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
