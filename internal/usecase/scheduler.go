package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ganz677/wb/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver      ports.Scheduler
	pipeline    *Pipeline
	credentials []int
	running     atomic.Bool
	logger      *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs. credentials[i]
// is the starting credential of slot i.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, credentials []int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{driver: driver, pipeline: pipeline, credentials: credentials, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time, slot int) {
		s.trigger(ctx, trigger, slot)
	})
}

// trigger runs one slot unless a previous run is still going.
func (s *Scheduler) trigger(ctx context.Context, trigger time.Time, slot int) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, slot skipped", "slot", slot, "trigger", trigger)
		return
	}
	defer s.running.Store(false)

	credential := 0
	if slot >= 0 && slot < len(s.credentials) {
		credential = s.credentials[slot]
	}
	s.logger.Info("scheduled run", "slot", slot, "trigger", trigger, "credential", credential)
	if _, err := s.pipeline.Run(ctx, credential); err != nil {
		s.logger.Error("scheduled run failed", "slot", slot, "error", err)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
