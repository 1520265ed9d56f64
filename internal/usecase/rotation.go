package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// Rotation policies applied when a pass halts on quota.
const (
	PolicyRotate = "rotate"
	PolicySleep  = "sleep"
)

const defaultSleepNoProgressLimit = 3

// GeneratorFactory opens a backend bound to one credential.
type GeneratorFactory func(ctx context.Context, credential int) (ports.AnswerGenerator, error)

// RotationOptions tunes the pass loop.
type RotationOptions struct {
	Policy          string
	Credentials     int
	MaxSleep        time.Duration
	NoProgressLimit int
	Sleep           func(ctx context.Context, d time.Duration) error
}

// Rotation repeats generation passes, reacting to quota exhaustion per policy.
type Rotation struct {
	generation *Generation
	factory    GeneratorFactory
	opts       RotationOptions
	logger     *slog.Logger
}

// RotationReport sums the passes of one generation stage.
type RotationReport struct {
	GenerationReport
	Passes     int
	Credential int
	StopReason string
}

// Stop reasons reported in RotationReport.StopReason.
const (
	StopDrained    = "drained"
	StopNoProgress = "no_progress"
)

// NewRotation constructs the loop; zero options fall back to defaults.
func NewRotation(generation *Generation, factory GeneratorFactory, opts RotationOptions, logger *slog.Logger) *Rotation {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Policy == "" {
		opts.Policy = PolicyRotate
	}
	if opts.MaxSleep <= 0 {
		opts.MaxSleep = 15 * time.Second
	}
	if opts.NoProgressLimit <= 0 {
		opts.NoProgressLimit = max(opts.Credentials, 1)
		if opts.Policy == PolicySleep {
			opts.NoProgressLimit = defaultSleepNoProgressLimit
		}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Rotation{generation: generation, factory: factory, opts: opts, logger: logger}
}

// Run performs passes starting at credential start until the loaded queue
// drains or too many passes in a row make no progress.
func (r *Rotation) Run(ctx context.Context, start int) (RotationReport, error) {
	if r.opts.Credentials <= 0 {
		return RotationReport{}, &domain.ConfigurationError{Field: "generator.tokens", Reason: "no credentials configured"}
	}
	if r.opts.Policy != PolicyRotate && r.opts.Policy != PolicySleep {
		return RotationReport{}, &domain.ConfigurationError{Field: "rotation.policy", Reason: fmt.Sprintf("unknown policy %q", r.opts.Policy)}
	}

	report := RotationReport{Credential: wrap(start, r.opts.Credentials)}
	stalled := 0
	for {
		pass, err := r.pass(ctx, report.Credential)
		report.Passes++
		report.add(pass)
		if err != nil {
			return report, err
		}

		r.logger.Info("generation pass done",
			"pass", report.Passes, "credential", report.Credential,
			"generated", pass.Generated, "no_text", pass.NoText, "failed", pass.Failed,
			"quota", pass.QuotaHit, "retry_after", pass.RetryAfter)

		if pass.Progress() > 0 {
			stalled = 0
		} else {
			stalled++
		}

		if !pass.QuotaHit && pass.Progress() == 0 {
			report.StopReason = StopDrained
			return report, nil
		}
		if stalled >= r.opts.NoProgressLimit {
			report.StopReason = StopNoProgress
			r.logger.Warn("generation made no progress, stopping", "passes", stalled)
			return report, nil
		}
		if !pass.QuotaHit {
			continue
		}

		switch r.opts.Policy {
		case PolicyRotate:
			report.Credential = wrap(report.Credential+1, r.opts.Credentials)
		case PolicySleep:
			wait := min(pass.RetryAfter, r.opts.MaxSleep)
			r.logger.Info("sleeping before next pass", "wait", wait)
			if err := r.opts.Sleep(ctx, wait); err != nil {
				return report, err
			}
		}
	}
}

func (r *Rotation) pass(ctx context.Context, credential int) (GenerationReport, error) {
	backend, err := r.factory(ctx, credential)
	if err != nil {
		return GenerationReport{}, fmt.Errorf("open generator %d: %w", credential, err)
	}
	if closer, ok := backend.(io.Closer); ok {
		defer closer.Close()
	}
	return r.generation.Pass(ctx, backend)
}

func wrap(index, n int) int {
	index %= n
	if index < 0 {
		index += n
	}
	return index
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
