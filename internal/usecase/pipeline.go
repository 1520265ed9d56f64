package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ganz677/wb/internal/ports"
)

const tracerName = "github.com/ganz677/wb/internal/usecase"

// PipelineDeps wires all stages into the orchestration pipeline.
type PipelineDeps struct {
	Ingestion *Ingestion
	Rotation  *Rotation
	Delivery  *Delivery
	Notifier  ports.Notifier
	Logger    *slog.Logger
}

// Pipeline runs ingest, generate and deliver strictly one after another.
type Pipeline struct {
	ingestion *Ingestion
	rotation  *Rotation
	delivery  *Delivery
	notifier  ports.Notifier
	tracer    trace.Tracer
	logger    *slog.Logger
}

// RunReport summarises one full run.
type RunReport struct {
	RunID      string
	Credential int
	StartedAt  time.Time
	Duration   time.Duration
	Ingest     IngestReport
	Generate   RotationReport
	Deliver    DeliveryReport
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		ingestion: deps.Ingestion,
		rotation:  deps.Rotation,
		delivery:  deps.Delivery,
		notifier:  deps.Notifier,
		tracer:    otel.Tracer(tracerName),
		logger:    logger,
	}
}

// Ingest runs the ingestion stage alone.
func (p *Pipeline) Ingest(ctx context.Context) (IngestReport, error) {
	ctx, span := p.tracer.Start(ctx, "ingest")
	defer span.End()

	report, err := p.ingestion.Run(ctx)
	span.SetAttributes(
		attribute.Int("items.inserted", report.Inserted),
		attribute.Int("strategies.failed", len(report.Failed)),
	)
	endSpan(span, err)
	return report, err
}

// Generate runs the generation stage alone, starting at credential.
func (p *Pipeline) Generate(ctx context.Context, credential int) (RotationReport, error) {
	ctx, span := p.tracer.Start(ctx, "generate", trace.WithAttributes(attribute.Int("credential.start", credential)))
	defer span.End()

	report, err := p.rotation.Run(ctx, credential)
	span.SetAttributes(
		attribute.Int("items.generated", report.Generated),
		attribute.Int("items.no_text", report.NoText),
		attribute.Int("items.failed", report.Failed),
		attribute.Int("passes", report.Passes),
		attribute.Bool("quota.hit", report.QuotaHit),
	)
	endSpan(span, err)
	if err == nil {
		p.logger.Info("generation stage done",
			"event", "generate", "generated", report.Generated, "no_text", report.NoText,
			"skipped_ineligible", report.SkippedIneligible, "empty", report.Empty, "failed", report.Failed,
			"passes", report.Passes, "stop", report.StopReason, "retry_after", report.RetryAfter)
	}
	return report, err
}

// Deliver runs the delivery stage alone.
func (p *Pipeline) Deliver(ctx context.Context) (DeliveryReport, error) {
	ctx, span := p.tracer.Start(ctx, "deliver")
	defer span.End()

	report, err := p.delivery.Run(ctx)
	span.SetAttributes(
		attribute.Int("items.sent", report.Sent),
		attribute.Int("items.failed", report.Failed),
	)
	endSpan(span, err)
	if err == nil {
		p.logger.Info("delivery stage done", "event", "deliver", "sent", report.Sent, "failed", report.Failed)
	}
	return report, err
}

// Run performs one full ingest, generate and deliver cycle.
func (p *Pipeline) Run(ctx context.Context, credential int) (RunReport, error) {
	report := RunReport{RunID: uuid.New().String(), Credential: credential, StartedAt: time.Now()}
	ctx, span := p.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run.id", report.RunID)))
	defer span.End()

	logger := p.logger.With("run_id", report.RunID)
	logger.Info("run started", "credential", credential)

	var err error
	if report.Ingest, err = p.Ingest(ctx); err != nil {
		return p.finish(ctx, span, report, fmt.Errorf("ingest: %w", err))
	}
	if report.Generate, err = p.Generate(ctx, credential); err != nil {
		return p.finish(ctx, span, report, fmt.Errorf("generate: %w", err))
	}
	if report.Deliver, err = p.Deliver(ctx); err != nil {
		return p.finish(ctx, span, report, fmt.Errorf("deliver: %w", err))
	}
	return p.finish(ctx, span, report, nil)
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, report RunReport, runErr error) (RunReport, error) {
	report.Duration = time.Since(report.StartedAt)
	endSpan(span, runErr)

	logger := p.logger.With("run_id", report.RunID)
	if runErr != nil {
		logger.Error("run failed", "event", "run", "duration", report.Duration, "error", runErr)
	} else {
		logger.Info("run finished",
			"event", "run", "duration", report.Duration,
			"inserted", report.Ingest.Inserted, "generated", report.Generate.Progress(),
			"sent", report.Deliver.Sent, "failed", report.Deliver.Failed)
	}

	if p.notifier != nil {
		if err := p.notifier.PublishDigest(ctx, report.Digest(runErr)); err != nil {
			logger.Warn("run digest not delivered", "error", err)
		}
	}
	return report, runErr
}

// Digest renders the report as a short chat message.
func (r RunReport) Digest(runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Run* `%s` (credential %d, %s)\n", r.RunID, r.Credential, r.Duration.Round(time.Second))
	fmt.Fprintf(&b, "ingested: %d\n", r.Ingest.Inserted)
	if len(r.Ingest.Failed) > 0 {
		fmt.Fprintf(&b, "failed strategies: %s\n", strings.Join(r.Ingest.Failed, ", "))
	}
	fmt.Fprintf(&b, "generated: %d (no text: %d), skipped: %d, failed: %d\n",
		r.Generate.Generated, r.Generate.NoText, r.Generate.SkippedIneligible, r.Generate.Failed+r.Generate.Empty)
	if r.Generate.QuotaHit {
		fmt.Fprintf(&b, "quota hit, retry after %s\n", r.Generate.RetryAfter)
	}
	fmt.Fprintf(&b, "sent: %d, delivery failed: %d\n", r.Deliver.Sent, r.Deliver.Failed)
	if runErr != nil {
		fmt.Fprintf(&b, "error: `%s`\n", strings.ReplaceAll(runErr.Error(), "`", "'"))
	}
	return b.String()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
