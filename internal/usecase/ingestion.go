package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/internal/scanner"
)

// IngestOptions mirrors the ingest config section.
type IngestOptions struct {
	Strategies    []string
	Kinds         []domain.Kind
	PageSize      int
	ArchiveOrder  ports.ArchiveOrder
	ArchiveWindow time.Duration
}

// Ingestion runs the configured strategies in order.
type Ingestion struct {
	registry *scanner.Registry
	opts     IngestOptions
	logger   *slog.Logger
	now      func() time.Time
}

// IngestReport collects per-strategy results.
type IngestReport struct {
	Results  []scanner.Result
	Inserted int
	Failed   []string
}

// NewIngestion wires the scanner registry with config-defined strategies.
func NewIngestion(reg *scanner.Registry, opts IngestOptions, logger *slog.Logger) *Ingestion {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = []string{scanner.LiveName}
	}
	return &Ingestion{registry: reg, opts: opts, logger: logger, now: time.Now}
}

// Run executes every strategy. A failing strategy is logged and the next one still runs.
func (i *Ingestion) Run(ctx context.Context) (IngestReport, error) {
	var report IngestReport
	if i.registry == nil {
		return report, fmt.Errorf("scanner registry is not configured")
	}

	req := scanner.Request{
		Now:           i.now().UTC(),
		Kinds:         i.opts.Kinds,
		PageSize:      i.opts.PageSize,
		ArchiveOrder:  i.opts.ArchiveOrder,
		ArchiveWindow: i.opts.ArchiveWindow,
	}

	for _, name := range i.opts.Strategies {
		strategy, err := i.registry.Resolve(name)
		if err != nil {
			return report, err
		}

		result, err := strategy.Scan(ctx, req)
		report.Results = append(report.Results, result)
		report.Inserted += result.Inserted
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.Failed = append(report.Failed, name)
			i.logger.Error("ingestion strategy failed", "strategy", name, "inserted", result.Inserted, "error", err)
			continue
		}

		i.logger.Info("ingestion strategy done",
			"event", "ingest_"+name, "inserted", result.Inserted, "pages", result.Pages, "skipped", result.Skipped)
	}

	return report, nil
}
