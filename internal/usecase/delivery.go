package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// Delivery pushes generated answers to the marketplace.
type Delivery struct {
	repo   ports.ItemRepository
	market ports.Marketplace
	logger *slog.Logger
}

// DeliveryReport counts the outcome of one delivery stage.
type DeliveryReport struct {
	Sent   int
	Failed int
}

// NewDelivery constructs the delivery use case.
func NewDelivery(repo ports.ItemRepository, market ports.Marketplace, logger *slog.Logger) *Delivery {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Delivery{repo: repo, market: market, logger: logger}
}

// Run submits every generated item. Each item ends in sent or failed and the
// transition is committed on its own.
func (d *Delivery) Run(ctx context.Context) (DeliveryReport, error) {
	var report DeliveryReport

	for _, kind := range domain.Kinds() {
		items, err := d.repo.ListByStatus(ctx, kind, domain.StatusGenerated)
		if err != nil {
			return report, fmt.Errorf("list generated %s: %w", kind, err)
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			to := domain.StatusSent
			if strings.TrimSpace(item.AnswerText) == "" {
				to = domain.StatusFailed
				d.logger.Warn("generated item has no answer", "id", item.ExternalID)
			} else if err := d.market.SubmitAnswer(ctx, kind, item.ExternalID, item.AnswerText); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return report, ctxErr
				}
				to = domain.StatusFailed
				d.logger.Warn("answer rejected", "id", item.ExternalID, "error", err)
			}

			if err := d.repo.Transition(ctx, item.ExternalID, domain.StatusGenerated, to); err != nil {
				if errors.Is(err, domain.ErrStaleStatus) {
					d.logger.Warn("item moved during delivery", "id", item.ExternalID)
					continue
				}
				return report, fmt.Errorf("mark %s %s: %w", item.ExternalID, to, err)
			}

			if to == domain.StatusSent {
				report.Sent++
			} else {
				report.Failed++
			}
		}
	}

	return report, nil
}
