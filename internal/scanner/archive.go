package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// ArchiveName is the registry name of the archive strategy.
const ArchiveName = "archive"

// DefaultArchiveWindow is how far back archived feedbacks are still picked up.
const DefaultArchiveWindow = 7 * 24 * time.Hour

// ArchiveScanner picks up recent unanswered feedbacks that already moved to the archive.
type ArchiveScanner struct {
	market ports.Marketplace
	repo   ports.ItemRepository
	logger *slog.Logger
}

var _ Scanner = (*ArchiveScanner)(nil)

// NewArchiveScanner wires the marketplace and the store.
func NewArchiveScanner(market ports.Marketplace, repo ports.ItemRepository, logger *slog.Logger) *ArchiveScanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ArchiveScanner{market: market, repo: repo, logger: logger}
}

// Name implements Scanner.
func (s *ArchiveScanner) Name() string { return ArchiveName }

// Scan pages the archive, keeping records created inside the window. With
// newest-first ordering it stops at the first page that lies entirely before the cutoff.
func (s *ArchiveScanner) Scan(ctx context.Context, req Request) (Result, error) {
	result := Result{Strategy: ArchiveName}
	take := clampPageSize(req.PageSize)

	window := req.ArchiveWindow
	if window <= 0 {
		window = DefaultArchiveWindow
	}
	cutoff := req.Now.Add(-window)
	order := req.ArchiveOrder
	if order == "" {
		order = ports.OrderDateDesc
	}

	skip := 0
	for {
		records, err := s.market.ListArchive(ctx, take, skip, order)
		if err != nil {
			return result, fmt.Errorf("list archive (skip %d): %w", skip, err)
		}
		if len(records) == 0 {
			break
		}

		p := newPage(s.repo, s.logger, &result)
		dated, older := 0, 0
		for _, rec := range records {
			if strings.TrimSpace(rec.ID) == "" {
				result.skip(SkipMissingID)
				s.logger.Warn("archive record without id skipped")
				continue
			}
			if strings.TrimSpace(rec.CreatedDate) == "" {
				result.skip(SkipUndated)
				s.logger.Warn("archive record without date skipped", "id", rec.ID)
				continue
			}
			createdAt, err := domain.ParseTimestamp(rec.CreatedDate)
			if err != nil {
				result.skip(SkipUnparsable)
				s.logger.Warn("archive record with malformed date skipped", "id", rec.ID, "error", err)
				continue
			}

			dated++
			if createdAt.Before(cutoff) {
				older++
				result.skip(SkipOutsideWindow)
				continue
			}
			if rec.Answered() {
				result.skip(SkipAnswered)
				continue
			}
			if _, err := p.admit(ctx, newItem(domain.KindFeedback, rec, createdAt)); err != nil {
				return result, err
			}
		}
		if err := p.commit(ctx); err != nil {
			return result, err
		}

		skip += len(records)
		if order == ports.OrderDateDesc && dated > 0 && older == dated {
			s.logger.Debug("archive page entirely before cutoff, stopping", "skip", skip, "cutoff", cutoff)
			break
		}
	}

	return result, nil
}
