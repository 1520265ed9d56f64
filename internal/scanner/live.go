package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// LiveName is the registry name of the unanswered-records strategy.
const LiveName = "live"

// LiveScanner pages through unanswered feedbacks and questions.
type LiveScanner struct {
	market ports.Marketplace
	repo   ports.ItemRepository
	logger *slog.Logger
}

var _ Scanner = (*LiveScanner)(nil)

// NewLiveScanner wires the marketplace and the store.
func NewLiveScanner(market ports.Marketplace, repo ports.ItemRepository, logger *slog.Logger) *LiveScanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LiveScanner{market: market, repo: repo, logger: logger}
}

// Name implements Scanner.
func (s *LiveScanner) Name() string { return LiveName }

// Scan walks every page of every requested kind until an empty page.
func (s *LiveScanner) Scan(ctx context.Context, req Request) (Result, error) {
	result := Result{Strategy: LiveName}
	take := clampPageSize(req.PageSize)

	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = []domain.Kind{domain.KindFeedback}
	}

	for _, kind := range kinds {
		for skip := 0; ; skip += take {
			records, err := s.market.ListUnanswered(ctx, kind, take, skip)
			if err != nil {
				return result, fmt.Errorf("list unanswered %s (skip %d): %w", kind, skip, err)
			}
			if len(records) == 0 {
				break
			}

			p := newPage(s.repo, s.logger, &result)
			for _, rec := range records {
				if err := s.admitRecord(ctx, p, kind, rec, req); err != nil {
					return result, err
				}
			}
			if err := p.commit(ctx); err != nil {
				return result, err
			}
			s.logger.Debug("live page stored", "kind", kind, "skip", skip, "records", len(records), "queued", len(p.items))
		}
	}

	return result, nil
}

func (s *LiveScanner) admitRecord(ctx context.Context, p *page, kind domain.Kind, rec domain.RemoteRecord, req Request) error {
	if strings.TrimSpace(rec.ID) == "" {
		p.result.skip(SkipMissingID)
		s.logger.Warn("record without id skipped", "kind", kind)
		return nil
	}
	if rec.Answered() {
		p.result.skip(SkipAnswered)
		return nil
	}

	createdAt := req.Now
	if strings.TrimSpace(rec.CreatedDate) != "" {
		parsed, err := domain.ParseTimestamp(rec.CreatedDate)
		if err != nil {
			p.result.skip(SkipUnparsable)
			s.logger.Warn("record with malformed date skipped", "id", rec.ID, "error", err)
			return nil
		}
		createdAt = parsed
	}

	_, err := p.admit(ctx, newItem(kind, rec, createdAt))
	return err
}
