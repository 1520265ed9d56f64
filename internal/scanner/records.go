package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// newItem builds a loaded item from a marketplace record.
func newItem(kind domain.Kind, rec domain.RemoteRecord, createdAt time.Time) domain.Item {
	item := domain.Item{
		ExternalID:   rec.ID,
		ProductID:    rec.ProductID,
		ProductTitle: strings.TrimSpace(rec.ProductTitle),
		Text:         strings.TrimSpace(rec.Text),
		CreatedAt:    createdAt.UTC(),
		Status:       domain.StatusLoaded,
	}
	switch kind {
	case domain.KindQuestion:
		item.Payload = domain.QuestionPayload{}
	default:
		item.Payload = domain.FeedbackPayload{Rating: rec.Rating, Reviewer: strings.TrimSpace(rec.UserName)}
	}
	return item
}

// page accumulates one listing page and commits it in a single batch.
type page struct {
	repo   ports.ItemRepository
	logger *slog.Logger
	result *Result
	seen   map[string]bool
	items  []domain.Item
}

func newPage(repo ports.ItemRepository, logger *slog.Logger, result *Result) *page {
	return &page{repo: repo, logger: logger, result: result, seen: map[string]bool{}}
}

// admit checks identity and storage, then queues the item. It reports whether the item was queued.
func (p *page) admit(ctx context.Context, item domain.Item) (bool, error) {
	if p.seen[item.ExternalID] {
		p.result.skip(SkipDuplicate)
		return false, nil
	}
	p.seen[item.ExternalID] = true

	exists, err := p.repo.Exists(ctx, item.ExternalID)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", item.ExternalID, err)
	}
	if exists {
		p.result.skip(SkipStored)
		return false, nil
	}

	p.items = append(p.items, item)
	return true, nil
}

// commit inserts the queued items. A unique violation inside the batch means
// another writer got there first; the page is then retried item by item.
func (p *page) commit(ctx context.Context) error {
	p.result.Pages++
	if len(p.items) == 0 {
		return nil
	}

	err := p.repo.InsertBatch(ctx, p.items)
	if err == nil {
		p.result.Inserted += len(p.items)
		return nil
	}
	if !errors.Is(err, domain.ErrDuplicateKey) {
		return fmt.Errorf("insert page: %w", err)
	}

	p.logger.Warn("batch hit a stored item, inserting one by one", "items", len(p.items), "error", err)
	for _, item := range p.items {
		switch err := p.repo.Insert(ctx, item); {
		case err == nil:
			p.result.Inserted++
		case errors.Is(err, domain.ErrDuplicateKey):
			p.result.skip(SkipStored)
		default:
			return fmt.Errorf("insert %s: %w", item.ExternalID, err)
		}
	}
	return nil
}
