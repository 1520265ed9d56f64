package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
	"github.com/ganz677/wb/internal/reply"
)

// CatalogSource returns the product index, loading it on first use.
type CatalogSource func() (ports.Catalog, error)

// GenerationDeps wires the generation pass.
type GenerationDeps struct {
	Repository ports.ItemRepository
	Catalog    CatalogSource
	Brand      string
	Similar    int
	Logger     *slog.Logger
}

// Generation turns loaded items into answers, one item at a time.
type Generation struct {
	repo    ports.ItemRepository
	catalog CatalogSource
	brand   string
	similar int
	logger  *slog.Logger
}

// GenerationReport counts the outcome of one pass.
type GenerationReport struct {
	Generated         int
	NoText            int
	SkippedIneligible int
	Empty             int
	Failed            int
	QuotaHit          bool
	RetryAfter        time.Duration
}

// Progress is the number of items that reached generated in the pass.
func (r GenerationReport) Progress() int {
	return r.Generated + r.NoText
}

func (r *GenerationReport) add(other GenerationReport) {
	r.Generated += other.Generated
	r.NoText += other.NoText
	r.SkippedIneligible += other.SkippedIneligible
	r.Empty += other.Empty
	r.Failed += other.Failed
	r.QuotaHit = r.QuotaHit || other.QuotaHit
	r.RetryAfter = max(r.RetryAfter, other.RetryAfter)
}

// NewGeneration constructs the generation use case.
func NewGeneration(deps GenerationDeps) *Generation {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	similar := deps.Similar
	if similar <= 0 {
		similar = reply.MaxRecommendations
	}
	return &Generation{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		brand:   deps.Brand,
		similar: similar,
		logger:  logger,
	}
}

// Pass walks every loaded item once with the given backend. It stops early,
// without error, when the backend reports quota exhaustion; the items not
// reached stay loaded.
func (g *Generation) Pass(ctx context.Context, backend ports.AnswerGenerator) (GenerationReport, error) {
	var report GenerationReport

	var items []domain.Item
	for _, kind := range domain.Kinds() {
		batch, err := g.repo.ListByStatus(ctx, kind, domain.StatusLoaded)
		if err != nil {
			return report, fmt.Errorf("list loaded %s: %w", kind, err)
		}
		for _, item := range batch {
			if !item.Eligible() {
				report.SkippedIneligible++
				continue
			}
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return report, nil
	}

	catalog, err := g.loadCatalog()
	if err != nil {
		return report, err
	}
	pool := catalog.Titles()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		title := g.resolveTitle(catalog, item)
		var exclude []string
		if title != "" {
			exclude = []string{title}
		}
		preferred := catalog.SimilarTitles(title, g.similar)

		if reply.IsNoText(item.Kind(), item.Text) {
			recs := reply.PickRecommendations(preferred, pool, exclude, reply.MaxRecommendations)
			answer := reply.RenderNoText(title, g.brand, recs)
			stored, err := g.store(ctx, item, answer)
			if err != nil {
				return report, err
			}
			if stored {
				report.NoText++
			}
			continue
		}

		rating, _ := item.Rating()
		text, err := backend.Generate(ctx, domain.ReplyRequest{
			Kind:         item.Kind(),
			ProductTitle: title,
			Text:         item.PromptText(),
			Rating:       &rating,
			Available:    pool,
			Preferred:    preferred,
			Exclude:      exclude,
		})

		var quota *domain.QuotaError
		switch {
		case errors.As(err, &quota):
			report.QuotaHit = true
			report.RetryAfter = max(report.RetryAfter, quota.RetryAfter)
			g.logger.Warn("generation quota exhausted, halting pass",
				"id", item.ExternalID, "retry_after", quota.RetryAfter)
			return report, nil
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.Failed++
			g.logger.Warn("generation failed, item left loaded", "id", item.ExternalID, "error", err)
			continue
		}

		answer := strings.TrimSpace(reply.Filter(text, exclude))
		if answer == "" {
			report.Empty++
			g.logger.Warn("backend returned nothing usable, item left loaded", "id", item.ExternalID)
			continue
		}
		stored, err := g.store(ctx, item, answer)
		if err != nil {
			return report, err
		}
		if stored {
			report.Generated++
		}
	}

	return report, nil
}

func (g *Generation) loadCatalog() (ports.Catalog, error) {
	if g.catalog == nil {
		return nil, &domain.ConfigurationError{Field: "catalog.path", Reason: "catalog is not configured"}
	}
	catalog, err := g.catalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

func (g *Generation) resolveTitle(catalog ports.Catalog, item domain.Item) string {
	if title := strings.TrimSpace(item.ProductTitle); title != "" {
		return title
	}
	if item.ProductID != nil {
		if name, ok := catalog.NameByID(*item.ProductID); ok {
			return name
		}
	}
	return ""
}

// store commits one answer; a pass halted later keeps everything stored so far.
func (g *Generation) store(ctx context.Context, item domain.Item, answer string) (bool, error) {
	err := g.repo.MarkGenerated(ctx, item.ExternalID, answer)
	if errors.Is(err, domain.ErrStaleStatus) {
		g.logger.Warn("item left loaded before answer was stored", "id", item.ExternalID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store answer %s: %w", item.ExternalID, err)
	}
	return true, nil
}
