package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganz677/wb/internal/catalog"
	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/infrastructure/storage"
	"github.com/ganz677/wb/internal/ports"
)

func openRepo(t *testing.T) *storage.ItemRepository {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db, storage.DialectSQLite))
	return storage.NewItemRepository(db, storage.DialectSQLite)
}

func perfumeCatalog(t *testing.T) CatalogSource {
	t.Helper()
	idx, err := catalog.Build(catalog.Table{
		Header: []string{"nm_id", "Название", "Описание"},
		Rows: [][]string{
			{"100001", "Rose Noir 50ml", "Роза пачули, тёмный шлейф и древесные ноты"},
			{"100002", "Vanille Intense", "Сладкая ваниль с карамелью"},
			{"100003", "Oud Royal", "Уд, пачули и древесные ноты"},
		},
	})
	require.NoError(t, err)
	return func() (ports.Catalog, error) { return idx, nil }
}

func failingCatalog() CatalogSource {
	return func() (ports.Catalog, error) {
		return nil, &domain.ConfigurationError{Field: "catalog.path", Reason: "not set"}
	}
}

func feedbackItem(id, title, text string, stars int) domain.Item {
	productID := int64(100001)
	return domain.Item{
		ExternalID:   id,
		ProductID:    &productID,
		ProductTitle: title,
		Text:         text,
		CreatedAt:    time.Date(2024, 5, 9, 10, 0, 0, 0, time.UTC),
		Payload:      domain.FeedbackPayload{Rating: &stars, Reviewer: "Анна"},
	}
}

func insertItems(t *testing.T, repo ports.ItemRepository, items ...domain.Item) {
	t.Helper()
	require.NoError(t, repo.InsertBatch(context.Background(), items))
}

func statusOf(t *testing.T, repo ports.ItemRepository, kind domain.Kind, status domain.Status) []domain.Item {
	t.Helper()
	items, err := repo.ListByStatus(context.Background(), kind, status)
	require.NoError(t, err)
	return items
}

// scriptedGenerator answers from a queue of results, then repeats the fallback.
type scriptedGenerator struct {
	mu       sync.Mutex
	script   []step
	fallback step
	requests []domain.ReplyRequest
}

type step struct {
	text string
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, req domain.ReplyRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	next := g.fallback
	if len(g.script) > 0 {
		next, g.script = g.script[0], g.script[1:]
	}
	return next.text, next.err
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type submission struct {
	kind domain.Kind
	id   string
	text string
}

// fakeMarket serves unanswered pages and records submissions.
type fakeMarket struct {
	mu         sync.Mutex
	unanswered []domain.RemoteRecord
	reject     map[string]error
	submitted  []submission
}

func (f *fakeMarket) ListUnanswered(_ context.Context, kind domain.Kind, take, skip int) ([]domain.RemoteRecord, error) {
	if kind != domain.KindFeedback || skip >= len(f.unanswered) {
		return nil, nil
	}
	return f.unanswered[skip:min(skip+take, len(f.unanswered))], nil
}

func (f *fakeMarket) ListArchive(context.Context, int, int, ports.ArchiveOrder) ([]domain.RemoteRecord, error) {
	return nil, nil
}

func (f *fakeMarket) SubmitAnswer(_ context.Context, kind domain.Kind, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reject[id]; err != nil {
		return err
	}
	f.submitted = append(f.submitted, submission{kind: kind, id: id, text: text})
	return nil
}

type recordingNotifier struct {
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}
