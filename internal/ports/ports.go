package ports

import (
	"context"
	"time"

	"github.com/ganz677/wb/internal/domain"
)

// ArchiveOrder selects the sort direction of the answered-feedback archive.
type ArchiveOrder string

const (
	OrderDateAsc  ArchiveOrder = "dateAsc"
	OrderDateDesc ArchiveOrder = "dateDesc"
)

// Marketplace is the review API: listing unanswered and archived records and
// posting replies.
type Marketplace interface {
	ListUnanswered(ctx context.Context, kind domain.Kind, take, skip int) ([]domain.RemoteRecord, error)
	ListArchive(ctx context.Context, take, skip int, order ArchiveOrder) ([]domain.RemoteRecord, error)
	SubmitAnswer(ctx context.Context, kind domain.Kind, externalID, text string) error
}

// ItemRepository persists items and their lifecycle.
type ItemRepository interface {
	Exists(ctx context.Context, externalID string) (bool, error)
	Insert(ctx context.Context, item domain.Item) error
	InsertBatch(ctx context.Context, items []domain.Item) error
	ListByStatus(ctx context.Context, kind domain.Kind, status domain.Status) ([]domain.Item, error)
	MarkGenerated(ctx context.Context, externalID, answer string) error
	Transition(ctx context.Context, externalID string, from, to domain.Status) error
	Requeue(ctx context.Context, kinds []domain.Kind, to domain.Status) (int64, error)
	CountByStatus(ctx context.Context, kind domain.Kind) (map[domain.Status]int, error)
}

// AnswerGenerator produces reply text. A *domain.QuotaError signals
// back-pressure; an empty string with nil error means "nothing usable".
type AnswerGenerator interface {
	Generate(ctx context.Context, req domain.ReplyRequest) (string, error)
}

// Catalog is the read-only product index consulted during generation.
type Catalog interface {
	NameByID(id int64) (string, bool)
	SimilarTitles(query string, k int) []string
	Titles() []string
}

// Notifier publishes a human-readable run digest.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute. Each job receives the trigger
// time and the slot index it was registered under.
type Scheduler interface {
	Start(ctx context.Context, job func(trigger time.Time, slot int)) error
	Stop(ctx context.Context) error
}
