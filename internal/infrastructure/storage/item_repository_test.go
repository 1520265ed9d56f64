package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganz677/wb/internal/domain"
)

func openTestRepository(t *testing.T) *ItemRepository {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db, DialectSQLite))
	return NewItemRepository(db, DialectSQLite)
}

func feedback(id string, rating int) domain.Item {
	productID := int64(100001)
	return domain.Item{
		ExternalID:   id,
		ProductID:    &productID,
		ProductTitle: "Rose Noir 50ml",
		Text:         "Прекрасный аромат",
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC),
		Payload:      domain.FeedbackPayload{Rating: &rating, Reviewer: "Анна"},
	}
}

func TestInsertAndListRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.Insert(ctx, feedback("fb-1", 5)))
	require.NoError(t, repo.Insert(ctx, domain.Item{
		ExternalID: "q-1",
		Text:       "Есть ли объём 100 мл?",
		CreatedAt:  time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC),
		Payload:    domain.QuestionPayload{},
	}))

	items, err := repo.ListByStatus(ctx, domain.KindFeedback, domain.StatusLoaded)
	require.NoError(t, err)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, "fb-1", got.ExternalID)
	assert.Equal(t, domain.StatusLoaded, got.Status)
	assert.Equal(t, "Rose Noir 50ml", got.ProductTitle)
	assert.True(t, got.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)))
	require.NotNil(t, got.ProductID)
	assert.Equal(t, int64(100001), *got.ProductID)
	rating, ok := got.Rating()
	assert.True(t, ok)
	assert.Equal(t, 5, rating)
	assert.Equal(t, "Анна", got.Reviewer())

	questions, err := repo.ListByStatus(ctx, domain.KindQuestion, domain.StatusLoaded)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, domain.KindQuestion, questions[0].Kind())
}

func TestInsertDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.Insert(ctx, feedback("fb-1", 5)))
	err := repo.Insert(ctx, feedback("fb-1", 4))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	exists, err := repo.Exists(ctx, "fb-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInsertBatchRollsBackOnCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.Insert(ctx, feedback("fb-2", 5)))

	err := repo.InsertBatch(ctx, []domain.Item{feedback("fb-1", 5), feedback("fb-2", 5)})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	exists, err := repo.Exists(ctx, "fb-1")
	require.NoError(t, err)
	assert.False(t, exists, "page must be rolled back as a whole")

	require.NoError(t, repo.InsertBatch(ctx, []domain.Item{feedback("fb-1", 5), feedback("fb-3", 5)}))
	counts, err := repo.CountByStatus(ctx, domain.KindFeedback)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.StatusLoaded])
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepository(t)

	require.NoError(t, repo.Insert(ctx, feedback("fb-1", 5)))
	require.NoError(t, repo.MarkGenerated(ctx, "fb-1", "Спасибо!"))

	generated, err := repo.ListByStatus(ctx, domain.KindFeedback, domain.StatusGenerated)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, "Спасибо!", generated[0].AnswerText)

	err = repo.Transition(ctx, "fb-1", domain.StatusGenerated, domain.StatusLoaded)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, repo.Transition(ctx, "fb-1", domain.StatusGenerated, domain.StatusSent))

	err = repo.Transition(ctx, "fb-1", domain.StatusGenerated, domain.StatusFailed)
	assert.ErrorIs(t, err, domain.ErrStaleStatus)

	err = repo.Transition(ctx, "missing", domain.StatusGenerated, domain.StatusFailed)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.MarkGenerated(ctx, "fb-1", "again")
	assert.ErrorIs(t, err, domain.ErrStaleStatus)
}

func TestRequeue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepository(t)

	for _, id := range []string{"fb-1", "fb-2"} {
		require.NoError(t, repo.Insert(ctx, feedback(id, 5)))
		require.NoError(t, repo.MarkGenerated(ctx, id, "ответ"))
		require.NoError(t, repo.Transition(ctx, id, domain.StatusGenerated, domain.StatusFailed))
	}

	affected, err := repo.Requeue(ctx, []domain.Kind{domain.KindQuestion}, domain.StatusGenerated)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	affected, err = repo.Requeue(ctx, nil, domain.StatusLoaded)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	loaded, err := repo.ListByStatus(ctx, domain.KindFeedback, domain.StatusLoaded)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Empty(t, loaded[0].AnswerText)

	_, err = repo.Requeue(ctx, nil, domain.StatusSent)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func newMockRepository(t *testing.T) (*ItemRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewItemRepository(sqlx.NewDb(db, "postgres"), DialectPostgres), mock
}

func TestPostgresInsertMapsUniqueViolation(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO items (kind,external_id")).
		WithArgs("feedback", "fb-1", int64(100001), "Rose Noir 50ml", "Прекрасный аромат",
			5, "Анна", sqlmock.AnyArg(), "loaded", nil, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Insert(context.Background(), feedback("fb-1", 5))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionUsesGuardedUpdate(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE items SET status = $1, updated_at = $2 WHERE external_id = $3 AND status = $4")).
		WithArgs("sent", sqlmock.AnyArg(), "fb-1", "generated").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), "fb-1", domain.StatusGenerated, domain.StatusSent)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRequeueFiltersKinds(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE items SET status = $1, updated_at = $2, answer_text = $3 WHERE kind IN ($4) AND status = $5")).
		WithArgs("loaded", sqlmock.AnyArg(), nil, "feedback", "failed").
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.Requeue(context.Background(), []domain.Kind{domain.KindFeedback}, domain.StatusLoaded)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPropagatesErrors(t *testing.T) {
	t.Parallel()
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, external_id")).
		WithArgs("feedback", "loaded").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListByStatus(context.Background(), domain.KindFeedback, domain.StatusLoaded)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBTimeScan(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, src := range []any{
		want,
		"2024-05-01T10:00:00.000000Z",
		[]byte("2024-05-01T13:00:00+03:00"),
		"2024-05-01 10:00:00",
	} {
		var got dbTime
		require.NoError(t, got.Scan(src))
		assert.True(t, time.Time(got).Equal(want), "source %v", src)
	}

	var bad dbTime
	assert.Error(t, bad.Scan(42))
}
