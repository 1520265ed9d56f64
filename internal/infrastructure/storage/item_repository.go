package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

const (
	itemsTable      = "items"
	pgUniqueViolate = "23505"
	timeLayout      = "2006-01-02T15:04:05.000000Z07:00"
)

var itemColumns = []string{
	"id", "kind", "external_id", "product_id", "product_title", "body",
	"rating", "reviewer", "created_at", "status", "answer_text",
}

// ItemRepository persists marketplace items in Postgres or SQLite.
type ItemRepository struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.ItemRepository = (*ItemRepository)(nil)

// NewItemRepository wires an sqlx handle; the dialect selects the placeholder style.
func NewItemRepository(db *sqlx.DB, dialect Dialect) *ItemRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &ItemRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type itemRow struct {
	ID           int64          `db:"id"`
	Kind         string         `db:"kind"`
	ExternalID   string         `db:"external_id"`
	ProductID    sql.NullInt64  `db:"product_id"`
	ProductTitle sql.NullString `db:"product_title"`
	Body         string         `db:"body"`
	Rating       sql.NullInt64  `db:"rating"`
	Reviewer     sql.NullString `db:"reviewer"`
	CreatedAt    dbTime         `db:"created_at"`
	Status       string         `db:"status"`
	AnswerText   sql.NullString `db:"answer_text"`
}

func (r itemRow) toDomain() domain.Item {
	item := domain.Item{
		ID:           r.ID,
		ExternalID:   r.ExternalID,
		ProductTitle: r.ProductTitle.String,
		Text:         r.Body,
		CreatedAt:    time.Time(r.CreatedAt),
		Status:       domain.Status(r.Status),
		AnswerText:   r.AnswerText.String,
	}
	if r.ProductID.Valid {
		id := r.ProductID.Int64
		item.ProductID = &id
	}

	switch domain.Kind(r.Kind) {
	case domain.KindQuestion:
		item.Payload = domain.QuestionPayload{}
	default:
		fb := domain.FeedbackPayload{Reviewer: r.Reviewer.String}
		if r.Rating.Valid {
			rating := int(r.Rating.Int64)
			fb.Rating = &rating
		}
		item.Payload = fb
	}

	return item
}

// Exists reports whether an item with the external id is stored.
func (r *ItemRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	query, args, err := r.builder.Select("COUNT(1)").From(itemsTable).
		Where(sq.Eq{"external_id": externalID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}

	return count > 0, nil
}

// Insert stores a single item in status loaded.
func (r *ItemRepository) Insert(ctx context.Context, item domain.Item) error {
	query, args, err := r.insertQuery(item)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapInsertError(err, item.ExternalID)
	}

	return nil
}

// InsertBatch stores a page of items in one transaction; any collision rolls back the page.
func (r *ItemRepository) InsertBatch(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}

	for _, item := range items {
		query, args, err := r.insertQuery(item)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return mapInsertError(err, item.ExternalID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}

	return nil
}

func (r *ItemRepository) insertQuery(item domain.Item) (string, []any, error) {
	status := item.Status
	if status == "" {
		status = domain.StatusLoaded
	}

	var rating, reviewer any
	if fb, ok := item.Payload.(domain.FeedbackPayload); ok {
		if fb.Rating != nil {
			rating = *fb.Rating
		}
		if fb.Reviewer != "" {
			reviewer = fb.Reviewer
		}
	}

	var productID any
	if item.ProductID != nil {
		productID = *item.ProductID
	}

	query, args, err := r.builder.Insert(itemsTable).
		Columns("kind", "external_id", "product_id", "product_title", "body",
			"rating", "reviewer", "created_at", "status", "answer_text", "updated_at").
		Values(string(item.Kind()), item.ExternalID, productID, nullString(item.ProductTitle), item.Text,
			rating, reviewer, dbTime(item.CreatedAt), string(status), nullString(item.AnswerText), dbTime(r.now())).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}

	return query, args, nil
}

// ListByStatus returns items of one kind and status in storage order.
func (r *ItemRepository) ListByStatus(ctx context.Context, kind domain.Kind, status domain.Status) ([]domain.Item, error) {
	query, args, err := r.builder.Select(itemColumns...).From(itemsTable).
		Where(sq.Eq{"kind": string(kind), "status": string(status)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list %s items in %s: %w", kind, status, err)
	}

	items := make([]domain.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}

	return items, nil
}

// MarkGenerated stores the answer and moves a loaded item to generated.
func (r *ItemRepository) MarkGenerated(ctx context.Context, externalID, answer string) error {
	query, args, err := r.builder.Update(itemsTable).
		Set("status", string(domain.StatusGenerated)).
		Set("answer_text", answer).
		Set("updated_at", dbTime(r.now())).
		Where(sq.Eq{"external_id": externalID, "status": string(domain.StatusLoaded)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark generated: %w", err)
	}

	return r.execSingle(ctx, query, args, externalID)
}

// Transition moves one item between statuses if the lifecycle allows it and
// the item is still in the expected status.
func (r *ItemRepository) Transition(ctx context.Context, externalID string, from, to domain.Status) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	update := r.builder.Update(itemsTable).
		Set("status", string(to)).
		Set("updated_at", dbTime(r.now())).
		Where(sq.Eq{"external_id": externalID, "status": string(from)})
	if to == domain.StatusLoaded {
		update = update.Set("answer_text", nil)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build transition: %w", err)
	}

	return r.execSingle(ctx, query, args, externalID)
}

// Requeue moves every failed item of the given kinds (all kinds when empty) to
// generated, or back to loaded with the answer cleared.
func (r *ItemRepository) Requeue(ctx context.Context, kinds []domain.Kind, to domain.Status) (int64, error) {
	if !domain.CanTransition(domain.StatusFailed, to) {
		return 0, fmt.Errorf("requeue to %s: %w", to, domain.ErrInvalidTransition)
	}

	where := sq.Eq{"status": string(domain.StatusFailed)}
	if len(kinds) > 0 {
		names := make([]string, 0, len(kinds))
		for _, k := range kinds {
			names = append(names, string(k))
		}
		where["kind"] = names
	}

	update := r.builder.Update(itemsTable).
		Set("status", string(to)).
		Set("updated_at", dbTime(r.now())).
		Where(where)
	if to == domain.StatusLoaded {
		update = update.Set("answer_text", nil)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build requeue: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue failed items: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows affected: %w", err)
	}

	return affected, nil
}

// CountByStatus returns the number of items of a kind per status.
func (r *ItemRepository) CountByStatus(ctx context.Context, kind domain.Kind) (map[domain.Status]int, error) {
	query, args, err := r.builder.Select("status", "COUNT(1) AS total").From(itemsTable).
		Where(sq.Eq{"kind": string(kind)}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count %s items: %w", kind, err)
	}

	counts := make(map[domain.Status]int, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Total
	}

	return counts, nil
}

func (r *ItemRepository) execSingle(ctx context.Context, query string, args []any, externalID string) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item %s: %w", externalID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", externalID, err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := r.Exists(ctx, externalID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("item %s: %w", externalID, domain.ErrNotFound)
	}
	return fmt.Errorf("item %s: %w", externalID, domain.ErrStaleStatus)
}

func mapInsertError(err error, externalID string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolate {
		return fmt.Errorf("insert %s: %w", externalID, domain.ErrDuplicateKey)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")) {
			return fmt.Errorf("insert %s: %w", externalID, domain.ErrDuplicateKey)
		}
	}

	return fmt.Errorf("insert %s: %w", externalID, err)
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// dbTime stores timestamps as fixed-width UTC text so both dialects sort and
// round-trip them identically.
type dbTime time.Time

var scanLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (t dbTime) Value() (driver.Value, error) {
	return time.Time(t).UTC().Format(timeLayout), nil
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = dbTime(v.UTC())
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		*t = dbTime(time.Time{})
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *dbTime) parse(value string) error {
	for _, layout := range scanLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			*t = dbTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("unparsable timestamp %q", value)
}
