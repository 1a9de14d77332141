package highlights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const highlightsTable = "highlights"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var itemColumns = []string{
	"id", "title", "description", "media_url", "media_type", "link_url", "link_text",
	"author_id", "author_name", "author_avatar_url", "author_email",
	"is_admin_post", "priority", "moderation_status", "rejection_reason", "view_count",
	"moderated_by", "moderated_at", "created_at", "expires_at", "updated_at",
}

type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, filter ListFilter) ([]*Item, int64, error)
	ListVisible(ctx context.Context, now time.Time) ([]*Item, error)
	UpdateStatus(ctx context.Context, id string, from Status, update StatusUpdate) (*Item, error)
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, item *Item) error {
	query, args, err := psql.Insert(highlightsTable).
		Columns(itemColumns...).
		Values(
			item.ID, item.Title, item.Description, item.MediaURL, item.MediaType, item.LinkURL, item.LinkText,
			item.AuthorID, item.AuthorName, item.AuthorAvatarURL, item.AuthorEmail,
			item.IsAdminPost, item.Priority, item.Status, item.RejectionReason, item.ViewCount,
			item.ModeratedBy, item.ModeratedAt, item.CreatedAt, item.ExpiresAt, item.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	query, args, err := psql.Select(itemColumns...).
		From(highlightsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	item := &Item{}
	err = r.db.GetContext(ctx, item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Item, int64, error) {
	countQuery, countArgs, err := applyFilter(psql.Select("COUNT(*)").From(highlightsTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count: %w", err)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, err
	}

	query, args, err := buildListQuery(filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list: %w", err)
	}

	items := []*Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListVisible narrows the approved set in SQL; callers still apply
// IsVisible because the result may be cached.
func (r *PostgresRepository) ListVisible(ctx context.Context, now time.Time) ([]*Item, error) {
	query, args, err := psql.Select(itemColumns...).
		From(highlightsTable).
		Where(sq.Eq{"moderation_status": StatusApproved}).
		Where(sq.Gt{"expires_at": now}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build visible list: %w", err)
	}

	items := []*Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus applies update only while the stored status still equals from.
// A concurrent change yields ErrStatusChanged.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from Status, update StatusUpdate) (*Item, error) {
	query, args, err := buildStatusUpdate(id, from, update).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	item := &Item{}
	err = r.db.GetContext(ctx, item, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete(highlightsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementViews(ctx context.Context, id string) error {
	query, args, err := psql.Update(highlightsTable).
		Set("view_count", sq.Expr("view_count + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build view update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE moderation_status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE moderation_status = 'approved') AS approved,
			COUNT(*) FILTER (WHERE moderation_status = 'rejected') AS rejected,
			COUNT(*) FILTER (WHERE moderation_status = 'inactive') AS inactive,
			COUNT(*) FILTER (WHERE is_admin_post OR priority >= $1) AS admin,
			COUNT(*) FILTER (WHERE moderation_status = 'approved' AND expires_at <= $2) AS expired
		FROM highlights`

	stats := &Stats{}
	if err := r.db.GetContext(ctx, stats, query, MaxPriority, now); err != nil {
		return nil, err
	}
	return stats, nil
}

func applyFilter(b sq.SelectBuilder, filter ListFilter) sq.SelectBuilder {
	if filter.Status != "" {
		b = b.Where(sq.Eq{"moderation_status": filter.Status})
	}
	if filter.AdminOnly {
		b = b.Where(sq.Or{sq.Eq{"is_admin_post": true}, sq.GtOrEq{"priority": MaxPriority}})
	}
	if filter.AuthorID != "" {
		b = b.Where(sq.Eq{"author_id": filter.AuthorID})
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		b = b.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"description": pattern},
			sq.ILike{"author_name": pattern},
		})
	}
	return b
}

func buildListQuery(filter ListFilter) sq.SelectBuilder {
	return applyFilter(psql.Select(itemColumns...).From(highlightsTable), filter).
		OrderBy("priority DESC", "created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
}

func buildStatusUpdate(id string, from Status, update StatusUpdate) sq.UpdateBuilder {
	var reason interface{}
	if update.Status == StatusRejected && update.RejectionReason != nil {
		reason = *update.RejectionReason
	}

	return psql.Update(highlightsTable).
		Set("moderation_status", update.Status).
		Set("rejection_reason", reason).
		Set("moderated_by", update.ModeratedBy).
		Set("moderated_at", update.ModeratedAt).
		Set("updated_at", update.ModeratedAt).
		Where(sq.Eq{"id": id, "moderation_status": from}).
		Suffix("RETURNING " + strings.Join(itemColumns, ", "))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
