package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khoahotran/pulse-media/internal/domain/user"
	"github.com/khoahotran/pulse-media/internal/domain/video"
	"github.com/khoahotran/pulse-media/pkg/apperror"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

type postgresVideoRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

func NewPostgresVideoRepo(db *pgxpool.Pool, logger logger.Logger) video.Repository {
	return &postgresVideoRepo{db: db, logger: logger}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const videoColumns = `id, owner_id, storage_path, mime_type, byte_size, original_name,
	title, description, thumbnail_path, duration_seconds, status, processing_progress,
	view_count, liked_by, disliked_by, uploaded_at, updated_at, processing_started_at`

func scanVideo(row pgx.Row) (*video.Video, error) {
	v := &video.Video{}
	err := row.Scan(
		&v.ID, &v.OwnerID, &v.StoragePath, &v.MimeType, &v.ByteSize, &v.OriginalName,
		&v.Title, &v.Description, &v.ThumbnailPath, &v.DurationSeconds, &v.Status, &v.ProcessingProgress,
		&v.ViewCount, &v.LikedBy, &v.DislikedBy, &v.UploadedAt, &v.UpdatedAt, &v.ProcessingStartedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.LikedBy == nil {
		v.LikedBy = []uuid.UUID{}
	}
	if v.DislikedBy == nil {
		v.DislikedBy = []uuid.UUID{}
	}
	return v, nil
}

func scanVideos(rows pgx.Rows) ([]*video.Video, error) {
	defer rows.Close()
	videos := make([]*video.Video, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan video row", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("error iterating video rows", err)
	}
	return videos, nil
}

// one maps a single-row result, turning pgx.ErrNoRows into a NotFound.
func (r *postgresVideoRepo) one(row pgx.Row, id uuid.UUID, op string) (*video.Video, error) {
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("video", id.String())
		}
		return nil, apperror.NewInternal(op, err)
	}
	return v, nil
}

// conditional runs a guarded UPDATE. When no row matched it tells a missing
// asset apart from one whose status no longer satisfies the guard.
func (r *postgresVideoRepo) conditional(ctx context.Context, id uuid.UUID, op, query string, args ...any) (*video.Video, error) {
	v, err := scanVideo(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewInternal(op, err)
	}

	var status video.Status
	err = r.db.QueryRow(ctx, `SELECT status FROM videos WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("video", id.String())
	}
	if err != nil {
		return nil, apperror.NewInternal(op, err)
	}
	return nil, apperror.NewConflict("invalid status transition",
		fmt.Sprintf("video %s is %s", id, status), video.ErrInvalidTransition)
}

func (r *postgresVideoRepo) Save(ctx context.Context, v *video.Video) error {
	query := `
		INSERT INTO videos (id, owner_id, storage_path, mime_type, byte_size, original_name,
			title, description, thumbnail_path, duration_seconds, status, processing_progress,
			view_count, liked_by, disliked_by, uploaded_at, updated_at, processing_started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	likedBy, dislikedBy := v.LikedBy, v.DislikedBy
	if likedBy == nil {
		likedBy = []uuid.UUID{}
	}
	if dislikedBy == nil {
		dislikedBy = []uuid.UUID{}
	}
	_, err := r.db.Exec(ctx, query,
		v.ID, v.OwnerID, v.StoragePath, v.MimeType, v.ByteSize, v.OriginalName,
		v.Title, v.Description, v.ThumbnailPath, v.DurationSeconds, v.Status, v.ProcessingProgress,
		v.ViewCount, likedBy, dislikedBy, v.UploadedAt, v.UpdatedAt, v.ProcessingStartedAt,
	)
	if err != nil {
		return apperror.NewInternal("failed to save video", err)
	}
	return nil
}

func (r *postgresVideoRepo) FindByID(ctx context.Context, id uuid.UUID) (*video.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	return r.one(r.db.QueryRow(ctx, query, id), id, "failed to get video")
}

func (r *postgresVideoRepo) List(ctx context.Context, filter video.ListFilter) ([]*video.Video, error) {
	builder := psql.Select(videoColumns).
		From("videos").
		OrderBy("uploaded_at DESC")

	switch filter.Requester.Role {
	case user.RoleAdmin:
	case user.RoleEditor:
		builder = builder.Where(sq.Or{
			sq.Eq{"status": video.StatusLive},
			sq.Eq{"owner_id": filter.Requester.ID},
		})
	default:
		builder = builder.Where(sq.Eq{"status": video.StatusLive})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build list videos query", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query videos", err)
	}
	return scanVideos(rows)
}

func (r *postgresVideoRepo) UpdateDetails(ctx context.Context, id uuid.UUID, title, description *string) (*video.Video, error) {
	query := `
		UPDATE videos SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + videoColumns
	return r.one(r.db.QueryRow(ctx, query, id, title, description), id, "failed to update video details")
}

func (r *postgresVideoRepo) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE videos SET processing_progress = GREATEST(processing_progress, $2), updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	if _, err := r.db.Exec(ctx, query, id, progress, video.StatusProcessing); err != nil {
		return apperror.NewInternal("failed to update processing progress", err)
	}
	return nil
}

func (r *postgresVideoRepo) CompleteProcessing(ctx context.Context, id uuid.UUID, res video.ProcessingResult) (*video.Video, error) {
	query := `
		UPDATE videos SET
			duration_seconds = $2, thumbnail_path = $3, title = $4,
			processing_progress = $5, status = $6, updated_at = NOW()
		WHERE id = $1 AND status = $7
		RETURNING ` + videoColumns
	return r.conditional(ctx, id, "failed to complete processing", query,
		id, res.DurationSeconds, res.ThumbnailPath, res.Title,
		video.ProgressDone, video.StatusDraft, video.StatusProcessing,
	)
}

func (r *postgresVideoRepo) MarkProcessingStarted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE videos SET processing_started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	if _, err := r.db.Exec(ctx, query, id, video.StatusProcessing); err != nil {
		return apperror.NewInternal("failed to mark processing start", err)
	}
	return nil
}

func (r *postgresVideoRepo) Transition(ctx context.Context, id uuid.UUID, from []video.Status, to video.Status) (*video.Video, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}
	query := `
		UPDATE videos SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + videoColumns
	return r.conditional(ctx, id, "failed to transition video", query, id, to, froms)
}

// ApplyVote toggles membership inside a single UPDATE; the row lock makes
// concurrent votes on one asset apply one after another against the latest
// arrays.
func (r *postgresVideoRepo) ApplyVote(ctx context.Context, id uuid.UUID, principal uuid.UUID, kind video.VoteKind) (*video.Video, error) {
	target, opposite := "liked_by", "disliked_by"
	if kind == video.VoteDislike {
		target, opposite = opposite, target
	}
	query := fmt.Sprintf(`
		UPDATE videos SET
			%[1]s = CASE WHEN $2::uuid = ANY(%[1]s) THEN array_remove(%[1]s, $2::uuid)
				ELSE array_append(%[1]s, $2::uuid) END,
			%[2]s = array_remove(%[2]s, $2::uuid),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+videoColumns, target, opposite)
	return r.one(r.db.QueryRow(ctx, query, id, principal), id, "failed to apply vote")
}

func (r *postgresVideoRepo) IncrementViews(ctx context.Context, id uuid.UUID) (*video.Video, error) {
	query := `
		UPDATE videos SET view_count = view_count + 1
		WHERE id = $1
		RETURNING ` + videoColumns
	return r.one(r.db.QueryRow(ctx, query, id), id, "failed to increment views")
}

func (r *postgresVideoRepo) Delete(ctx context.Context, id uuid.UUID) (*video.Video, error) {
	query := `DELETE FROM videos WHERE id = $1 RETURNING ` + videoColumns
	return r.one(r.db.QueryRow(ctx, query, id), id, "failed to delete video")
}

func (r *postgresVideoRepo) ListStaleProcessing(ctx context.Context, before time.Time) ([]*video.Video, error) {
	sql, args, err := psql.Select(videoColumns).
		From("videos").
		Where(sq.Eq{"status": video.StatusProcessing}).
		Where(sq.Expr("COALESCE(processing_started_at, uploaded_at) < ?", before)).
		OrderBy("COALESCE(processing_started_at, uploaded_at) ASC").
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build stale processing query", err)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to query stale processing videos", err)
	}
	return scanVideos(rows)
}
