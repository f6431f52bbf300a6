// Package postgres provides a PostgreSQL VideoStore for deployments that run
// several ingest instances against one shared database.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VideoStore = (*VideoRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
  id            BIGSERIAL PRIMARY KEY,
  video_id      TEXT NOT NULL UNIQUE,
  title         TEXT NOT NULL,
  description   TEXT NOT NULL DEFAULT '',
  published_at  TIMESTAMPTZ NOT NULL,
  thumbnails    JSONB NOT NULL DEFAULT '{}'::jsonb,
  channel_id    TEXT NOT NULL,
  channel_title TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_videos_published_at ON videos (published_at DESC);
CREATE INDEX IF NOT EXISTS idx_videos_title ON videos (title);
`

const videoColumns = `id, video_id, title, description, published_at, thumbnails,
  channel_id, channel_title, created_at, updated_at`

// VideoRepo is the PostgreSQL implementation of the VideoStore port interface.
type VideoRepo struct {
	pool *pgxpool.Pool
}

// New connects to dsn and ensures the videos schema exists.
func New(ctx context.Context, dsn string) (*VideoRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &VideoRepo{pool: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the videos table and its indexes if absent.
func (r *VideoRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (r *VideoRepo) Close() {
	r.pool.Close()
}

// UpsertBatch sends one INSERT ... ON CONFLICT per video as a single batch
// inside a transaction. created_at is preserved on conflict.
func (r *VideoRepo) UpsertBatch(ctx context.Context, videos []model.Video) error {
	if len(videos) == 0 {
		return nil
	}

	const query = `
INSERT INTO videos (video_id, title, description, published_at, thumbnails, channel_id, channel_title)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (video_id) DO UPDATE SET
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  published_at = EXCLUDED.published_at,
  thumbnails = EXCLUDED.thumbnails,
  channel_id = EXCLUDED.channel_id,
  channel_title = EXCLUDED.channel_title,
  updated_at = now()`

	b := &pgx.Batch{}
	for _, v := range videos {
		thumbs, err := json.Marshal(v.Thumbnails)
		if err != nil {
			return fmt.Errorf("marshal thumbnails for %s: %w", v.VideoID, err)
		}
		b.Queue(query, v.VideoID, v.Title, v.Description, v.PublishedAt.UTC(), thumbs, v.ChannelID, v.ChannelTitle)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, b)
	for _, v := range videos {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert video %s: %w", v.VideoID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close upsert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// LatestPublishedAt returns the newest published_at across stored videos.
func (r *VideoRepo) LatestPublishedAt(ctx context.Context) (time.Time, bool, error) {
	var latest *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MAX(published_at) FROM videos`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest published_at: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// ListPage returns one page of videos ordered by published_at descending.
func (r *VideoRepo) ListPage(ctx context.Context, offset, limit int) ([]model.Video, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	videos, err := r.queryVideos(ctx, `
SELECT `+videoColumns+`
FROM videos
ORDER BY published_at DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// SearchText returns one page of videos whose title or description contains
// pattern, ignoring case. Wildcard characters in pattern match literally.
func (r *VideoRepo) SearchText(ctx context.Context, pattern string, offset, limit int) ([]model.Video, int, error) {
	like := "%" + escapeLike(pattern) + "%"

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos WHERE title ILIKE $1 OR description ILIKE $1`, like).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count matching videos: %w", err)
	}

	videos, err := r.queryVideos(ctx, `
SELECT `+videoColumns+`
FROM videos
WHERE title ILIKE $1 OR description ILIKE $1
ORDER BY published_at DESC, id DESC
LIMIT $2 OFFSET $3`, like, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

func (r *VideoRepo) queryVideos(ctx context.Context, query string, args ...any) ([]model.Video, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

func scanVideo(row pgx.Row) (*model.Video, error) {
	var v model.Video
	var thumbs []byte

	err := row.Scan(
		&v.ID, &v.VideoID, &v.Title, &v.Description, &v.PublishedAt, &thumbs,
		&v.ChannelID, &v.ChannelTitle, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(thumbs, &v.Thumbnails); err != nil {
		return nil, fmt.Errorf("unmarshal thumbnails: %w", err)
	}

	v.PublishedAt = v.PublishedAt.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
