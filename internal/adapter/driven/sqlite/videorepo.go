package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VideoStore = (*VideoRepo)(nil)

// timeLayout is fixed-width so that published_at sorts correctly as TEXT.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const videoColumns = `id, video_id, title, description, published_at, thumbnails,
		       channel_id, channel_title, created_at, updated_at`

// VideoRepo is the SQLite implementation of the VideoStore port interface.
type VideoRepo struct {
	db  *DB
	now func() time.Time
}

// NewVideoRepo creates a new VideoRepo backed by the given DB.
func NewVideoRepo(db *DB) *VideoRepo {
	return &VideoRepo{db: db, now: time.Now}
}

// UpsertBatch inserts or replaces videos keyed by video_id inside a single
// transaction. created_at is preserved on conflict. Thumbnails are serialized
// as a JSON object in the TEXT column.
func (r *VideoRepo) UpsertBatch(ctx context.Context, videos []model.Video) error {
	if len(videos) == 0 {
		return nil
	}

	const query = `
		INSERT INTO videos (
			video_id, title, description, published_at, thumbnails,
			channel_id, channel_title, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			published_at = excluded.published_at,
			thumbnails = excluded.thumbnails,
			channel_id = excluded.channel_id,
			channel_title = excluded.channel_title,
			updated_at = excluded.updated_at
	`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	stamp := formatTime(r.now())
	for _, v := range videos {
		thumbs, err := json.Marshal(v.Thumbnails)
		if err != nil {
			return fmt.Errorf("marshal thumbnails for %s: %w", v.VideoID, err)
		}

		_, err = stmt.ExecContext(ctx,
			v.VideoID, v.Title, v.Description, formatTime(v.PublishedAt), string(thumbs),
			v.ChannelID, v.ChannelTitle, stamp, stamp,
		)
		if err != nil {
			return fmt.Errorf("upsert video %s: %w", v.VideoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// LatestPublishedAt returns the newest published_at across stored videos.
func (r *VideoRepo) LatestPublishedAt(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullString
	err := r.db.Reader.QueryRowContext(ctx, `SELECT MAX(published_at) FROM videos`).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query latest published_at: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}

	t, err := parseTime(latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse latest published_at: %w", err)
	}
	return t, true, nil
}

// ListPage returns one page of videos ordered by published_at descending.
func (r *VideoRepo) ListPage(ctx context.Context, offset, limit int) ([]model.Video, int, error) {
	var total int
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	query := `SELECT ` + videoColumns + `
		FROM videos
		ORDER BY published_at DESC, id DESC
		LIMIT ? OFFSET ?`

	videos, err := r.queryVideos(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// SearchText returns one page of videos whose title or description contains
// pattern. LIKE is case-insensitive for ASCII in SQLite; wildcard characters
// in pattern are matched literally.
func (r *VideoRepo) SearchText(ctx context.Context, pattern string, offset, limit int) ([]model.Video, int, error) {
	like := "%" + escapeLike(pattern) + "%"
	const where = `WHERE title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'`

	var total int
	err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos `+where, like, like).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count matching videos: %w", err)
	}

	query := `SELECT ` + videoColumns + `
		FROM videos ` + where + `
		ORDER BY published_at DESC, id DESC
		LIMIT ? OFFSET ?`

	videos, err := r.queryVideos(ctx, query, like, like, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

func (r *VideoRepo) queryVideos(ctx context.Context, query string, args ...any) ([]model.Video, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(s scanner) (*model.Video, error) {
	var v model.Video
	var publishedAt, thumbs, createdAt, updatedAt string

	err := s.Scan(
		&v.ID, &v.VideoID, &v.Title, &v.Description, &publishedAt, &thumbs,
		&v.ChannelID, &v.ChannelTitle, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if v.PublishedAt, err = parseTime(publishedAt); err != nil {
		return nil, fmt.Errorf("parse published_at: %w", err)
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(thumbs), &v.Thumbnails); err != nil {
		return nil, fmt.Errorf("unmarshal thumbnails: %w", err)
	}

	return &v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
