package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

// setupTestRepo connects to TUBEFEED_TEST_DATABASE_URL and truncates the
// videos table. The test is skipped when the variable is unset.
func setupTestRepo(t *testing.T) *VideoRepo {
	t.Helper()

	dsn := os.Getenv("TUBEFEED_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TUBEFEED_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	repo, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	_, err = repo.pool.Exec(ctx, `TRUNCATE videos RESTART IDENTITY`)
	require.NoError(t, err)
	return repo
}

var testBase = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func makeVideo(videoID, title string, publishedAt time.Time) model.Video {
	return model.Video{
		VideoID:     videoID,
		Title:       title,
		Description: "Full match replay",
		PublishedAt: publishedAt,
		ChannelID:   "UC123",
		Thumbnails: model.ThumbnailSet{
			High: &model.Thumbnail{URL: "https://i.ytimg.com/vi/" + videoID + "/hq.jpg", Width: 480, Height: 360},
		},
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\x`, escapeLike(`c:\x`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestVideoRepo_UpsertAndList(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	videos := make([]model.Video, 0, 25)
	for i := 0; i < 25; i++ {
		videos = append(videos, makeVideo(fmt.Sprintf("vid%02d", i), fmt.Sprintf("Round %02d", i), testBase.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, repo.UpsertBatch(ctx, videos))
	require.NoError(t, repo.UpsertBatch(ctx, videos[:3]))

	page, total, err := repo.ListPage(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, page, 10)
	assert.Equal(t, "vid24", page[0].VideoID)
	require.NotNil(t, page[0].Thumbnails.High)
	assert.Equal(t, int64(480), page[0].Thumbnails.High.Width)

	latest, found, err := repo.LatestPublishedAt(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, testBase.Add(24*time.Minute).Equal(latest))
}

func TestVideoRepo_LatestPublishedAt_Empty(t *testing.T) {
	repo := setupTestRepo(t)

	_, found, err := repo.LatestPublishedAt(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVideoRepo_UpsertOverwrites(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertBatch(ctx, []model.Video{makeVideo("abc", "old", testBase)}))
	require.NoError(t, repo.UpsertBatch(ctx, []model.Video{makeVideo("abc", "new", testBase)}))

	got, err := repo.getByVideoID(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Title)

	missing, err := repo.getByVideoID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestVideoRepo_SearchText(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	inDesc := makeVideo("v2", "Weekend roundup", testBase.Add(time.Minute))
	inDesc.Description = "Includes the DERBY goals"
	require.NoError(t, repo.UpsertBatch(ctx, []model.Video{
		makeVideo("v1", "City v United derby", testBase),
		inDesc,
		makeVideo("v3", "100% effort", testBase),
	}))

	got, total, err := repo.SearchText(ctx, "Derby", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].VideoID)

	_, total, err = repo.SearchText(ctx, "0%", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// getByVideoID loads one stored video. Returns nil, nil if it does not exist.
func (r *VideoRepo) getByVideoID(ctx context.Context, videoID string) (*model.Video, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, videoID)
	v, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}
	return v, nil
}
