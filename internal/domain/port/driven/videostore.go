package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

// VideoStore defines the driven port for video persistence.
type VideoStore interface {
	// LatestPublishedAt returns the maximum PublishedAt over stored videos.
	// found is false when the store is empty.
	LatestPublishedAt(ctx context.Context) (latest time.Time, found bool, err error)

	// UpsertBatch inserts or replaces videos keyed by VideoID. Re-upserting an
	// existing VideoID overwrites its fields and never creates a second row.
	UpsertBatch(ctx context.Context, videos []model.Video) error

	// ListPage returns videos ordered by PublishedAt descending together with
	// the total number of stored videos.
	ListPage(ctx context.Context, offset, limit int) ([]model.Video, int, error)

	// SearchText returns videos whose title or description contains pattern
	// (case-insensitive), ordered by PublishedAt descending, together with the
	// total number of matches.
	SearchText(ctx context.Context, pattern string, offset, limit int) ([]model.Video, int, error)
}
