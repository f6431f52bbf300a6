package application

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Validation errors returned by VideoService.
var (
	// ErrInvalidPagination indicates page < 1, a page whose offset overflows,
	// or limit outside [1, MaxPageLimit].
	ErrInvalidPagination = errors.New("invalid pagination parameters: page must be between 1 and the maximum offset and limit must be between 1 and 100")

	// ErrEmptyQuery indicates a search without query text.
	ErrEmptyQuery = errors.New("search query is required")
)

// MaxPageLimit is the largest page size accepted by list and search.
const MaxPageLimit = 100

// VideoService serves paginated reads over stored videos.
type VideoService struct {
	store driven.VideoStore
}

// NewVideoService creates a new VideoService.
func NewVideoService(store driven.VideoStore) *VideoService {
	return &VideoService{store: store}
}

// ListVideos returns one page of stored videos, newest first.
func (s *VideoService) ListVideos(ctx context.Context, page, limit int) (model.VideoPage, error) {
	if err := validatePage(page, limit); err != nil {
		return model.VideoPage{}, err
	}

	videos, total, err := s.store.ListPage(ctx, (page-1)*limit, limit)
	if err != nil {
		return model.VideoPage{}, err
	}
	return newVideoPage(videos, total, page, limit), nil
}

// SearchVideos returns one page of videos whose title or description contains
// query, newest first.
func (s *VideoService) SearchVideos(ctx context.Context, query string, page, limit int) (model.VideoPage, error) {
	if err := validatePage(page, limit); err != nil {
		return model.VideoPage{}, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return model.VideoPage{}, ErrEmptyQuery
	}

	videos, total, err := s.store.SearchText(ctx, query, (page-1)*limit, limit)
	if err != nil {
		return model.VideoPage{}, err
	}
	return newVideoPage(videos, total, page, limit), nil
}

func validatePage(page, limit int) error {
	if page < 1 || limit < 1 || limit > MaxPageLimit {
		return ErrInvalidPagination
	}
	// (page-1)*limit must fit in an int.
	if page > math.MaxInt/limit {
		return ErrInvalidPagination
	}
	return nil
}

func newVideoPage(videos []model.Video, total, page, limit int) model.VideoPage {
	if videos == nil {
		videos = []model.Video{}
	}
	return model.VideoPage{
		Meta: model.PageMeta{
			Page:        page,
			Limit:       limit,
			TotalPages:  (total + limit - 1) / limit,
			TotalVideos: total,
		},
		Data: videos,
	}
}
