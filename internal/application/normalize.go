package application

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

// textPolicy strips all markup from API-provided text fields.
var textPolicy = bluemonday.StrictPolicy()

// NormalizeItem maps a raw search item to a Video. It returns false when the
// item lacks a video ID, a parseable publication time, a title or a
// description.
func NormalizeItem(item model.SearchItem) (model.Video, bool) {
	if item.VideoID == "" || item.PublishedAt == "" || item.Title == "" || item.Description == "" {
		return model.Video{}, false
	}

	publishedAt, err := parsePublishedAt(item.PublishedAt)
	if err != nil {
		return model.Video{}, false
	}

	return model.Video{
		VideoID:      item.VideoID,
		Title:        cleanText(item.Title),
		Description:  cleanText(item.Description),
		PublishedAt:  publishedAt,
		ChannelID:    item.ChannelID,
		ChannelTitle: cleanText(item.ChannelTitle),
		Thumbnails: model.ThumbnailSet{
			Default: withFallbackSize(item.Thumbnails.Default, model.DefaultThumbnailWidth, model.DefaultThumbnailHeight),
			Medium:  withFallbackSize(item.Thumbnails.Medium, model.MediumThumbnailWidth, model.MediumThumbnailHeight),
			High:    withFallbackSize(item.Thumbnails.High, model.HighThumbnailWidth, model.HighThumbnailHeight),
		},
	}, true
}

// NormalizeItems normalizes a batch, returning the kept videos and the number
// of dropped items.
func NormalizeItems(items []model.SearchItem) ([]model.Video, int) {
	videos := make([]model.Video, 0, len(items))
	var dropped int
	for _, item := range items {
		v, ok := NormalizeItem(item)
		if !ok {
			dropped++
			continue
		}
		videos = append(videos, v)
	}
	return videos, dropped
}

func parsePublishedAt(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func withFallbackSize(t *model.Thumbnail, width, height int64) *model.Thumbnail {
	if t == nil {
		return nil
	}
	out := *t
	if out.Width == 0 {
		out.Width = width
	}
	if out.Height == 0 {
		out.Height = height
	}
	return &out
}
