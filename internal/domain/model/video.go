package model

import "time"

// Video represents a search result persisted by the ingestion pipeline.
// VideoID is the external identifier and is unique across stored videos.
type Video struct {
	ID           int64
	VideoID      string
	Title        string
	Description  string
	PublishedAt  time.Time
	ChannelID    string
	ChannelTitle string
	Thumbnails   ThumbnailSet
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Thumbnail is a single preview image variant.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int64  `json:"width"`
	Height int64  `json:"height"`
}

// ThumbnailSet holds the optional default, medium and high variants.
// A nil variant means the API did not return it.
type ThumbnailSet struct {
	Default *Thumbnail `json:"default,omitempty"`
	Medium  *Thumbnail `json:"medium,omitempty"`
	High    *Thumbnail `json:"high,omitempty"`
}

// Fallback pixel sizes applied when the API omits a variant's dimensions.
const (
	DefaultThumbnailWidth  = 120
	DefaultThumbnailHeight = 90
	MediumThumbnailWidth   = 320
	MediumThumbnailHeight  = 180
	HighThumbnailWidth     = 480
	HighThumbnailHeight    = 360
)
