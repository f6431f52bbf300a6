package model

import "time"

// SearchQuery describes one bounded search against the external API.
type SearchQuery struct {
	Text           string
	PublishedAfter time.Time
	MaxResults     int
}

// SearchItem is a raw search result as returned by the external API, before
// normalization. Any field may be empty; PublishedAt is kept as the raw
// RFC 3339 string so that unparseable values can be dropped by the pipeline.
type SearchItem struct {
	VideoID      string
	Title        string
	Description  string
	PublishedAt  string
	ChannelID    string
	ChannelTitle string
	Thumbnails   RawThumbnails
}

// RawThumbnails holds the thumbnail variants as reported by the API. Zero
// dimensions mean the API omitted them.
type RawThumbnails struct {
	Default *Thumbnail
	Medium  *Thumbnail
	High    *Thumbnail
}
