package model

// PageMeta describes a page of videos returned by list and search queries.
type PageMeta struct {
	Page        int
	Limit       int
	TotalPages  int
	TotalVideos int
}

// VideoPage is one page of videos sorted by publication time, newest first.
type VideoPage struct {
	Meta PageMeta
	Data []Video
}
