package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

const (
	successMessage = "Successfully completed the request"
	failureMessage = "Something went wrong"
)

// envelope wraps every API response body.
type envelope struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Data     any    `json:"data"`
	Error    any    `json:"error"`
	Datetime string `json:"datetime"`
}

// emptyObject serializes as {} for the unused half of the envelope.
type emptyObject struct{}

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Something went wrong","data":{},"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeSuccess writes data inside a success envelope.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{
		Success:  true,
		Message:  successMessage,
		Data:     data,
		Error:    emptyObject{},
		Datetime: now(),
	})
}

// writeError writes message inside a failure envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{
		Success:  false,
		Message:  failureMessage,
		Data:     emptyObject{},
		Error:    message,
		Datetime: now(),
	})
}

func now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ThumbnailResponse is the JSON representation of one thumbnail variant.
type ThumbnailResponse struct {
	URL    string `json:"url"`
	Width  int64  `json:"width"`
	Height int64  `json:"height"`
}

// ThumbnailsResponse holds the available thumbnail variants.
type ThumbnailsResponse struct {
	Default *ThumbnailResponse `json:"default,omitempty"`
	Medium  *ThumbnailResponse `json:"medium,omitempty"`
	High    *ThumbnailResponse `json:"high,omitempty"`
}

// VideoResponse is the JSON representation of a stored video.
type VideoResponse struct {
	ID           int64              `json:"id"`
	VideoID      string             `json:"videoId"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	PublishedAt  string             `json:"publishedAt"`
	Thumbnails   ThumbnailsResponse `json:"thumbnails"`
	ChannelID    string             `json:"channelId"`
	ChannelTitle string             `json:"channelTitle"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt"`
}

// PageMetaResponse describes a page of results.
type PageMetaResponse struct {
	Page        int `json:"page"`
	Limit       int `json:"limit"`
	TotalPages  int `json:"totalPages"`
	TotalVideos int `json:"totalVideos"`
}

// PageResponse is one page of videos with its metadata.
type PageResponse struct {
	Meta PageMetaResponse `json:"meta"`
	Data []VideoResponse  `json:"data"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// KeyStatusResponse reports API key availability.
type KeyStatusResponse struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Exhausted int `json:"exhausted"`
}

// KeyRecordResponse is the JSON representation of one API key. The secret
// is always masked.
type KeyRecordResponse struct {
	Index     int    `json:"index"`
	Key       string `json:"key"`
	QuotaUsed int64  `json:"quotaUsed"`
	LastUsed  string `json:"lastUsed"`
	Exhausted bool   `json:"exhausted"`
}

// KeyListResponse lists key records and the rotation index.
type KeyListResponse struct {
	CurrentIndex int                 `json:"currentIndex"`
	Keys         []KeyRecordResponse `json:"keys"`
}

// CycleResponse is the JSON representation of a finished ingest cycle.
type CycleResponse struct {
	RunID      string `json:"runId"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
	Stage      string `json:"stage"`
	Fetched    int    `json:"fetched"`
	Stored     int    `json:"stored"`
	Dropped    int    `json:"dropped"`
	Error      string `json:"error,omitempty"`
}

// IngestStatusResponse reports scheduler state.
type IngestStatusResponse struct {
	Running   bool           `json:"running"`
	Interval  string         `json:"interval"`
	Skipped   int64          `json:"skipped"`
	Watermark string         `json:"watermark,omitempty"`
	LastCycle *CycleResponse `json:"lastCycle"`
}

// RefreshResponse acknowledges a manual ingest trigger.
type RefreshResponse struct {
	Status string `json:"status"`
}

func toPageResponse(p model.VideoPage) PageResponse {
	data := make([]VideoResponse, 0, len(p.Data))
	for _, v := range p.Data {
		data = append(data, toVideoResponse(v))
	}
	return PageResponse{
		Meta: PageMetaResponse{
			Page:        p.Meta.Page,
			Limit:       p.Meta.Limit,
			TotalPages:  p.Meta.TotalPages,
			TotalVideos: p.Meta.TotalVideos,
		},
		Data: data,
	}
}

func toVideoResponse(v model.Video) VideoResponse {
	return VideoResponse{
		ID:          v.ID,
		VideoID:     v.VideoID,
		Title:       v.Title,
		Description: v.Description,
		PublishedAt: formatTime(v.PublishedAt),
		Thumbnails: ThumbnailsResponse{
			Default: toThumbnailResponse(v.Thumbnails.Default),
			Medium:  toThumbnailResponse(v.Thumbnails.Medium),
			High:    toThumbnailResponse(v.Thumbnails.High),
		},
		ChannelID:    v.ChannelID,
		ChannelTitle: v.ChannelTitle,
		CreatedAt:    formatTime(v.CreatedAt),
		UpdatedAt:    formatTime(v.UpdatedAt),
	}
}

func toThumbnailResponse(t *model.Thumbnail) *ThumbnailResponse {
	if t == nil {
		return nil
	}
	return &ThumbnailResponse{URL: t.URL, Width: t.Width, Height: t.Height}
}

func toKeyRecordResponse(rec model.KeyRecord) KeyRecordResponse {
	return KeyRecordResponse{
		Index:     rec.Index,
		Key:       model.MaskSecret(rec.Secret),
		QuotaUsed: rec.QuotaUsed,
		LastUsed:  formatTime(rec.LastUsed),
		Exhausted: rec.IsExhausted,
	}
}

func toCycleResponse(r model.CycleReport) CycleResponse {
	resp := CycleResponse{
		RunID:      r.RunID,
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		Stage:      string(r.Stage),
		Fetched:    r.Fetched,
		Stored:     r.Stored,
		Dropped:    r.Dropped,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
