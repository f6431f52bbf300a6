package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/application"
	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

// VideoReader serves paginated video reads.
type VideoReader interface {
	ListVideos(ctx context.Context, page, limit int) (model.VideoPage, error)
	SearchVideos(ctx context.Context, query string, page, limit int) (model.VideoPage, error)
}

// KeyStatusReader reports credential pool state.
type KeyStatusReader interface {
	Status(ctx context.Context) (model.PoolStatus, error)
	Snapshot(ctx context.Context) ([]model.KeyRecord, int, error)
}

// IngestController exposes the scheduler to the API.
type IngestController interface {
	TriggerNow(ctx context.Context) bool
	Running() bool
	LastReport() (model.CycleReport, bool)
	Skipped() int64
	Interval() time.Duration
}

// WatermarkReader reports the in-memory watermark without touching storage.
type WatermarkReader interface {
	Peek() (time.Time, bool)
}

// Compile-time interface satisfaction checks.
var (
	_ VideoReader      = (*application.VideoService)(nil)
	_ KeyStatusReader  = (*application.KeyPool)(nil)
	_ IngestController = (*application.Scheduler)(nil)
	_ WatermarkReader  = (*application.Watermark)(nil)
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	videos    VideoReader
	keys      KeyStatusReader
	ingest    IngestController
	watermark WatermarkReader
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	videos VideoReader,
	keys KeyStatusReader,
	ingest IngestController,
	watermark WatermarkReader,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		videos:    videos,
		keys:      keys,
		ingest:    ingest,
		watermark: watermark,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, CORS, rate limiting and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger, limit RateLimit) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/videos", h.ListVideos)
	mux.HandleFunc("GET /api/videos/search", h.SearchVideos)
	mux.HandleFunc("GET /api/v1/check", h.Check)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/keys", h.ListKeys)
	mux.HandleFunc("GET /api/v1/keys/status", h.KeyStatus)
	mux.HandleFunc("GET /api/v1/ingest/status", h.IngestStatus)
	mux.HandleFunc("POST /api/v1/ingest/refresh", h.Refresh)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = rateLimitMiddleware(newClientLimiter(limit), wrapped)
	wrapped = corsMiddleware(wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListVideos returns one page of stored videos, newest first.
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePagination(w, r)
	if !ok {
		return
	}

	result, err := h.videos.ListVideos(r.Context(), page, limit)
	if err != nil {
		h.writeServiceError(w, "failed to list videos", err)
		return
	}

	writeSuccess(w, http.StatusOK, toPageResponse(result))
}

// SearchVideos returns one page of videos matching the q parameter.
func (h *Handler) SearchVideos(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePagination(w, r)
	if !ok {
		return
	}

	result, err := h.videos.SearchVideos(r.Context(), r.URL.Query().Get("q"), page, limit)
	if err != nil {
		h.writeServiceError(w, "failed to search videos", err)
		return
	}

	writeSuccess(w, http.StatusOK, toPageResponse(result))
}

// Check is the versioned liveness route.
func (h *Handler) Check(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "v1 route is live")
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// KeyStatus returns how many API keys are available and exhausted.
func (h *Handler) KeyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.keys.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to read key status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, http.StatusOK, KeyStatusResponse{
		Total:     status.Total,
		Available: status.Available,
		Exhausted: status.Exhausted,
	})
}

// ListKeys returns every key record with its secret masked.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	records, current, err := h.keys.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read key records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := KeyListResponse{CurrentIndex: current, Keys: make([]KeyRecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Keys = append(resp.Keys, toKeyRecordResponse(rec))
	}

	writeSuccess(w, http.StatusOK, resp)
}

// IngestStatus returns scheduler state, the watermark and the last cycle report.
func (h *Handler) IngestStatus(w http.ResponseWriter, _ *http.Request) {
	resp := IngestStatusResponse{
		Running:  h.ingest.Running(),
		Interval: h.ingest.Interval().String(),
		Skipped:  h.ingest.Skipped(),
	}
	if wm, ok := h.watermark.Peek(); ok {
		resp.Watermark = wm.UTC().Format(time.RFC3339Nano)
	}
	if report, ok := h.ingest.LastReport(); ok {
		cycle := toCycleResponse(report)
		resp.LastCycle = &cycle
	}

	writeSuccess(w, http.StatusOK, resp)
}

// Refresh starts an ingest cycle immediately. It responds 409 when a cycle is
// already in flight.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.ingest.TriggerNow(r.Context()) {
		writeError(w, http.StatusConflict, "an ingest cycle is already running")
		return
	}

	writeSuccess(w, http.StatusAccepted, RefreshResponse{Status: "started"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, application.ErrInvalidPagination) || errors.Is(err, application.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// parsePagination reads page and limit, applying defaults when absent. It
// writes a 400 response and returns false when either is not an integer.
func parsePagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), defaultPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, application.ErrInvalidPagination.Error())
		return 0, 0, false
	}

	limit, err := intParam(q.Get("limit"), defaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, application.ErrInvalidPagination.Error())
		return 0, 0, false
	}

	return page, limit, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
