// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// ErrQuotaRejected marks a cycle that ended because the API rejected the
// current key for quota. The underlying driven.APIError is wrapped alongside.
var ErrQuotaRejected = errors.New("api key rejected for quota")

// KeyProvider is the subset of KeyPool used by the ingestion pipeline.
type KeyProvider interface {
	Acquire(ctx context.Context) (string, error)
	Charge(ctx context.Context, cost int64) error
	MarkExhausted(ctx context.Context) error
}

// Compile-time interface satisfaction check.
var _ KeyProvider = (*KeyPool)(nil)

// IngestConfig holds the tunables of one ingestion cycle.
type IngestConfig struct {
	SearchQuery string
	MaxResults  int
	// QueryCost is charged against the active key for every successful query,
	// whatever the number of results.
	QueryCost int64
	// InitialLookback bounds the first query when nothing is stored yet.
	InitialLookback time.Duration
}

// IngestService runs ingestion cycles: acquire a key, query the search API for
// videos newer than the watermark, normalize and upsert them, and advance the
// watermark.
type IngestService struct {
	keys      KeyProvider
	search    driven.SearchClient
	videos    driven.VideoStore
	watermark *Watermark
	cfg       IngestConfig
	now       func() time.Time
}

// NewIngestService creates a new IngestService with all required dependencies.
func NewIngestService(
	keys KeyProvider,
	search driven.SearchClient,
	videos driven.VideoStore,
	watermark *Watermark,
	cfg IngestConfig,
) *IngestService {
	return &IngestService{
		keys:      keys,
		search:    search,
		videos:    videos,
		watermark: watermark,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Watermark returns the tracker used by the service.
func (s *IngestService) Watermark() *Watermark {
	return s.watermark
}

// RunCycle executes one ingestion cycle. Every failure ends the cycle; nothing
// is retried within it. A quota rejection marks the active key exhausted so
// the next cycle acquires a different one. The returned error is also
// recorded in the report.
func (s *IngestService) RunCycle(ctx context.Context) (model.CycleReport, error) {
	report := model.CycleReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		Stage:     model.CycleStageAcquiringCredential,
	}
	logger := slog.With("run_id", report.RunID)

	apiKey, err := s.keys.Acquire(ctx)
	if err != nil {
		return s.finish(logger, report, fmt.Errorf("acquire api key: %w", err))
	}

	report.Stage = model.CycleStageQuerying

	watermark, known, err := s.watermark.Current(ctx)
	if err != nil {
		return s.finish(logger, report, err)
	}
	report.Watermark = watermark

	after := watermark
	if !known {
		after = report.StartedAt.Add(-s.cfg.InitialLookback).UTC()
	}

	items, err := s.search.Search(ctx, apiKey, model.SearchQuery{
		Text:           s.cfg.SearchQuery,
		PublishedAfter: after,
		MaxResults:     s.cfg.MaxResults,
	})
	if err != nil {
		if IsQuotaRejection(err) {
			report.Stage = model.CycleStageHandlingQuotaError
			if markErr := s.keys.MarkExhausted(ctx); markErr != nil {
				logger.Error("mark api key exhausted failed", "error", markErr)
			}
			return s.finish(logger, report, fmt.Errorf("%w: %w", ErrQuotaRejected, err))
		}
		return s.finish(logger, report, fmt.Errorf("search videos: %w", err))
	}

	if err := s.keys.Charge(ctx, s.cfg.QueryCost); err != nil {
		logger.Error("charge api key failed", "cost", s.cfg.QueryCost, "error", err)
	}

	fresh := publishedAfter(items, after)
	report.Fetched = len(fresh)
	if len(fresh) == 0 {
		logger.Info("no new videos found", "returned", len(items))
		return s.finish(logger, report, nil)
	}

	report.Stage = model.CycleStageNormalizingAndPersisting

	videos, dropped := NormalizeItems(fresh)
	report.Dropped = dropped
	if len(videos) > 0 {
		if err := s.videos.UpsertBatch(ctx, videos); err != nil {
			return s.finish(logger, report, fmt.Errorf("upsert videos: %w", err))
		}
	}
	report.Stored = len(videos)

	if newest, ok := newestPublishedAt(fresh); ok {
		s.watermark.Advance(newest)
	}
	report.Watermark, _ = s.watermark.Peek()

	return s.finish(logger, report, nil)
}

// finish stamps and logs the report. Failures are logged here so that callers
// never need to; none of them escape as panics or crash the scheduler.
func (s *IngestService) finish(logger *slog.Logger, report model.CycleReport, err error) (model.CycleReport, error) {
	report.FinishedAt = s.now()
	report.Err = err
	duration := report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)

	switch {
	case err == nil:
		report.Stage = model.CycleStageIdle
		logger.Info("ingest cycle complete",
			"fetched", report.Fetched,
			"stored", report.Stored,
			"dropped", report.Dropped,
			"watermark", report.Watermark,
			"duration", duration,
		)
	case errors.Is(err, ErrNoCredentialsConfigured),
		errors.Is(err, ErrAllCredentialsExhausted),
		errors.Is(err, ErrQuotaRejected):
		logger.Warn("ingest cycle skipped", "stage", report.Stage, "error", err, "duration", duration)
	default:
		logger.Error("ingest cycle failed", "stage", report.Stage, "error", err, "duration", duration)
	}

	return report, err
}

// IsQuotaRejection reports whether err is the API refusing a key for quota:
// a 403 or 429 status, or a message or reason mentioning quota.
func IsQuotaRejection(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *driven.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return mentionsQuota(apiErr.Message) || mentionsQuota(apiErr.Reason)
	}
	return mentionsQuota(err.Error())
}

func mentionsQuota(s string) bool {
	return strings.Contains(strings.ToLower(s), "quota")
}

// publishedAfter keeps items published strictly after bound. Items whose
// timestamp cannot be parsed are kept so that normalization counts them as
// dropped.
func publishedAfter(items []model.SearchItem, bound time.Time) []model.SearchItem {
	fresh := make([]model.SearchItem, 0, len(items))
	for _, item := range items {
		if t, err := parsePublishedAt(item.PublishedAt); err == nil && !t.After(bound) {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

func newestPublishedAt(items []model.SearchItem) (time.Time, bool) {
	var newest time.Time
	var found bool
	for _, item := range items {
		t, err := parsePublishedAt(item.PublishedAt)
		if err != nil {
			continue
		}
		if !found || t.After(newest) {
			newest = t
			found = true
		}
	}
	return newest, found
}
