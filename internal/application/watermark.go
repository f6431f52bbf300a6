package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Watermark caches the publication time of the newest ingested video. It is
// loaded from the VideoStore on first use and only ever moves forward.
type Watermark struct {
	store driven.VideoStore

	mu     sync.RWMutex
	latest time.Time
	known  bool
}

// NewWatermark creates a Watermark backed by store.
func NewWatermark(store driven.VideoStore) *Watermark {
	return &Watermark{store: store}
}

// Current returns the cached watermark, asking the store for the newest
// stored publication time while the cache is empty. ok is false when the
// store holds no videos yet.
func (w *Watermark) Current(ctx context.Context) (time.Time, bool, error) {
	if latest, ok := w.Peek(); ok {
		return latest, true, nil
	}

	latest, found, err := w.store.LatestPublishedAt(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load watermark: %w", err)
	}
	if !found {
		return time.Time{}, false, nil
	}

	w.Advance(latest)
	latest, _ = w.Peek()
	return latest, true, nil
}

// Peek returns the cached watermark without touching the store.
func (w *Watermark) Peek() (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.known
}

// Advance moves the watermark to candidate if candidate is strictly later
// than the current value or no value is cached yet. It reports whether the
// watermark changed.
func (w *Watermark) Advance(candidate time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.known && !candidate.After(w.latest) {
		return false
	}
	w.latest = candidate
	w.known = true
	return true
}
