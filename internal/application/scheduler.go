package application

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
)

// MinPollInterval is the shortest allowed interval between cycles. Shorter
// configured intervals are raised to it.
const MinPollInterval = 10 * time.Second

// defaultCycleTimeout bounds a cycle when no timeout is configured.
const defaultCycleTimeout = 2 * time.Minute

// CycleRunner executes one ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (model.CycleReport, error)
}

// Compile-time interface satisfaction check.
var _ CycleRunner = (*IngestService)(nil)

// Scheduler fires the CycleRunner on a fixed interval with at most one cycle
// in flight per process. A tick that arrives while a cycle is running is
// dropped, not queued.
type Scheduler struct {
	runner       CycleRunner
	interval     time.Duration
	cycleTimeout time.Duration

	running atomic.Bool
	wg      sync.WaitGroup

	mu         sync.RWMutex
	stopped    bool
	lastReport *model.CycleReport
	skipped    int64
}

// NewScheduler creates a Scheduler. interval is raised to MinPollInterval if
// shorter; a non-positive cycleTimeout uses a two minute default.
func NewScheduler(runner CycleRunner, interval, cycleTimeout time.Duration) *Scheduler {
	if interval < MinPollInterval {
		slog.Warn("poll interval below minimum, using minimum",
			"configured", interval,
			"minimum", MinPollInterval,
		)
		interval = MinPollInterval
	}
	if cycleTimeout <= 0 {
		cycleTimeout = defaultCycleTimeout
	}
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		cycleTimeout: cycleTimeout,
	}
}

// Interval returns the effective interval between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start runs one cycle immediately, then one per interval, until ctx is
// canceled. It returns once the in-flight cycle, if any, has finished.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("ingest scheduler started", "interval", s.interval)
	s.fire(ctx, "startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			s.wg.Wait()
			slog.Info("ingest scheduler stopped")
			return
		case <-ticker.C:
			s.fire(ctx, "tick")
		}
	}
}

// TriggerNow starts a cycle outside the schedule. It reports false when a
// cycle is already in flight or the scheduler has stopped, in which case
// nothing is started.
func (s *Scheduler) TriggerNow(ctx context.Context) bool {
	return s.fire(ctx, "manual")
}

// Running reports whether a cycle is currently in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastReport returns the report of the most recently finished cycle.
func (s *Scheduler) LastReport() (model.CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return model.CycleReport{}, false
	}
	return *s.lastReport, true
}

// Skipped returns how many triggers were dropped because a cycle was running.
func (s *Scheduler) Skipped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skipped
}

// fire launches a cycle in the background unless one is already running or
// Start has begun shutting down. Cycles are detached from ctx cancellation:
// shutdown does not interrupt a cycle, the per-cycle timeout bounds it instead.
func (s *Scheduler) fire(ctx context.Context, trigger string) bool {
	// wg.Add happens under mu so it cannot race the wg.Wait in Start.
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		slog.Info("ignoring ingest trigger, scheduler stopped", "trigger", trigger)
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.skipped++
		s.mu.Unlock()
		slog.Info("skipping ingest cycle, previous cycle still running", "trigger", trigger)
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		defer func() {
			if v := recover(); v != nil {
				slog.Error("ingest cycle panicked", "panic", v, "trigger", trigger)
			}
		}()

		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
		defer cancel()

		report, _ := s.runner.RunCycle(cycleCtx)

		s.mu.Lock()
		s.lastReport = &report
		s.mu.Unlock()
	}()
	return true
}
