package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"conti/internal/metrics"
)

// SchedulerConfig holds configuration for the recurring scheduler
type SchedulerConfig struct {
	// Interval is how often due definitions are processed (default: 1h)
	Interval time.Duration

	// RunOnStart processes immediately instead of waiting one interval (default: true)
	RunOnStart bool
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// DueProcessor is satisfied by Materializer.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs a DueProcessor on a ticker and on demand.
type Scheduler struct {
	processor DueProcessor
	metrics   *metrics.Metrics
	config    SchedulerConfig
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	trigger chan struct{}
}

func NewScheduler(processor DueProcessor, m *metrics.Metrics, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		processor: processor,
		metrics:   m,
		config:    config,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger asks the loop to run a pass now. Extra triggers while a pass is
// pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.RunOnce(ctx)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass and reports how many expenses were created.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	n, err := s.processor.ProcessDue(ctx, s.now())
	s.metrics.WorkerRun(err)
	if err != nil {
		slog.ErrorContext(ctx, "Recurring pass failed", "error", err, "duration", time.Since(start))
		return n
	}
	if n > 0 {
		slog.InfoContext(ctx, "Recurring pass complete", "created", n, "duration", time.Since(start))
	}
	return n
}
