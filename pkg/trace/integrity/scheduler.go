package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs integrity verification on a cron schedule, e.g. "0 3 * * *"
// for daily at 3 AM. An empty schedule disables it.
type Scheduler struct {
	reporter *Reporter
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	logger   *slog.Logger
}

// NewScheduler creates a scheduler over the given reporter.
func NewScheduler(reporter *Reporter, schedule string) *Scheduler {
	return &Scheduler{
		reporter: reporter,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "trace.integrity.scheduler"),
	}
}

// Start begins scheduled verification. It returns immediately; the context
// stops the scheduler when cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("integrity schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runVerification(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule integrity verification: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("integrity scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runVerification(ctx context.Context) {
	if _, err := s.reporter.Verify(ctx); err != nil {
		s.logger.Error("scheduled integrity verification failed", "error", err)
	}
}

// Stop halts the scheduler. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("integrity scheduler stopped")
}
