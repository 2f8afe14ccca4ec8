// Package scheduler triggers automatic refreshes on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lubesync/internal/interfaces"
)

// Service implements SchedulerService on top of cron. The coordinator
// serializes triggers into at most one in-flight cycle, so overlapping
// ticks attach rather than duplicate work.
type Service struct {
	coordinator interfaces.Coordinator
	cron        *cron.Cron
	logger      arbor.ILogger
	running     bool
}

// NewService creates a new scheduler service.
func NewService(coordinator interfaces.Coordinator, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		coordinator: coordinator,
		cron:        cron.New(),
		logger:      logger,
	}
}

// Start begins triggering automatic refreshes every interval.
func (s *Service) Start(interval time.Duration) error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.coordinator.TriggerAuto(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("interval", interval.String()).
		Msg("Refresh scheduler started")

	return nil
}

// Stop halts the scheduler, waiting for a running trigger to return.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Refresh scheduler stopped")
	return nil
}
