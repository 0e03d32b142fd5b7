package retry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

/* Scheduler drains the retry queue on a cancellable periodic timer.
 * Stop joins the worker goroutine, so shutdown never leaves a tick in flight.
 */

// SchedulerConfig tunes the background processing loop
type SchedulerConfig struct {
	// PollInterval is the delay between queue sweeps
	PollInterval time.Duration
	// BatchSize caps how many due entries one sweep claims
	BatchSize int
}

// DefaultSchedulerConfig returns production defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    25,
	}
}

type Scheduler struct {
	manager *Manager
	handler Handler
	config  SchedulerConfig
	logger  zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewScheduler creates a scheduler that feeds due entries to handler
func NewScheduler(manager *Manager, handler Handler, config SchedulerConfig, logger zerolog.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &Scheduler{
		manager: manager,
		handler: handler,
		config:  config,
		logger:  logger.With().Str("component", "retry-scheduler").Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background worker
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started = true
		s.logger.Info().
			Dur("poll_interval", s.config.PollInterval).
			Int("batch_size", s.config.BatchSize).
			Msg("Starting retry scheduler")

		go s.run(ctx)
	})
}

// Stop halts the worker and waits for it to exit.
// Safe to call even if Start was never invoked.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started {
		<-s.done
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			batch, err := s.manager.ProcessPending(ctx, s.handler, s.config.BatchSize)
			if err != nil {
				s.logger.Error().Err(err).Msg("Retry sweep failed")
				continue
			}
			if batch.Processed > 0 {
				s.logger.Debug().
					Int("processed", batch.Processed).
					Int("succeeded", batch.Succeeded).
					Int("failed", batch.Failed).
					Int("dead_lettered", batch.DeadLettered).
					Msg("Retry sweep finished")
			}
		}
	}
}
