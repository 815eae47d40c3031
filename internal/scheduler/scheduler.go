package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ProbeTimeout bounds a single health probe
const ProbeTimeout = 10 * time.Second

// Pinger is the inference runtime being probed
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

// Scheduler runs the periodic inference runtime health probe
type Scheduler struct {
	pinger   Pinger
	schedule string
	failed   atomic.Bool
	logger   zerolog.Logger
}

// NewScheduler creates a new scheduler. An empty schedule disables probing.
func NewScheduler(pinger Pinger, schedule string, logger zerolog.Logger) (*Scheduler, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid health schedule %q: %w", schedule, err)
		}
	}

	return &Scheduler{
		pinger:   pinger,
		schedule: schedule,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start runs the probe on schedule until ctx is done, then waits for a
// running probe to finish
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		s.logger.Info().Msg("Health probe disabled")
		<-ctx.Done()
		return nil
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(s.schedule, func() {
		_ = s.RunHealthCheck(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule health probe: %w", err)
	}

	c.Start()

	entries := c.Entries()
	s.logger.Info().
		Str("schedule", s.schedule).
		Time("next_run", entries[0].Next).
		Str("backend", s.pinger.Name()).
		Msg("Scheduler started and running")

	// Wait for context cancellation
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// RunHealthCheck probes the inference runtime once
func (s *Scheduler) RunHealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	startTime := time.Now()
	err := s.pinger.Ping(ctx)
	latency := time.Since(startTime)

	s.failed.Store(err != nil)

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("backend", s.pinger.Name()).
			Dur("latency", latency).
			Msg("Inference runtime unhealthy")
		return err
	}

	s.logger.Info().
		Str("backend", s.pinger.Name()).
		Dur("latency", latency).
		Msg("Inference runtime healthy")
	return nil
}

// Healthy reports false only when the last probe failed
func (s *Scheduler) Healthy() bool {
	return !s.failed.Load()
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
