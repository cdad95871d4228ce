package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-dashboard/internal/metrics"
)

// HealthProber probes the remote backend.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Sweeper evicts idle sessions.
type Sweeper interface {
	Sweep() int
}

// Scheduler periodically probes backend health and evicts idle sessions.
type Scheduler struct {
	scheduler      *gocron.Scheduler
	prober         HealthProber
	sweeper        Sweeper
	healthInterval time.Duration
	sweepInterval  time.Duration
	metrics        metrics.Recorder
	log            zerolog.Logger

	healthy atomic.Bool
	checked atomic.Bool
}

// New creates a new Scheduler. Non-positive intervals fall back to 5s for the
// health probe and 1m for the sweep.
func New(prober HealthProber, sweeper Sweeper, healthInterval, sweepInterval time.Duration, rec metrics.Recorder, log zerolog.Logger) *Scheduler {
	if healthInterval <= 0 {
		healthInterval = 5 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:      s,
		prober:         prober,
		sweeper:        sweeper,
		healthInterval: healthInterval,
		sweepInterval:  sweepInterval,
		metrics:        rec,
		log:            log.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler. Both
// jobs run once immediately.
func (s *Scheduler) Start() error {
	if s.prober != nil {
		if _, err := s.scheduler.Every(s.healthInterval).Do(s.ProbeHealth); err != nil {
			return err
		}
	}
	if s.sweeper != nil {
		if _, err := s.scheduler.Every(s.sweepInterval).Do(s.Sweep); err != nil {
			return err
		}
	}
	if len(s.scheduler.Jobs()) == 0 {
		s.log.Info().Msg("nothing to schedule")
		return nil
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// ProbeHealth runs one health probe and records the result.
func (s *Scheduler) ProbeHealth() {
	err := s.prober.Health(context.Background())
	up := err == nil

	if prev := s.healthy.Swap(up); prev != up || !s.checked.Load() {
		if up {
			s.log.Info().Msg("backend is healthy")
		} else {
			s.log.Warn().Err(err).Msg("backend is unavailable")
		}
	}
	s.checked.Store(true)
	s.metrics.SetBackendUp(up)
}

// Sweep runs one idle-session sweep.
func (s *Scheduler) Sweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		s.log.Debug().Int("evicted", n).Msg("session sweep completed")
	}
}

// BackendHealthy reports the result of the last probe. Before the first probe
// it reports false.
func (s *Scheduler) BackendHealthy() bool {
	return s.checked.Load() && s.healthy.Load()
}
