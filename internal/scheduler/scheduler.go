package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

// Runner is the part of weather.Service the scheduler drives.
type Runner interface {
	FetchAndStore(ctx context.Context, loc weather.Location) error
	Reduce(ctx context.Context, loc weather.Location, maxDistance, limit int) ([]weather.WeightRecord, error)
	Produce(ctx context.Context, loc weather.Location, maxDistance, limit int) ([]weather.ProducedRecord, error)
}

// Config controls what runs and when.
type Config struct {
	Locations []weather.Location
	// FetchInterval between forecast fetches.
	FetchInterval time.Duration
	// ReduceAt is the UTC time of day ("15:04") of the daily model run.
	ReduceAt    string
	MaxDistance int
	Limit       int
}

// Scheduler periodically fetches weather data for configured locations and
// retrains the ensemble once a day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cfg       Config
	log       zerolog.Logger

	fetchTimeout time.Duration
	modelTimeout time.Duration
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner, log zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:    s,
		runner:       runner,
		cfg:          cfg,
		log:          log,
		fetchTimeout: 30 * time.Second,
		modelTimeout: 10 * time.Minute,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.cfg.Locations) == 0 {
		s.log.Info().Msg("no locations configured; nothing to schedule")
		return nil
	}

	interval := s.cfg.FetchInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if _, err := s.scheduler.Every(interval).Do(s.fetchAll); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At(s.cfg.ReduceAt).Do(s.modelAll); err != nil {
		return err
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

func (s *Scheduler) fetchAll() {
	s.log.Debug().Msg("running weather fetch job")
	s.forEachLocation(s.fetchTimeout, func(ctx context.Context, loc weather.Location) {
		if err := s.runner.FetchAndStore(ctx, loc); err != nil {
			s.log.Warn().Err(err).Str("location", loc.Key()).Msg("fetch failed")
		}
	})
	s.log.Debug().Msg("completed weather fetch job")
}

// modelAll learns fresh weights and then fuses the latest forecasts with them.
func (s *Scheduler) modelAll() {
	s.log.Info().Msg("running model job")
	s.forEachLocation(s.modelTimeout, func(ctx context.Context, loc weather.Location) {
		log := s.log.With().Str("location", loc.Key()).Logger()
		if _, err := s.runner.Reduce(ctx, loc, s.cfg.MaxDistance, s.cfg.Limit); err != nil {
			log.Warn().Err(err).Msg("reduce failed")
		}
		if _, err := s.runner.Produce(ctx, loc, s.cfg.MaxDistance, s.cfg.Limit); err != nil {
			log.Warn().Err(err).Msg("produce failed")
		}
	})
}

func (s *Scheduler) forEachLocation(timeout time.Duration, fn func(ctx context.Context, loc weather.Location)) {
	var g errgroup.Group
	for _, loc := range s.cfg.Locations {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			fn(ctx, loc)
			return nil
		})
	}
	_ = g.Wait()
}
