package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/temperature-display/internal/weather"
)

// Refresher refetches a location and replaces its cache entry.
type Refresher interface {
	Refresh(ctx context.Context, lat, lon float64, units weather.Units) (weather.Result, error)
}

// Scheduler periodically refreshes the cache for configured locations so
// popular queries keep hitting fresh entries.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	locations []weather.Location
	units     weather.Units
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
}

// New creates a new Scheduler.
func New(locations []weather.Location, units weather.Units, interval time.Duration, refresher Refresher, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 4 * time.Minute
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		locations: locations,
		units:     units,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules the warm job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info().Msg("no warm locations configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce refreshes every configured location concurrently and returns the
// number of failures.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.logger.Debug().Int("locations", len(s.locations)).Msg("running cache warm job")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res, err := s.refresher.Refresh(ctx, loc.Lat, loc.Lon, s.units)
			if err != nil {
				s.logger.Warn().Float64("lat", loc.Lat).Float64("lon", loc.Lon).Err(err).Msg("warm refresh failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			if res.Stale {
				s.logger.Debug().Float64("lat", loc.Lat).Float64("lon", loc.Lon).Msg("warm refresh served stale entry")
			}
		}()
	}
	wg.Wait()
	return failed
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
