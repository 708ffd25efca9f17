package weather

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRequestBudget keeps a query under the two-second response target.
const DefaultRequestBudget = 1800 * time.Millisecond

// Service is the entry point for current-weather queries. Concurrent queries
// for the same key share a single upstream resolution.
type Service struct {
	cache   Cache
	coord   *Coordinator
	budget  time.Duration
	flights singleflight.Group
	logger  zerolog.Logger

	now func() time.Time
}

// NewService creates a new Service. A non-positive budget disables the
// end-to-end deadline, leaving only the caller's context.
func NewService(cache Cache, coord *Coordinator, budget time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		cache:  cache,
		coord:  coord,
		budget: budget,
		logger: logger.With().Str("component", "weather_service").Logger(),
		now:    time.Now,
	}
}

// GetCurrentWeather returns the reading for the given coordinates, from cache
// when fresh, otherwise via the provider fallback chain. The only errors it
// returns are ErrInvalidLocation and ErrAllProvidersFailed.
func (s *Service) GetCurrentWeather(ctx context.Context, lat, lon float64, units Units) (Result, error) {
	key, err := s.keyFor(lat, lon, units)
	if err != nil {
		return Result{}, err
	}

	if s.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	if e, ok := s.cache.Get(ctx, key); ok && !e.Stale(s.now()) {
		return Result{Reading: e.Reading}, nil
	}

	// The lookup above is this query's CACHE_CHECK; the flight starts at
	// PRIMARY_ATTEMPT so the shared tier is not read twice.
	return s.join(ctx, key, s.coord.Refresh)
}

// Refresh fetches from the providers even when the cached entry is fresh.
// It shares in-flight fetches with GetCurrentWeather.
func (s *Service) Refresh(ctx context.Context, lat, lon float64, units Units) (Result, error) {
	key, err := s.keyFor(lat, lon, units)
	if err != nil {
		return Result{}, err
	}
	return s.join(ctx, key, s.coord.Refresh)
}

func (s *Service) keyFor(lat, lon float64, units Units) (Key, error) {
	if !ValidCoordinates(lat, lon) {
		return Key{}, invalidLocation("coordinates (%v, %v) out of range", lat, lon)
	}
	if units != UnitsMetric && units != UnitsImperial {
		return Key{}, invalidLocation("unknown units %q", units)
	}
	return NewKey(Location{Lat: lat, Lon: lon}, units), nil
}

// join attaches the caller to the in-flight resolution for key, starting one
// if none exists. The flight is detached from the first caller's cancellation
// but keeps its deadline; each caller still gives up at its own deadline.
func (s *Service) join(ctx context.Context, key Key, run func(context.Context, Key) (Result, error)) (Result, error) {
	ch := s.flights.DoChan(key.String(), func() (any, error) {
		fctx, cancel := s.flightContext(ctx)
		defer cancel()
		return run(fctx, key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug().Str("key", key.String()).Msg("joined in-flight fetch")
		}
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		s.logger.Warn().Str("key", key.String()).Msg("request deadline exceeded before fetch completed")
		return s.coord.ServeStale(ctx, key)
	}
}

func (s *Service) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, dl)
	}
	if s.budget > 0 {
		return context.WithTimeout(detached, s.budget)
	}
	return context.WithCancel(detached)
}
