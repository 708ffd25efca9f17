package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/i474232898/temperature-display/internal/api/http"
	"github.com/i474232898/temperature-display/internal/config"
	"github.com/i474232898/temperature-display/internal/events"
	"github.com/i474232898/temperature-display/internal/ratelimit"
	"github.com/i474232898/temperature-display/internal/scheduler"
	"github.com/i474232898/temperature-display/internal/store"
	"github.com/i474232898/temperature-display/internal/weather"
	"github.com/i474232898/temperature-display/internal/weather/providers"
)

// warmStartRows bounds how many durable rows are loaded at startup.
const warmStartRows = 5000

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rate limiting and circuit state shared by every provider.
	defaults, perProvider := cfg.RateLimits()
	limiter := ratelimit.New(defaults, perProvider)

	// Shared HTTP client for outbound provider calls; each attempt has its own deadline.
	httpCfg := providers.HTTPClientConfig{
		Client:        &http.Client{},
		Limiter:       limiter,
		MaxConcurrent: int64(cfg.ProviderMaxConcurrent),
	}
	keys := providers.Keys{OpenWeather: cfg.OpenWeatherAPIKey, WeatherAPI: cfg.WeatherAPIKey}

	primary, err := providers.New(cfg.PrimaryProvider, httpCfg, keys)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build primary provider")
	}
	providerNames := []string{primary.Name()}

	var fallback weather.Provider
	if cfg.FallbackProvider != "" {
		fallback, err = providers.New(cfg.FallbackProvider, httpCfg, keys)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build fallback provider")
		}
		providerNames = append(providerNames, fallback.Name())
	}

	// Optional tiers and sinks.
	var (
		checkers []httpapi.Checker
		shared   store.SharedTier
		sinks    []store.Sink
		durable  *store.PostgresStore
	)

	if cfg.RedisURL != "" {
		client, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; running without shared cache")
		} else {
			defer client.Close()
			rs := store.NewRedisStore(client, store.RedisOptions{
				Retention: cfg.CacheSharedRetention,
				Timeout:   cfg.CacheSharedTimeout,
			})
			shared = rs
			checkers = append(checkers, rs)
		}
	}

	if cfg.DatabaseURL != "" {
		pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn().Err(err).Msg("database unavailable; running without durable store")
		} else {
			defer pool.Close()
			durable = store.NewPostgresStore(pool)
			if err := durable.EnsureSchema(ctx); err != nil {
				logger.Fatal().Err(err).Msg("failed to create schema")
			}
			sinks = append(sinks, durable)
			checkers = append(checkers, durable)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Warn().Err(err).Msg("kafka unavailable; readings will not be published")
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	var queue *store.WriteBehind
	if len(sinks) > 0 {
		queue = store.NewWriteBehind(sinks, 1024, 5*time.Second, logger)
		defer queue.Close()
	}

	cache := store.NewTiered(store.NewMemoryStore(cfg.CacheCapacity), shared, queue, logger)
	if durable != nil {
		if _, err := cache.Warm(ctx, durable, warmStartRows); err != nil {
			logger.Warn().Err(err).Msg("cache warm start failed")
		}
	}

	coord := weather.NewCoordinator(weather.CoordinatorConfig{
		Primary:  primary,
		Fallback: fallback,
		Cache:    cache,
		Retry:    cfg.RetryPolicy(),
		TTL:      cfg.CacheTTL,
		Logger:   logger,
	})
	service := weather.NewService(cache, coord, cfg.RequestBudget, logger)

	// Periodic refresh of configured locations.
	sched := scheduler.New(cfg.WarmLocations(), weather.Units(cfg.WarmUnits), cfg.WarmInterval, service, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.Deps{
		Service:   service,
		Checkers:  checkers,
		Circuits:  limiter,
		Providers: providerNames,
		Logger:    logger,
	})

	go func() {
		logger.Info().Str("port", cfg.Port).Strs("providers", providerNames).Msg("starting http server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
