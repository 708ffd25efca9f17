package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/temperature-display/internal/ratelimit"
	"github.com/i474232898/temperature-display/internal/weather"
)

type AppConfig struct {
	Port     string `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`

	PrimaryProvider   string `env:"PRIMARY_PROVIDER" envDefault:"openweathermap" validate:"oneof=openweathermap weatherapi openmeteo"`
	FallbackProvider  string `env:"FALLBACK_PROVIDER" envDefault:"weatherapi" validate:"omitempty,oneof=openweathermap weatherapi openmeteo,nefield=PrimaryProvider"`
	OpenWeatherAPIKey string `env:"OPENWEATHER_API_KEY"`
	WeatherAPIKey     string `env:"WEATHERAPI_API_KEY"`

	ProviderTimeout       time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"3s" validate:"gt=0"`
	ProviderMaxRetries    int           `env:"PROVIDER_MAX_RETRIES" envDefault:"2" validate:"gte=0,lte=10"`
	ProviderMaxConcurrent int           `env:"PROVIDER_MAX_CONCURRENT" envDefault:"8" validate:"gt=0"`

	BackoffBase       time.Duration `env:"BACKOFF_BASE" envDefault:"200ms" validate:"gte=0"`
	BackoffMultiplier float64       `env:"BACKOFF_MULTIPLIER" envDefault:"2" validate:"gte=1"`
	BackoffMax        time.Duration `env:"BACKOFF_MAX" envDefault:"1s" validate:"gtefield=BackoffBase"`
	RequestBudget     time.Duration `env:"REQUEST_BUDGET" envDefault:"1800ms" validate:"gt=0"`

	RateLimitPrimaryRPM  int `env:"RATE_LIMIT_PRIMARY_RPM" envDefault:"60" validate:"gt=0"`
	RateLimitFallbackRPM int `env:"RATE_LIMIT_FALLBACK_RPM" envDefault:"60" validate:"gt=0"`

	CircuitFailureThreshold int           `env:"CIRCUIT_FAILURE_THRESHOLD" envDefault:"5" validate:"gt=0"`
	CircuitCoolDown         time.Duration `env:"CIRCUIT_COOLDOWN" envDefault:"30s" validate:"gt=0"`
	CircuitMaxCoolDown      time.Duration `env:"CIRCUIT_MAX_COOLDOWN" envDefault:"5m" validate:"gtefield=CircuitCoolDown"`

	CacheTTL             time.Duration `env:"CACHE_TTL" envDefault:"5m" validate:"gt=0"`
	CacheCapacity        int           `env:"CACHE_CAPACITY" envDefault:"10000" validate:"gt=0"`
	CacheSharedRetention time.Duration `env:"CACHE_SHARED_RETENTION" envDefault:"24h" validate:"gtefield=CacheTTL"`
	CacheSharedTimeout   time.Duration `env:"CACHE_SHARED_TIMEOUT" envDefault:"150ms" validate:"gt=0"`

	RedisURL     string   `env:"REDIS_URL" validate:"omitempty,url"`
	DatabaseURL  string   `env:"DATABASE_URL" validate:"omitempty,url"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"weather-readings" validate:"required"`

	WarmLocationsRaw string        `env:"WARM_LOCATIONS"`
	WarmInterval     time.Duration `env:"WARM_INTERVAL" envDefault:"4m" validate:"gt=0"`
	WarmUnits        string        `env:"WARM_UNITS" envDefault:"metric" validate:"oneof=metric imperial"`

	warmLocations []weather.Location
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found; using process environment")
	}
	return Parse()
}

// Parse reads and validates configuration from the process environment.
func Parse() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	locs, err := ParseLocations(cfg.WarmLocationsRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid WARM_LOCATIONS: %w", err)
	}
	cfg.warmLocations = locs

	return cfg, nil
}

// ParseLocations parses "lat,lon;lat,lon". Empty input yields no locations.
func ParseLocations(s string) ([]weather.Location, error) {
	var locs []weather.Location
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%q: want lat,lon", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pair, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pair, err)
		}
		if !weather.ValidCoordinates(lat, lon) {
			return nil, fmt.Errorf("%q: coordinates out of range", pair)
		}
		locs = append(locs, weather.Location{Lat: lat, Lon: lon})
	}
	return locs, nil
}

// WarmLocations returns the parsed WARM_LOCATIONS.
func (c *AppConfig) WarmLocations() []weather.Location {
	return c.warmLocations
}

// RetryPolicy builds the coordinator retry policy.
func (c *AppConfig) RetryPolicy() weather.RetryPolicy {
	return weather.RetryPolicy{
		AttemptTimeout: c.ProviderTimeout,
		MaxRetries:     c.ProviderMaxRetries,
		BaseDelay:      c.BackoffBase,
		Multiplier:     c.BackoffMultiplier,
		MaxDelay:       c.BackoffMax,
	}
}

// RateLimits returns the shared limiter defaults and the per-provider quotas.
func (c *AppConfig) RateLimits() (ratelimit.Config, map[string]ratelimit.Config) {
	def := ratelimit.DefaultConfig()
	def.FailureThreshold = c.CircuitFailureThreshold
	def.CoolDown = c.CircuitCoolDown
	def.MaxCoolDown = c.CircuitMaxCoolDown

	primary := def
	primary.RequestsPerMinute = c.RateLimitPrimaryRPM

	per := map[string]ratelimit.Config{c.PrimaryProvider: primary}
	if c.FallbackProvider != "" {
		fallback := def
		fallback.RequestsPerMinute = c.RateLimitFallbackRPM
		per[c.FallbackProvider] = fallback
	}
	return def, per
}
