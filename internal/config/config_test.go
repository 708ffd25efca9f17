package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/temperature-display/internal/weather"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "openweathermap", cfg.PrimaryProvider)
	assert.Equal(t, "weatherapi", cfg.FallbackProvider)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1800*time.Millisecond, cfg.RequestBudget)
	assert.Equal(t, 10000, cfg.CacheCapacity)
	assert.Equal(t, "weather-readings", cfg.KafkaTopic)
	assert.Empty(t, cfg.WarmLocations())

	p := cfg.RetryPolicy()
	assert.Equal(t, 3*time.Second, p.AttemptTimeout)
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, p.BaseDelay)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PRIMARY_PROVIDER", "openmeteo")
	t.Setenv("FALLBACK_PROVIDER", "openweathermap")
	t.Setenv("RATE_LIMIT_PRIMARY_RPM", "600")
	t.Setenv("CIRCUIT_FAILURE_THRESHOLD", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WARM_LOCATIONS", "37.7749,-122.4194; 51.5,-0.12")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []weather.Location{{Lat: 37.7749, Lon: -122.4194}, {Lat: 51.5, Lon: -0.12}}, cfg.WarmLocations())

	def, per := cfg.RateLimits()
	assert.Equal(t, 3, def.FailureThreshold)
	assert.Equal(t, 600, per["openmeteo"].RequestsPerMinute)
	assert.Equal(t, 60, per["openweathermap"].RequestsPerMinute)
	assert.Equal(t, 3, per["openmeteo"].FailureThreshold)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"unknown provider":    {"PRIMARY_PROVIDER", "darksky"},
		"same providers":      {"FALLBACK_PROVIDER", "openweathermap"},
		"bad duration":        {"CACHE_TTL", "soon"},
		"zero capacity":       {"CACHE_CAPACITY", "0"},
		"bad units":           {"WARM_UNITS", "kelvin"},
		"bad warm location":   {"WARM_LOCATIONS", "91,10"},
		"short warm location": {"WARM_LOCATIONS", "10"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestParseFallbackDisabled(t *testing.T) {
	t.Setenv("FALLBACK_PROVIDER", "")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Empty(t, cfg.FallbackProvider)

	_, per := cfg.RateLimits()
	assert.Len(t, per, 1)
}

func TestParseLocations(t *testing.T) {
	locs, err := ParseLocations("")
	require.NoError(t, err)
	assert.Empty(t, locs)

	locs, err = ParseLocations("1.5,2.5;")
	require.NoError(t, err)
	assert.Equal(t, []weather.Location{{Lat: 1.5, Lon: 2.5}}, locs)

	_, err = ParseLocations("a,b")
	assert.Error(t, err)
}
