package weather

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyRoundsToFourDecimals(t *testing.T) {
	k := NewKey(Location{Lat: 37.774929, Lon: -122.419415}, UnitsMetric)

	assert.Equal(t, 37.7749, k.Lat)
	assert.Equal(t, -122.4194, k.Lon)
	assert.Equal(t, "37.7749:-122.4194:metric", k.String())
	assert.Equal(t, k, NewKey(Location{Lat: 37.77488, Lon: -122.41943}, UnitsMetric))
	assert.NotEqual(t, k, NewKey(Location{Lat: 37.774929, Lon: -122.419415}, UnitsImperial))
}

func TestParseUnits(t *testing.T) {
	u, err := ParseUnits("")
	require.NoError(t, err)
	assert.Equal(t, UnitsMetric, u)

	u, err = ParseUnits("imperial")
	require.NoError(t, err)
	assert.Equal(t, UnitsImperial, u)

	_, err = ParseUnits("Kelvin")
	assert.Error(t, err)
}

func TestEntryStaleness(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := NewEntry(Reading{}, now, time.Minute)

	assert.False(t, e.Stale(now))
	assert.False(t, e.Stale(now.Add(time.Minute)))
	assert.True(t, e.Stale(now.Add(time.Minute+time.Nanosecond)))
}

func TestNormalize(t *testing.T) {
	uv := 7.6
	raw := ProviderReading{
		ProviderName: "openweathermap",
		Timestamp:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("PST", -8*3600)),
		TemperatureC: 21.5,
		FeelsLikeC:   -0.4,
		HumidityPct:  55.5,
		UVIndex:      &uv,
		Condition:    ConditionClear,
	}

	r, err := raw.Normalize(UnitsMetric)
	require.NoError(t, err)
	assert.Equal(t, 22, r.Temperature)
	assert.Equal(t, 0, r.FeelsLike)
	assert.Equal(t, 56, r.Humidity)
	require.NotNil(t, r.UVIndex)
	assert.Equal(t, 8, *r.UVIndex)
	assert.Equal(t, time.UTC, r.ObservedAt.Location())
	assert.Equal(t, "openweathermap", r.Source)

	r, err = raw.Normalize(UnitsImperial)
	require.NoError(t, err)
	assert.Equal(t, 71, r.Temperature)
	assert.Equal(t, 31, r.FeelsLike)
}

func TestNormalizeRejectsImplausibleData(t *testing.T) {
	cases := map[string]ProviderReading{
		"too hot":      {TemperatureC: 60.1},
		"too cold":     {TemperatureC: -90.5},
		"nan":          {TemperatureC: math.NaN()},
		"humidity":     {TemperatureC: 10, HumidityPct: 101},
		"feels nan":    {TemperatureC: 10, FeelsLikeC: math.Inf(-1)},
		"neg humidity": {TemperatureC: 10, HumidityPct: -1},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := raw.Normalize(UnitsMetric)
			assert.ErrorIs(t, err, ErrProviderDataInvalid)
		})
	}
}

func TestNormalizeEdgesOfRange(t *testing.T) {
	_, err := ProviderReading{TemperatureC: 60}.Normalize(UnitsMetric)
	assert.NoError(t, err)
	_, err = ProviderReading{TemperatureC: -90}.Normalize(UnitsMetric)
	assert.NoError(t, err)
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("wrapped: %w", NewProviderError(CodeProviderUnavailable, "weatherapi", cause))

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrProviderTimeout)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "wrapped: weatherapi: provider_unavailable: dial tcp: connection refused", err.Error())

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "weatherapi", werr.Provider)
}
