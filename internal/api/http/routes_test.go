package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/temperature-display/internal/ratelimit"
	"github.com/i474232898/temperature-display/internal/weather"
)

type fakeService struct {
	res   weather.Result
	err   error
	calls int
	units weather.Units
}

func (f *fakeService) GetCurrentWeather(_ context.Context, _, _ float64, units weather.Units) (weather.Result, error) {
	f.calls++
	f.units = units
	return f.res, f.err
}

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string                 { return f.name }
func (f fakeChecker) Ping(_ context.Context) error { return f.err }

type fakeCircuits map[string]ratelimit.Snapshot

func (f fakeCircuits) Snapshot(provider string) ratelimit.Snapshot { return f[provider] }

func newTestApp(d Deps) *fiber.App {
	d.Logger = zerolog.Nop()
	return NewApp(d)
}

func do(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestCurrentWeather(t *testing.T) {
	uv := 6
	svc := &fakeService{res: weather.Result{Reading: weather.Reading{
		Temperature: 22,
		FeelsLike:   21,
		Humidity:    60,
		Condition:   weather.ConditionClear,
		UVIndex:     &uv,
		ObservedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Source:      "openweathermap",
	}}}
	app := newTestApp(Deps{Service: svc})

	resp, body := do(t, app, "/api/weather/current?lat=37.7749&lon=-122.4194")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, weather.UnitsMetric, svc.units)
	assert.EqualValues(t, 22, body["temperature"])
	assert.EqualValues(t, 21, body["feelsLike"])
	assert.EqualValues(t, 60, body["humidity"])
	assert.Equal(t, "clear", body["condition"])
	assert.EqualValues(t, 6, body["uvIndex"])
	assert.Equal(t, "2026-03-01T09:00:00Z", body["timestamp"])
	assert.Equal(t, "openweathermap", body["source"])
	assert.Equal(t, false, body["stale"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestCurrentWeatherStaleAndImperial(t *testing.T) {
	svc := &fakeService{res: weather.Result{Reading: weather.Reading{Temperature: 71}, Stale: true}}
	app := newTestApp(Deps{Service: svc})

	resp, body := do(t, app, "/api/weather/current?lat=1&lon=2&units=imperial")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, weather.UnitsImperial, svc.units)
	assert.Equal(t, true, body["stale"])
	assert.Nil(t, body["uvIndex"])
}

func TestCurrentWeatherInvalidQuery(t *testing.T) {
	targets := []string{
		"/api/weather/current",
		"/api/weather/current?lat=abc&lon=1",
		"/api/weather/current?lat=91&lon=0",
		"/api/weather/current?lat=0&lon=-180.5",
		"/api/weather/current?lat=0&lon=0&units=kelvin",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			svc := &fakeService{}
			app := newTestApp(Deps{Service: svc})

			resp, body := do(t, app, target)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, true, body["error"])
			assert.Equal(t, "invalid_location", body["code"])
			assert.Zero(t, svc.calls)
		})
	}
}

func TestCurrentWeatherErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&weather.Error{Code: weather.CodeAllProvidersFailed, Err: errors.New("weatherapi: provider_timeout")}, http.StatusServiceUnavailable, "all_providers_failed_no_cache"},
		{weather.ErrInvalidLocation, http.StatusBadRequest, "invalid_location"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			app := newTestApp(Deps{Service: &fakeService{err: tc.err}})

			resp, body := do(t, app, "/api/weather/current?lat=0&lon=0")

			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	app := newTestApp(Deps{Service: &fakeService{}})

	req := httptest.NewRequest(http.MethodGet, "/api/weather/current?lat=0&lon=0", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	app := newTestApp(Deps{Service: &fakeService{}})

	resp, body := do(t, app, "/api/weather/forecast")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, true, body["error"])
}

func TestHealthHealthy(t *testing.T) {
	app := newTestApp(Deps{
		Service:   &fakeService{},
		Checkers:  []Checker{fakeChecker{name: "redis"}, fakeChecker{name: "postgres"}},
		Circuits:  fakeCircuits{"openweathermap": {WindowLimit: 60}},
		Providers: []string{"openweathermap"},
	})

	resp, body := do(t, app, "/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "healthy", deps["redis"].(map[string]any)["status"])
	assert.Equal(t, "healthy", deps["postgres"].(map[string]any)["status"])
	providers := body["providers"].(map[string]any)
	assert.EqualValues(t, 60, providers["openweathermap"].(map[string]any)["windowLimit"])
}

func TestHealthDegraded(t *testing.T) {
	app := newTestApp(Deps{
		Service:  &fakeService{},
		Checkers: []Checker{fakeChecker{name: "redis", err: errors.New("connection refused")}, fakeChecker{name: "postgres"}},
	})

	resp, body := do(t, app, "/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	redis := body["dependencies"].(map[string]any)["redis"].(map[string]any)
	assert.Equal(t, "unhealthy", redis["status"])
	assert.Equal(t, "connection refused", redis["error"])
}

func TestHealthDegradedWhenCircuitOpen(t *testing.T) {
	app := newTestApp(Deps{
		Service:   &fakeService{},
		Circuits:  fakeCircuits{"weatherapi": {ConsecutiveFailures: 5, CircuitOpenUntil: time.Now().Add(time.Minute)}},
		Providers: []string{"weatherapi"},
	})

	_, body := do(t, app, "/health")
	assert.Equal(t, "degraded", body["status"])
}
