package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/i474232898/temperature-display/internal/ratelimit"
	"github.com/i474232898/temperature-display/internal/weather"
)

var validate = validator.New()

// WeatherService is the query façade the handlers call.
type WeatherService interface {
	GetCurrentWeather(ctx context.Context, lat, lon float64, units weather.Units) (weather.Result, error)
}

// Checker is an optional dependency reported by /health.
type Checker interface {
	Name() string
	Ping(ctx context.Context) error
}

// CircuitReporter exposes per-provider limiter state.
type CircuitReporter interface {
	Snapshot(provider string) ratelimit.Snapshot
}

// Deps are the collaborators of the HTTP layer. Checkers, Circuits and
// Providers may be empty.
type Deps struct {
	Service   WeatherService
	Checkers  []Checker
	Circuits  CircuitReporter
	Providers []string
	Logger    zerolog.Logger
}

// NewApp builds the Fiber app with middleware and routes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "temperature-display",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          errorHandler(d.Logger),
	})

	app.Use(requestLogger(d.Logger))
	app.Use(recover.New())

	RegisterRoutes(app, d)
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", healthHandler(d))

	api := app.Group("/api")
	api.Get("/weather/current", func(c *fiber.Ctx) error {
		q, err := parseCurrentQuery(c)
		if err != nil {
			return &weather.Error{Code: weather.CodeInvalidLocation, Err: err}
		}

		res, err := d.Service.GetCurrentWeather(c.UserContext(), q.Lat, q.Lon, weather.Units(q.Units))
		if err != nil {
			return err
		}
		return c.JSON(newCurrentResponse(res))
	})
}

// currentQuery holds query parameters for the current-weather endpoint.
type currentQuery struct {
	Lat   float64 `validate:"gte=-90,lte=90"`
	Lon   float64 `validate:"gte=-180,lte=180"`
	Units string  `validate:"oneof=metric imperial"`
}

func parseCurrentQuery(c *fiber.Ctx) (currentQuery, error) {
	var q currentQuery

	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return q, errors.New("lat and lon query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return q, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return q, errors.New("lon must be a number")
	}
	q.Lat, q.Lon = lat, lon
	q.Units = c.Query("units", string(weather.UnitsMetric))

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

type currentResponse struct {
	Temperature int               `json:"temperature"`
	FeelsLike   int               `json:"feelsLike"`
	Humidity    int               `json:"humidity"`
	Condition   weather.Condition `json:"condition"`
	UVIndex     *int              `json:"uvIndex"`
	Timestamp   time.Time         `json:"timestamp"`
	Source      string            `json:"source"`
	Stale       bool              `json:"stale"`
}

func newCurrentResponse(res weather.Result) currentResponse {
	r := res.Reading
	return currentResponse{
		Temperature: r.Temperature,
		FeelsLike:   r.FeelsLike,
		Humidity:    r.Humidity,
		Condition:   r.Condition,
		UVIndex:     r.UVIndex,
		Timestamp:   r.ObservedAt,
		Source:      r.Source,
		Stale:       res.Stale,
	}
}

type errorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler renders every error as {error, code, message}.
func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := "internal_error"

		var werr *weather.Error
		var ferr *fiber.Error
		switch {
		case errors.As(err, &werr):
			code = string(werr.Code)
			switch werr.Code {
			case weather.CodeInvalidLocation:
				status = fiber.StatusBadRequest
			case weather.CodeAllProvidersFailed:
				status = fiber.StatusServiceUnavailable
			}
		case errors.As(err, &ferr):
			status = ferr.Code
			code = "http_error"
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error().Str("path", c.Path()).Str("code", code).Err(err).Msg("request failed")
		}
		return c.Status(status).JSON(errorResponse{
			Error:   true,
			Code:    code,
			Message: err.Error(),
		})
	}
}
