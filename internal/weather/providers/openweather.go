package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/temperature-display/internal/weather"
)

// OpenWeatherName identifies the OpenWeatherMap adapter in config and logs.
const OpenWeatherName = "openweathermap"

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	*client
	apiKey string
}

func NewOpenWeatherProvider(cfg HTTPClientConfig, apiKey string, opts ...Option) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		client: newClient(OpenWeatherName, "https://api.openweathermap.org/data/2.5/weather", cfg, opts),
		apiKey: apiKey,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units, timeout time.Duration) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderUnavailable, p.name, fmt.Errorf("openweather api key is not configured"))
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmtCoord(loc.Lat))
		values.Set("lon", fmtCoord(loc.Lon))

		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	return p.fetch(ctx, timeout, units, buildRequest, decodeOpenWeather)
}

func decodeOpenWeather(body io.Reader) (weather.ProviderReading, error) {
	var payload struct {
		Dt   int64 `json:"dt"`
		Main *struct {
			Temp      *float64 `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  *float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
	}

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Main == nil {
		return weather.ProviderReading{}, fmt.Errorf("missing main block")
	}
	if err := requireFields(
		field{"main.temp", payload.Main.Temp},
		field{"main.feels_like", payload.Main.FeelsLike},
		field{"main.humidity", payload.Main.Humidity},
	); err != nil {
		return weather.ProviderReading{}, err
	}

	var ts time.Time
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	cond := weather.ConditionUnknown
	if len(payload.Weather) > 0 {
		cond = mapOpenWeatherCondition(payload.Weather[0].Main)
	}

	return weather.ProviderReading{
		Timestamp:    ts,
		TemperatureC: *payload.Main.Temp,
		FeelsLikeC:   *payload.Main.FeelsLike,
		HumidityPct:  *payload.Main.Humidity,
		Condition:    cond,
	}, nil
}

func mapOpenWeatherCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm", "Squall", "Tornado":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke", "Dust", "Sand", "Ash":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
