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

// OpenMeteoName identifies the Open-Meteo adapter in config and logs.
const OpenMeteoName = "openmeteo"

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key, which makes it a convenient fallback.
type OpenMeteoProvider struct {
	*client
}

func NewOpenMeteoProvider(cfg HTTPClientConfig, opts ...Option) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		client: newClient(OpenMeteoName, "https://api.open-meteo.com/v1/forecast", cfg, opts),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units, timeout time.Duration) (weather.Reading, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmtCoord(loc.Lat))
		values.Set("longitude", fmtCoord(loc.Lon))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,weather_code,uv_index")
		values.Set("timeformat", "unixtime")

		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	return p.fetch(ctx, timeout, units, buildRequest, decodeOpenMeteo)
}

func decodeOpenMeteo(body io.Reader) (weather.ProviderReading, error) {
	var payload struct {
		Current *struct {
			Time                int64    `json:"time"`
			Temperature         *float64 `json:"temperature_2m"`
			ApparentTemperature *float64 `json:"apparent_temperature"`
			RelativeHumidity    *float64 `json:"relative_humidity_2m"`
			WeatherCode         *int     `json:"weather_code"`
			UVIndex             *float64 `json:"uv_index"`
		} `json:"current"`
	}

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Current == nil {
		return weather.ProviderReading{}, fmt.Errorf("missing current block")
	}
	if err := requireFields(
		field{"current.temperature_2m", payload.Current.Temperature},
		field{"current.apparent_temperature", payload.Current.ApparentTemperature},
		field{"current.relative_humidity_2m", payload.Current.RelativeHumidity},
	); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Current.WeatherCode == nil {
		return weather.ProviderReading{}, fmt.Errorf("missing current.weather_code")
	}

	var ts time.Time
	if payload.Current.Time > 0 {
		ts = time.Unix(payload.Current.Time, 0).UTC()
	}

	return weather.ProviderReading{
		Timestamp:    ts,
		TemperatureC: *payload.Current.Temperature,
		FeelsLikeC:   *payload.Current.ApparentTemperature,
		HumidityPct:  *payload.Current.RelativeHumidity,
		UVIndex:      payload.Current.UVIndex,
		Condition:    mapOpenMeteoCondition(*payload.Current.WeatherCode),
	}, nil
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo WMO weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
