package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/temperature-display/internal/common"
	"github.com/i474232898/temperature-display/internal/weather"
)

// WeatherAPIName identifies the WeatherAPI.com adapter in config and logs.
const WeatherAPIName = "weatherapi"

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	*client
	apiKey string
}

func NewWeatherAPIProvider(cfg HTTPClientConfig, apiKey string, opts ...Option) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		client: newClient(WeatherAPIName, "https://api.weatherapi.com/v1/current.json", cfg, opts),
		apiKey: apiKey,
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units, timeout time.Duration) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderUnavailable, p.name, fmt.Errorf("weatherapi api key is not configured"))
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts "lat,lon".
		values.Set("q", fmtCoord(loc.Lat)+","+fmtCoord(loc.Lon))

		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	return p.fetch(ctx, timeout, units, buildRequest, decodeWeatherAPI)
}

func decodeWeatherAPI(body io.Reader) (weather.ProviderReading, error) {
	var payload struct {
		Current *struct {
			LastUpdatedEpoch int64    `json:"last_updated_epoch"`
			TempC            *float64 `json:"temp_c"`
			FeelsLikeC       *float64 `json:"feelslike_c"`
			Humidity         *float64 `json:"humidity"`
			UV               *float64 `json:"uv"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}

	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Current == nil {
		return weather.ProviderReading{}, fmt.Errorf("missing current block")
	}
	if err := requireFields(
		field{"current.temp_c", payload.Current.TempC},
		field{"current.feelslike_c", payload.Current.FeelsLikeC},
		field{"current.humidity", payload.Current.Humidity},
	); err != nil {
		return weather.ProviderReading{}, err
	}

	var ts time.Time
	if payload.Current.LastUpdatedEpoch > 0 {
		ts = time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC()
	}

	return weather.ProviderReading{
		Timestamp:    ts,
		TemperatureC: *payload.Current.TempC,
		FeelsLikeC:   *payload.Current.FeelsLikeC,
		HumidityPct:  *payload.Current.Humidity,
		UVIndex:      payload.Current.UV,
		Condition:    mapWeatherAPICondition(payload.Current.Condition.Text),
	}, nil
}

func mapWeatherAPICondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.HasAny(text, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(text, "snow", "sleet", "blizzard", "ice pellets"):
		return weather.ConditionSnow
	case common.HasAny(text, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(text, "mist", "fog"):
		return weather.ConditionMist
	case common.HasAny(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(text, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
