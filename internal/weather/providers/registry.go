package providers

import (
	"fmt"

	"github.com/i474232898/temperature-display/internal/weather"
)

// Keys holds the API keys of the adapters that need one.
type Keys struct {
	OpenWeather string
	WeatherAPI  string
}

// Names lists every adapter New can build.
var Names = []string{OpenWeatherName, WeatherAPIName, OpenMeteoName}

// New builds the adapter registered under name.
func New(name string, cfg HTTPClientConfig, keys Keys, opts ...Option) (weather.Provider, error) {
	switch name {
	case OpenWeatherName:
		return NewOpenWeatherProvider(cfg, keys.OpenWeather, opts...), nil
	case WeatherAPIName:
		return NewWeatherAPIProvider(cfg, keys.WeatherAPI, opts...), nil
	case OpenMeteoName:
		return NewOpenMeteoProvider(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
