package weather

import (
	"context"
	"time"
)

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
// Fetch performs exactly one upstream attempt bounded by timeout.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location, units Units, timeout time.Duration) (Reading, error)
}

// Cache is the contract the tiered cache store must satisfy. Get never calls
// a provider; Put replaces any existing entry for the key.
type Cache interface {
	Get(ctx context.Context, key Key) (Entry, bool)
	Put(ctx context.Context, key Key, r Reading, ttl time.Duration)
}
