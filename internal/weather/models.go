package weather

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/i474232898/temperature-display/internal/common"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Units selects the temperature scale of a reading.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ParseUnits accepts "metric" and "imperial"; an empty string means metric.
func ParseUnits(s string) (Units, error) {
	switch Units(s) {
	case "", UnitsMetric:
		return UnitsMetric, nil
	case UnitsImperial:
		return UnitsImperial, nil
	default:
		return "", fmt.Errorf("unknown units %q", s)
	}
}

// Location is a point on the globe. Coordinates are expected to be validated
// before a Location reaches a provider.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// keyPrecision collapses queries closer than ~11m onto one cache entry.
const keyPrecision = 4

// Key is the normalized cache identity of a query.
type Key struct {
	Lat   float64
	Lon   float64
	Units Units
}

// NewKey rounds the coordinates to four decimal places.
func NewKey(loc Location, units Units) Key {
	return Key{
		Lat:   common.Round(loc.Lat, keyPrecision),
		Lon:   common.Round(loc.Lon, keyPrecision),
		Units: units,
	}
}

// String returns a canonical string key for indexing this location in stores.
func (k Key) String() string {
	return strconv.FormatFloat(k.Lat, 'f', keyPrecision, 64) + ":" +
		strconv.FormatFloat(k.Lon, 'f', keyPrecision, 64) + ":" + string(k.Units)
}

// Location returns the rounded point the key was built from.
func (k Key) Location() Location {
	return Location{Lat: k.Lat, Lon: k.Lon}
}

// Reading is the normalized current-weather value object. It is treated as
// immutable once produced by a provider or decoded from a cache tier.
type Reading struct {
	Temperature int       `json:"temperature"`
	FeelsLike   int       `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	Condition   Condition `json:"condition"`
	UVIndex     *int      `json:"uvIndex"`
	ObservedAt  time.Time `json:"timestamp"` // always UTC
	Source      string    `json:"source"`
}

// Entry wraps a reading with its cache lifetime.
type Entry struct {
	Reading    Reading   `json:"reading"`
	InsertedAt time.Time `json:"insertedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// NewEntry builds an entry that stays fresh for ttl after now.
func NewEntry(r Reading, now time.Time, ttl time.Duration) Entry {
	return Entry{Reading: r, InsertedAt: now, ExpiresAt: now.Add(ttl)}
}

// Stale reports whether the entry is past its freshness window at now.
func (e Entry) Stale(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Result is what the service hands back to callers.
type Result struct {
	Reading Reading
	// Stale is set when the reading was served past its TTL because no
	// provider could deliver a fresher one.
	Stale bool
}

// ValidCoordinates reports whether lat/lon are finite and within bounds.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
