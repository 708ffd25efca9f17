package weather

import (
	"fmt"
	"math"
	"time"
)

// Sanity bounds for upstream data, in metric units.
const (
	MinTemperatureC = -90.0
	MaxTemperatureC = 60.0
)

// ProviderReading is a single provider's decoded payload, always in metric
// units, before it is validated and converted into a Reading.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureC float64
	FeelsLikeC   float64
	HumidityPct  float64
	UVIndex      *float64
	Condition    Condition
}

// Normalize validates the raw reading and converts it into the requested units.
// Out-of-range values yield ErrProviderDataInvalid.
func (p ProviderReading) Normalize(units Units) (Reading, error) {
	if !finite(p.TemperatureC) || p.TemperatureC < MinTemperatureC || p.TemperatureC > MaxTemperatureC {
		return Reading{}, NewProviderError(CodeProviderDataInvalid, p.ProviderName,
			fmt.Errorf("temperature %.1fC outside [%v, %v]", p.TemperatureC, MinTemperatureC, MaxTemperatureC))
	}
	if !finite(p.FeelsLikeC) {
		return Reading{}, NewProviderError(CodeProviderDataInvalid, p.ProviderName, fmt.Errorf("feels-like is not a number"))
	}
	if !finite(p.HumidityPct) || p.HumidityPct < 0 || p.HumidityPct > 100 {
		return Reading{}, NewProviderError(CodeProviderDataInvalid, p.ProviderName,
			fmt.Errorf("humidity %.1f%% outside [0, 100]", p.HumidityPct))
	}

	var uv *int
	if p.UVIndex != nil && finite(*p.UVIndex) && *p.UVIndex >= 0 {
		v := int(math.Round(*p.UVIndex))
		uv = &v
	}

	cond := p.Condition
	if cond == "" {
		cond = ConditionUnknown
	}

	ts := p.Timestamp.UTC()
	if p.Timestamp.IsZero() {
		ts = time.Now().UTC()
	}

	return Reading{
		Temperature: convert(p.TemperatureC, units),
		FeelsLike:   convert(p.FeelsLikeC, units),
		Humidity:    int(math.Round(p.HumidityPct)),
		Condition:   cond,
		UVIndex:     uv,
		ObservedAt:  ts,
		Source:      p.ProviderName,
	}, nil
}

func convert(celsius float64, units Units) int {
	if units == UnitsImperial {
		return int(math.Round(celsius*9/5 + 32))
	}
	return int(math.Round(celsius))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
