package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/temperature-display/internal/weather"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []weather.Location
	units []weather.Units
	fail  map[float64]bool
}

func (f *fakeRefresher) Refresh(_ context.Context, lat, lon float64, units weather.Units) (weather.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, weather.Location{Lat: lat, Lon: lon})
	f.units = append(f.units, units)
	if f.fail[lat] {
		return weather.Result{}, weather.ErrAllProvidersFailed
	}
	return weather.Result{Reading: weather.Reading{Temperature: 20}}, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRunOnceRefreshesEveryLocation(t *testing.T) {
	locs := []weather.Location{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 3, Lon: 3}}
	ref := &fakeRefresher{fail: map[float64]bool{2: true}}
	s := New(locs, weather.UnitsImperial, time.Minute, ref, zerolog.Nop())

	failed := s.RunOnce(context.Background())

	assert.Equal(t, 1, failed)
	assert.ElementsMatch(t, locs, ref.calls)
	for _, u := range ref.units {
		assert.Equal(t, weather.UnitsImperial, u)
	}
}

func TestStartWithoutLocationsIsNoop(t *testing.T) {
	ref := &fakeRefresher{}
	s := New(nil, weather.UnitsMetric, time.Minute, ref, zerolog.Nop())

	require.NoError(t, s.Start())
	s.Stop()
	assert.Zero(t, ref.count())
}

func TestStartRunsImmediately(t *testing.T) {
	ref := &fakeRefresher{}
	s := New([]weather.Location{{Lat: 10, Lon: 20}}, weather.UnitsMetric, time.Hour, ref, zerolog.Nop())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return ref.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRefresherErrorsAreCounted(t *testing.T) {
	ref := &fakeRefresher{fail: map[float64]bool{5: true}}
	s := New([]weather.Location{{Lat: 5, Lon: 5}}, weather.UnitsMetric, time.Minute, ref, zerolog.Nop())

	assert.Equal(t, 1, s.RunOnce(context.Background()))
}
