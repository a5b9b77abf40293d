package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

var (
	paris = weather.Location{City: "Paris", Country: "FR"}
	lyon  = weather.Location{City: "Lyon", Country: "FR"}
	day0  = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

func obs(source string, loc weather.Location, distance, day int, tmax float64) weather.Observation {
	o := weather.NewObservation(source, loc, day0.AddDate(0, 0, day), day0.AddDate(0, 0, day-distance))
	o.Temperature = weather.Span(tmax-10, tmax)
	o.Description = "light rain"
	return o
}

// stores returns every weather.Store implementation with the given limits.
func stores(t *testing.T, maxHistory int) map[string]weather.Store {
	t.Helper()
	b, err := NewBadgerStore(BadgerOptions{InMemory: true, MaxHistory: maxHistory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return map[string]weather.Store{
		"memory": NewMemoryStore(maxHistory, 0),
		"badger": b,
	}
}

func TestObservationsRoundTrip(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveObservations([]weather.Observation{
				obs("gismeteo", paris, 1, 3, 20),
				obs("gismeteo", paris, 1, 1, 18),
				obs("gismeteo", paris, 1, 2, 19),
				obs("gismeteo", paris, 2, 2, 25),
				obs("meteoprog", paris, 1, 2, 30),
			}))

			got, err := s.Observations(weather.Query{Location: paris, Source: "gismeteo", Distance: 1})
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, []string{"2024-05-02", "2024-05-03", "2024-05-04"}, labels(got))
			assert.Equal(t, 18.0, *got[0].Temperature.Max)
			assert.Equal(t, "light rain", got[0].Description)
			assert.Nil(t, got[0].Humidity.Min)

			got, err = s.Observations(weather.Query{Location: paris, Source: "gismeteo", Distance: 1, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"2024-05-03", "2024-05-04"}, labels(got))

			_, err = s.Observations(weather.Query{Location: lyon, Source: "gismeteo", Distance: 1})
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestObservationsUpsertPerDay(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveObservations([]weather.Observation{obs("gismeteo", paris, 0, 0, 10)}))
			require.NoError(t, s.SaveObservations([]weather.Observation{obs("gismeteo", paris, 0, 0, 12)}))

			got, err := s.Observations(weather.Query{Location: paris, Source: "gismeteo"})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 12.0, *got[0].Temperature.Max)
		})
	}
}

func TestObservationsMaxHistory(t *testing.T) {
	for name, s := range stores(t, 2) {
		t.Run(name, func(t *testing.T) {
			for d := 0; d < 4; d++ {
				require.NoError(t, s.SaveObservations([]weather.Observation{obs("yahoo", paris, 0, d, float64(d))}))
			}
			got, err := s.Observations(weather.Query{Location: paris, Source: "yahoo"})
			require.NoError(t, err)
			assert.Equal(t, []string{"2024-05-03", "2024-05-04"}, labels(got))
		})
	}
}

func TestMemoryStoreMaxAge(t *testing.T) {
	s := NewMemoryStore(0, 48*time.Hour)
	s.now = func() time.Time { return day0.AddDate(0, 0, 5) }

	require.NoError(t, s.SaveObservations([]weather.Observation{
		obs("yahoo", paris, 0, 0, 1),
		obs("yahoo", paris, 0, 4, 2),
	}))
	got, err := s.Observations(weather.Query{Location: paris, Source: "yahoo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-05"}, labels(got))
}

func TestBadgerStoreSkipsExpired(t *testing.T) {
	s, err := NewBadgerStore(BadgerOptions{InMemory: true, MaxAge: 48 * time.Hour})
	require.NoError(t, err)
	defer s.Close()
	s.now = func() time.Time { return day0.AddDate(0, 0, 5) }

	require.NoError(t, s.SaveObservations([]weather.Observation{
		obs("yahoo", paris, 0, 0, 1),
		obs("yahoo", paris, 0, 4, 2),
	}))
	got, err := s.Observations(weather.Query{Location: paris, Source: "yahoo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-05"}, labels(got))
}

func TestMaxDistance(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, err := s.MaxDistance(paris)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SaveObservations([]weather.Observation{
				obs("gismeteo", paris, 3, 5, 1),
				obs("gismeteo", paris, 12, 14, 1),
				obs("gismeteo", lyon, 20, 21, 1),
			}))
			d, err := s.MaxDistance(paris)
			require.NoError(t, err)
			assert.Equal(t, 12, d)
		})
	}
}

func TestWeightsLatestWins(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, err := s.LatestWeights(paris, 0)
			require.ErrorIs(t, err, ErrNotFound)

			rec := func(day int, w0 float64) weather.WeightRecord {
				return weather.WeightRecord{
					Location: paris,
					Updated:  day0.AddDate(0, 0, day),
					Sources:  []string{"a", "b"},
					Weights:  map[string][]float64{"temperature_max": {w0, 1 - w0}},
				}
			}
			require.NoError(t, s.SaveWeights(rec(2, 0.7)))
			require.NoError(t, s.SaveWeights(rec(1, 0.1)))
			require.NoError(t, s.SaveWeights(rec(2, 0.6)))

			got, err := s.LatestWeights(paris, 0)
			require.NoError(t, err)
			assert.True(t, got.Updated.Equal(day0.AddDate(0, 0, 2)))
			assert.Equal(t, []float64{0.6, 0.4}, got.Weights["temperature_max"])

			ws, err := got.WeightSet()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ws.Sources)

			_, err = s.LatestWeights(paris, 1)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestProducedAndErrors(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SaveProduced([]weather.ProducedRecord{
				{Location: paris, Distance: 1, Label: "2024-05-02", Values: map[string]float64{"t": 2}},
				{Location: paris, Distance: 1, Label: "2024-05-01", Values: map[string]float64{"t": 1}},
			}))
			require.NoError(t, s.SaveProduced([]weather.ProducedRecord{
				{Location: paris, Distance: 1, Label: "2024-05-02", Values: map[string]float64{"t": 3}},
			}))
			got, err := s.Produced(paris, 1)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "2024-05-01", got[0].Label)
			assert.Equal(t, 3.0, got[1].Values["t"])

			_, err = s.Errors(paris, 1)
			require.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, s.SaveErrors([]weather.ErrorRecord{
				{Location: paris, Distance: 1, Label: "2024-05-01", Values: map[string]float64{"t": 0.5}},
			}))
			errs, err := s.Errors(paris, 1)
			require.NoError(t, err)
			assert.Equal(t, 0.5, errs[0].Values["t"])
		})
	}
}

func TestNewBadgerStoreRequiresDir(t *testing.T) {
	_, err := NewBadgerStore(BadgerOptions{})
	require.Error(t, err)
}

func labels(obs []weather.Observation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Label()
	}
	return out
}
