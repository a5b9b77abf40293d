package weather

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when nothing matches the query.
var ErrNotFound = errors.New("no weather data for location")

// Provider abstracts a forecast source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
type Provider interface {
	Name() string
	// FetchForecast returns one observation per forecast day, starting today.
	FetchForecast(ctx context.Context, loc Location, days int) ([]Observation, error)
}

// Observer reports the weather that actually happened on a given day.
type Observer interface {
	Observe(ctx context.Context, loc Location, day time.Time) (Observation, error)
}

// Query selects stored observations of one source.
type Query struct {
	Location Location
	Source   string
	Distance int
	// Limit keeps the most recent Limit weather dates; zero means all.
	Limit int
}

// Store is the contract the in-memory and badger stores satisfy.
// Observations come back ordered by weather date, oldest first.
type Store interface {
	SaveObservations(obs []Observation) error
	Observations(q Query) ([]Observation, error)
	// MaxDistance is the largest forecast distance stored for loc.
	MaxDistance(loc Location) (int, error)

	SaveWeights(rec WeightRecord) error
	// LatestWeights returns the most recently updated record.
	LatestWeights(loc Location, distance int) (WeightRecord, error)

	SaveProduced(recs []ProducedRecord) error
	Produced(loc Location, distance int) ([]ProducedRecord, error)

	SaveErrors(recs []ErrorRecord) error
	Errors(loc Location, distance int) ([]ErrorRecord, error)
}
