package weather

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
)

// ActualSource is the source name under which observed weather is stored.
// It is the truth every forecast source is measured against.
const ActualSource = "actual_weather"

// LabelLayout formats weather dates into alignment labels.
const LabelLayout = time.DateOnly

// Location represents a logical place for which we track weather.
// City/Country must be provided.
type Location struct {
	City    string `json:"city" msgpack:"city" validate:"required"`
	Country string `json:"country" msgpack:"country" validate:"required"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// Range is a daily min/max pair. Nil bounds are values the source did not
// report.
type Range struct {
	Min *float64 `json:"min,omitempty" msgpack:"min"`
	Max *float64 `json:"max,omitempty" msgpack:"max"`
}

// Span builds a fully known range.
func Span(min, max float64) Range {
	return Range{Min: &min, Max: &max}
}

// Point builds a range whose bounds are the same value.
func Point(v float64) Range {
	return Span(v, v)
}

func (r Range) document() map[string]any {
	m := map[string]any{"min": nil, "max": nil}
	if r.Min != nil {
		m["min"] = *r.Min
	}
	if r.Max != nil {
		m["max"] = *r.Max
	}
	return m
}

// Observation is one source's view of one day at one location: a forecast
// made Distance days ahead, or (for ActualSource) the observed weather.
type Observation struct {
	ID          string    `json:"id" msgpack:"id"`
	Source      string    `json:"source" msgpack:"source"`
	Location    Location  `json:"location" msgpack:"location"`
	Distance    int       `json:"forecastDistance" msgpack:"distance"`
	WeatherDate time.Time `json:"weatherDate" msgpack:"weather_date"` // midnight UTC
	FetchedAt   time.Time `json:"fetchedAt" msgpack:"fetched_at"`

	Temperature      Range  `json:"temperature" msgpack:"temperature"`
	FeelsTemperature Range  `json:"feelsTemperature" msgpack:"feels_temperature"`
	Pressure         Range  `json:"pressure" msgpack:"pressure"`
	Humidity         Range  `json:"humidity" msgpack:"humidity"`
	Precipitation    Range  `json:"precipitation" msgpack:"precipitation"`
	WindSpeed        Range  `json:"windSpeed" msgpack:"wind_speed"`
	WindDirection    Range  `json:"windDirection" msgpack:"wind_direction"`
	Description      string `json:"description" msgpack:"description"`
}

// NewObservation stamps a reading with an id, the fetch time and the forecast
// distance between the fetch day and the weather day.
func NewObservation(source string, loc Location, day, fetchedAt time.Time) Observation {
	day = Day(day)
	distance := int(day.Sub(Day(fetchedAt)).Hours() / 24)
	if distance < 0 {
		distance = 0
	}
	return Observation{
		ID:          uuid.NewString(),
		Source:      source,
		Location:    loc,
		Distance:    distance,
		WeatherDate: day,
		FetchedAt:   fetchedAt.UTC(),
	}
}

// Label is the alignment label of the observation.
func (o Observation) Label() string {
	return o.WeatherDate.UTC().Format(LabelLayout)
}

// Document flattens the observation into the shape feature paths address.
func (o Observation) Document() ensemble.Document {
	return ensemble.Document{
		ensemble.DefaultLabelKey: o.Label(),
		"city":                   o.Location.City,
		"country":                o.Location.Country,
		"forecast_distance":      o.Distance,
		"temperature":            o.Temperature.document(),
		"feels_temperature":      o.FeelsTemperature.document(),
		"pressure":               o.Pressure.document(),
		"humidity":               o.Humidity.document(),
		"precipitation":          o.Precipitation.document(),
		"wind_speed":             o.WindSpeed.document(),
		"wind_direction":         o.WindDirection.document(),
		"description":            o.Description,
	}
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeightRecord is the learned weight set for one (location, distance),
// stamped with the day it was learned. One record per day is kept.
type WeightRecord struct {
	Location Location             `json:"location" msgpack:"location"`
	Distance int                  `json:"forecastDistance" msgpack:"distance"`
	Updated  time.Time            `json:"updated" msgpack:"updated"`
	Sources  []string             `json:"sources" msgpack:"sources"`
	Weights  map[string][]float64 `json:"weights" msgpack:"weights"`
}

// WeightSet converts the record back into the estimator's representation.
func (r WeightRecord) WeightSet() (*ensemble.WeightSet, error) {
	return ensemble.NewWeightSet(r.Sources, r.Weights)
}

// ProducedRecord is the fused forecast for one label.
type ProducedRecord struct {
	Location Location           `json:"location" msgpack:"location"`
	Distance int                `json:"forecastDistance" msgpack:"distance"`
	Label    string             `json:"label" msgpack:"label"`
	Updated  time.Time          `json:"updated" msgpack:"updated"`
	Sources  []string           `json:"sources" msgpack:"sources"`
	Values   map[string]float64 `json:"values" msgpack:"values"`
}

// ErrorRecord is the cross-validation error of the fused forecast, one value
// per feature.
type ErrorRecord struct {
	Location Location           `json:"location" msgpack:"location"`
	Distance int                `json:"forecastDistance" msgpack:"distance"`
	Label    string             `json:"label" msgpack:"label"`
	Updated  time.Time          `json:"updated" msgpack:"updated"`
	Sources  []string           `json:"sources" msgpack:"sources"`
	Values   map[string]float64 `json:"values" msgpack:"values"`
}

// Mean returns the mean of the record's values, skipping NaN.
func (r ErrorRecord) Mean() float64 {
	vals := make([]float64, 0, len(r.Values))
	for _, v := range r.Values {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}
