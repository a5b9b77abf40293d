package config

import (
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
	"github.com/i474232898/weather-ensemble/internal/weather"
)

type splitTagger struct{}

func (splitTagger) Nouns(text string) ([]string, error) {
	return strings.Fields(text), nil
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env
	t.Setenv("WEATHER_LOCATION_CITY", "")
	t.Setenv("WEATHER_LOCATION_COUNTRY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, cfg.FetchInterval)
	assert.Equal(t, "01:00", cfg.ReduceAt)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30, cfg.Model.Limit)
	assert.Equal(t, 6, cfg.Model.MaxDistance)
	assert.Equal(t, 7, cfg.Model.ForecastDays)
	assert.Equal(t, "euclidean", cfg.Model.Reducer)
	assert.Empty(t, cfg.Locations)
	assert.ErrorIs(t, cfg.DotEnvErr, fs.ErrNotExist)
}

func TestLoadLocations(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEATHER_LOCATION_CITY", "Kalush, Lviv")
	t.Setenv("WEATHER_LOCATION_COUNTRY", "UA,UA")
	t.Setenv("MODEL_REDUCER", "Minkowski")
	t.Setenv("MODEL_MINKOWSKI_P", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []weather.Location{{City: "Kalush", Country: "UA"}, {City: "Lviv", Country: "UA"}}, cfg.Locations)
	assert.Equal(t, "minkowski", cfg.Model.Reducer)
	assert.Equal(t, 3.0, cfg.Model.MinkowskiP)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"mismatched locations": {"WEATHER_LOCATION_CITY": "Kalush,Lviv", "WEATHER_LOCATION_COUNTRY": "UA"},
		"empty country":        {"WEATHER_LOCATION_CITY": "Kalush", "WEATHER_LOCATION_COUNTRY": " "},
		"bad interval":         {"FETCH_INTERVAL": "often"},
		"bad reduce time":      {"REDUCE_AT": "25:99"},
		"unknown reducer":      {"MODEL_REDUCER": "cosine"},
		"too many days":        {"FORECAST_DAYS": "30"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("WEATHER_LOCATION_CITY", "")
			t.Setenv("WEATHER_LOCATION_COUNTRY", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MODEL_LIMIT=12\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("WEATHER_LOCATION_CITY", "")
	t.Setenv("WEATHER_LOCATION_COUNTRY", "")
	// godotenv does not override variables that are already set.
	t.Setenv("MODEL_LIMIT", "")
	os.Unsetenv("MODEL_LIMIT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Model.Limit)
	assert.NoError(t, cfg.DotEnvErr)
}

func TestDefaultFeatures(t *testing.T) {
	fs, err := LoadFeatures("", splitTagger{})
	require.NoError(t, err)
	require.Len(t, fs.Features, 15)
	assert.Equal(t, ensemble.Path{"weather_date"}, fs.LabelPath)
	assert.True(t, fs.Periodic["wind_direction_max"])
	assert.Equal(t, []string{"class"}, fs.Select)

	doc := weather.Observation{
		WeatherDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Temperature: weather.Span(4, 11),
		Description: "Heavy Snow",
	}.Document()
	byName := make(map[string]ensemble.Feature)
	for _, f := range fs.Features {
		byName[f.Name] = f
	}
	v, err := ensemble.Retrieve(byName["temperature_max"], doc)
	require.NoError(t, err)
	assert.Equal(t, 11.0, v)
	v, err = ensemble.Retrieve(byName["class"], doc)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	v, err = ensemble.Retrieve(byName["humidity_min"], doc)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v), "missing bound")
}

func TestParseFeaturesErrors(t *testing.T) {
	cases := map[string]string{
		"no features":       "label: weather_date\n",
		"missing path":      "features:\n  - {name: a}\n",
		"duplicate":         "features:\n  - {name: a, path: x}\n  - {name: a, path: y}\n",
		"unknown transform": "features:\n  - {name: a, path: x, transforms: [fourier]}\n",
		"empty classes":     "features:\n  - {name: a, path: x, transforms: [word_class]}\n",
		"not yaml":          "features: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFeatures([]byte(doc), splitTagger{})
			require.ErrorIs(t, err, ensemble.ErrConfiguration)
		})
	}
}

func TestParseFeaturesRadial(t *testing.T) {
	fs, err := ParseFeatures([]byte("features:\n  - {name: dir, path: wind, transforms: [radial]}\n"), nil)
	require.NoError(t, err)
	v, err := ensemble.Retrieve(fs.Features[0], ensemble.Document{"wind": []any{0.9, 0.1}})
	require.NoError(t, err)
	assert.InDelta(t, 1.1, v, 1e-9)
}

func TestLoadFeaturesMissingFile(t *testing.T) {
	_, err := LoadFeatures(filepath.Join(t.TempDir(), "nope.yaml"), splitTagger{})
	require.Error(t, err)
}
