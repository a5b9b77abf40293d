package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

var validate = validator.New()

type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	// GeocoderAPIKey resolves coordinates for Open-Meteo.
	GeocoderAPIKey string

	// FetchInterval controls how often forecasts are fetched for each location.
	FetchInterval time.Duration `validate:"gt=0"`
	// ReduceAt is the UTC time of day ("15:04") of the daily reduce/produce run.
	ReduceAt string `validate:"required,datetime=15:04"`

	// Locations to track.
	Locations []weather.Location `validate:"dive"`

	// Store retention.
	StoreMaxHistory int           `validate:"gte=0"` // max weather dates per series (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of weather dates (0 = unlimited)
	// DataDir holds the badger database; empty keeps everything in memory.
	DataDir string

	Port        string        `validate:"required,numeric"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	Model    ModelConfig
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`

	// DotEnvErr is why .env was not loaded. It is informational only.
	DotEnvErr error `validate:"-"`
}

// ModelConfig drives the reduce and produce runs.
type ModelConfig struct {
	// Limit is the number of most recent days learned from.
	Limit int `validate:"gt=0"`
	// MaxDistance is the largest forecast distance modelled.
	MaxDistance int `validate:"gte=0"`
	// ForecastDays is how many days each provider is asked for.
	ForecastDays int     `validate:"gt=0,lte=16"`
	Reducer      string  `validate:"omitempty,oneof=euclidean l2 minkowski l1 manhattan"`
	MinkowskiP   float64 `validate:"gte=0"`
	// FeaturesFile overrides the built-in feature map.
	FeaturesFile string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{DotEnvErr: godotenv.Load()}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "6h"); err != nil {
		return nil, err
	}
	cfg.ReduceAt = getenvDefault("REDUCE_AT", "01:00")

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 250)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "0s"); err != nil {
		return nil, err
	}
	cfg.DataDir = os.Getenv("DATA_DIR")

	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.Model = ModelConfig{
		Limit:        getenvInt("MODEL_LIMIT", 30),
		MaxDistance:  getenvInt("MODEL_MAX_DISTANCE", 6),
		ForecastDays: getenvInt("FORECAST_DAYS", 7),
		Reducer:      strings.ToLower(getenvDefault("MODEL_REDUCER", "euclidean")),
		MinkowskiP:   getenvFloat("MODEL_MINKOWSKI_P", 2),
		FeaturesFile: os.Getenv("FEATURES_FILE"),
	}
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadLocations pairs the comma separated WEATHER_LOCATION_CITY and
// WEATHER_LOCATION_COUNTRY lists.
func loadLocations() ([]weather.Location, error) {
	city := strings.TrimSpace(os.Getenv("WEATHER_LOCATION_CITY"))
	country := strings.TrimSpace(os.Getenv("WEATHER_LOCATION_COUNTRY"))
	if city == "" && country == "" {
		return nil, nil
	}
	cities := strings.Split(city, ",")
	countries := strings.Split(country, ",")
	if len(cities) != len(countries) {
		return nil, fmt.Errorf("number of cities and countries must be the same")
	}
	locs := make([]weather.Location, 0, len(cities))
	for i := range cities {
		locs = append(locs, weather.Location{
			City:    strings.TrimSpace(cities[i]),
			Country: strings.TrimSpace(countries[i]),
		})
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
