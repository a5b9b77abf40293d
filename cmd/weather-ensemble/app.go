package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-ensemble/internal/config"
	"github.com/i474232898/weather-ensemble/internal/ensemble"
	"github.com/i474232898/weather-ensemble/internal/logging"
	"github.com/i474232898/weather-ensemble/internal/metrics"
	"github.com/i474232898/weather-ensemble/internal/nlp"
	"github.com/i474232898/weather-ensemble/internal/store"
	"github.com/i474232898/weather-ensemble/internal/weather"
	"github.com/i474232898/weather-ensemble/internal/weather/providers"
)

// app holds everything the commands share.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	registry *prometheus.Registry
	service  *weather.Service
	close    func() error
}

func bootstrap() (*app, error) {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	if cfg.DotEnvErr != nil {
		log.Info().Err(cfg.DotEnvErr).Msg("no .env file loaded")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metrics.WithRegisterer(registry))

	// Badger when a data directory is configured, memory otherwise.
	var (
		st        weather.Store
		closeFunc = func() error { return nil }
	)
	if cfg.DataDir != "" {
		b, err := store.NewBadgerStore(store.BadgerOptions{
			Dir:        cfg.DataDir,
			Logger:     logging.Badger{Log: logging.Component(log, "badger")},
			MaxHistory: cfg.StoreMaxHistory,
			MaxAge:     cfg.StoreMaxAge,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st, closeFunc = b, b.Close
	} else {
		log.Warn().Msg("DATA_DIR not set; observations are kept in memory only")
		st = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
	}

	features, err := config.LoadFeatures(cfg.Model.FeaturesFile, nlp.NewProseTagger())
	if err != nil {
		_ = closeFunc()
		return nil, err
	}
	reducer, err := ensemble.ParseReducer(cfg.Model.Reducer, cfg.Model.MinkowskiP)
	if err != nil {
		_ = closeFunc()
		return nil, err
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Providers with resilience (backoff + circuit breaker).
	var provs []weather.Provider
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}
	opts := []weather.Option{
		weather.WithReducer(reducer),
		weather.WithMetrics(m),
		weather.WithLogger(logging.Component(log, "ensemble")),
		weather.WithForecastDays(cfg.Model.ForecastDays),
	}
	// Open-Meteo does not require an API key, but geocoding requires a Google API key.
	// It is both a forecast source and the observed weather.
	if cfg.GeocoderAPIKey != "" {
		om := providers.NewOpenMeteoProvider(httpClient, providers.GoogleGeocoder(cfg.GeocoderAPIKey))
		provs = append(provs, om)
		opts = append(opts, weather.WithObserver(om))
	} else {
		log.Warn().Msg("GEOCODER_API_KEY not set; no observed weather will be collected")
	}

	// Core service orchestrating providers and store.
	service := weather.NewService(st, provs, features, opts...)

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		service:  service,
		close:    closeFunc,
	}, nil
}

// locations returns the location given on the command line, or every
// configured one.
func (a *app) locations(city, country string) ([]weather.Location, error) {
	if city != "" || country != "" {
		loc := weather.Location{City: city, Country: country}
		if city == "" || country == "" {
			return nil, fmt.Errorf("both --city and --country are required")
		}
		return []weather.Location{loc}, nil
	}
	if len(a.cfg.Locations) == 0 {
		return nil, fmt.Errorf("no location given and WEATHER_LOCATION_CITY is not set")
	}
	return a.cfg.Locations, nil
}
