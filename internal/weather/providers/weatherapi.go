package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/weather-ensemble/internal/common"
	"github.com/i474232898/weather-ensemble/internal/weather"
)

// WeatherAPIProvider implements weather.Provider for the WeatherAPI.com
// forecast endpoint.
type WeatherAPIProvider struct {
	name   string
	apiKey string
	api    *endpoint
	now    func() time.Time
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:   "weatherapi",
		apiKey: apiKey,
		api:    newEndpoint("weatherapi", "https://api.weatherapi.com/v1/forecast.json", client, DefaultBackoff),
		now:    time.Now,
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.Observation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w", errNoAPIKey)
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", location(loc))
	values.Set("days", strconv.Itoa(days))

	var payload struct {
		Forecast struct {
			Forecastday []struct {
				Date string `json:"date"`
				Day  struct {
					MaxTempC          float64 `json:"maxtemp_c"`
					MinTempC          float64 `json:"mintemp_c"`
					MaxWindKph        float64 `json:"maxwind_kph"`
					DailyChanceOfRain float64 `json:"daily_chance_of_rain"`
					DailyChanceOfSnow float64 `json:"daily_chance_of_snow"`
					Condition         struct {
						Text string `json:"text"`
					} `json:"condition"`
				} `json:"day"`
				Hour []struct {
					FeelsLikeC float64 `json:"feelslike_c"`
					PressureMb float64 `json:"pressure_mb"`
					Humidity   float64 `json:"humidity"`
					WindKph    float64 `json:"wind_kph"`
					WindDegree float64 `json:"wind_degree"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := p.api.getJSON(ctx, values, &payload); err != nil {
		return nil, fmt.Errorf("weatherapi: %w", err)
	}

	now := p.now()
	out := make([]weather.Observation, 0, days)
	for _, fd := range payload.Forecast.Forecastday {
		if len(out) >= days {
			break
		}
		date, err := time.Parse(time.DateOnly, fd.Date)
		if err != nil {
			return nil, fmt.Errorf("weatherapi: bad forecast date %q: %w", fd.Date, err)
		}

		var feels, pressure, humidity, wind, dir dailyRange
		for _, h := range fd.Hour {
			feels.add(h.FeelsLikeC)
			pressure.add(hpaToMmHg(h.PressureMb))
			humidity.add(h.Humidity)
			wind.add(h.WindKph / 3.6)
			dir.add(turns(h.WindDegree))
		}

		obs := weather.NewObservation(p.name, loc, date, now)
		obs.Temperature = weather.Span(fd.Day.MinTempC, fd.Day.MaxTempC)
		obs.FeelsTemperature = feels.Range()
		obs.Pressure = pressure.Range()
		obs.Humidity = humidity.Range()
		obs.WindDirection = dir.Range()
		obs.WindSpeed = wind.Range()
		if obs.WindSpeed.Max == nil {
			obs.WindSpeed = weather.Point(fd.Day.MaxWindKph / 3.6)
		}
		obs.Description = fd.Day.Condition.Text
		obs.Precipitation = weather.Point(chanceOfPrecipitation(obs.Description, fd.Day.DailyChanceOfRain, fd.Day.DailyChanceOfSnow))
		out = append(out, obs)
	}
	return out, nil
}

// chanceOfPrecipitation picks the snow probability for wintry conditions and
// the rain probability otherwise.
func chanceOfPrecipitation(text string, rain, snow float64) float64 {
	if common.HasAny(text, "snow", "sleet", "blizzard", "ice") {
		return snow
	}
	return rain
}
