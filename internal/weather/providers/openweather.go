package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

// OpenWeatherProvider implements weather.Provider for the OpenWeatherMap
// 5 day / 3 hour forecast, folded into daily ranges.
type OpenWeatherProvider struct {
	name   string
	apiKey string
	api    *endpoint
	now    func() time.Time
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:   "openweathermap",
		apiKey: apiKey,
		api:    newEndpoint("openweather", "https://api.openweathermap.org/data/2.5/forecast", client, DefaultBackoff),
		now:    time.Now,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owmSlot struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Pop     float64 `json:"pop"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.Observation, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w", errNoAPIKey)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("q", location(loc))

	var payload struct {
		List []owmSlot `json:"list"`
	}
	if err := p.api.getJSON(ctx, values, &payload); err != nil {
		return nil, fmt.Errorf("openweather: %w", err)
	}

	type day struct {
		temp, feels, pressure, humidity, precip, wind, dir dailyRange
		descriptions                                       map[string]int
	}
	byDay := make(map[time.Time]*day)
	for _, s := range payload.List {
		k := weather.Day(time.Unix(s.Dt, 0))
		d, ok := byDay[k]
		if !ok {
			d = &day{descriptions: make(map[string]int)}
			byDay[k] = d
		}
		d.temp.add(s.Main.Temp)
		d.feels.add(s.Main.FeelsLike)
		d.pressure.add(hpaToMmHg(s.Main.Pressure))
		d.humidity.add(s.Main.Humidity)
		d.precip.add(s.Pop * 100)
		d.wind.add(s.Wind.Speed)
		d.dir.add(turns(s.Wind.Deg))
		if len(s.Weather) > 0 {
			d.descriptions[s.Weather[0].Description]++
		}
	}

	keys := make([]time.Time, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	now := p.now()
	today := weather.Day(now)
	out := make([]weather.Observation, 0, days)
	for _, k := range keys {
		if k.Before(today) {
			continue
		}
		if len(out) >= days {
			break
		}
		d := byDay[k]
		obs := weather.NewObservation(p.name, loc, k, now)
		obs.Temperature = d.temp.Range()
		obs.FeelsTemperature = d.feels.Range()
		obs.Pressure = d.pressure.Range()
		obs.Humidity = d.humidity.Range()
		obs.Precipitation = d.precip.Range()
		obs.WindSpeed = d.wind.Range()
		obs.WindDirection = d.dir.Range()
		obs.Description = majority(d.descriptions)
		out = append(out, obs)
	}
	return out, nil
}

// majority picks the most frequent description, alphabetically first on ties.
func majority(counts map[string]int) string {
	best, bestCount := "", 0
	for desc, n := range counts {
		if n > bestCount || (n == bestCount && desc < best) {
			best, bestCount = desc, n
		}
	}
	return best
}

// hpaToMmHg converts pressure from hectopascal to millimetres of mercury.
func hpaToMmHg(hpa float64) float64 {
	return hpa * 0.750062
}
