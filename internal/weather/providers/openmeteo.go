package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

// GeocodeFunc resolves a location to latitude and longitude.
type GeocodeFunc func(loc weather.Location) (lat, lon float64, err error)

// GoogleGeocoder resolves locations through the Google geocoding API.
func GoogleGeocoder(apiKey string) GeocodeFunc {
	geocoder.ApiKey = apiKey
	return func(loc weather.Location) (float64, float64, error) {
		res, err := geocoder.Geocoding(geocoder.Address{City: loc.City, Country: loc.Country})
		if err != nil {
			return 0, 0, fmt.Errorf("geocode %s: %w", loc.Key(), err)
		}
		return res.Latitude, res.Longitude, nil
	}
}

// OpenMeteoProvider implements weather.Provider for the Open-Meteo daily
// forecast. It also implements weather.Observer: Open-Meteo serves past days
// from its reanalysis archive, which is used as the actual weather.
type OpenMeteoProvider struct {
	name    string
	api     *endpoint
	geocode GeocodeFunc
	now     func() time.Time

	mu     sync.Mutex
	coords map[string][2]float64
}

func NewOpenMeteoProvider(client *http.Client, geocode GeocodeFunc) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		api:     newEndpoint("openmeteo", "https://api.open-meteo.com/v1/forecast", client, DefaultBackoff),
		geocode: geocode,
		now:     time.Now,
		coords:  make(map[string][2]float64),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

var (
	openMeteoDaily = "temperature_2m_max,temperature_2m_min,apparent_temperature_max,apparent_temperature_min," +
		"precipitation_probability_max,wind_speed_10m_max,wind_speed_10m_min,wind_direction_10m_dominant,weather_code"
	openMeteoHourly = "surface_pressure,relative_humidity_2m"
)

type openMeteoPayload struct {
	Daily struct {
		Time         []string   `json:"time"`
		TempMax      []*float64 `json:"temperature_2m_max"`
		TempMin      []*float64 `json:"temperature_2m_min"`
		FeelsMax     []*float64 `json:"apparent_temperature_max"`
		FeelsMin     []*float64 `json:"apparent_temperature_min"`
		Precip       []*float64 `json:"precipitation_probability_max"`
		WindMax      []*float64 `json:"wind_speed_10m_max"`
		WindMin      []*float64 `json:"wind_speed_10m_min"`
		WindDir      []*float64 `json:"wind_direction_10m_dominant"`
		WeatherCodes []*int     `json:"weather_code"`
	} `json:"daily"`
	Hourly struct {
		Time     []string   `json:"time"`
		Pressure []*float64 `json:"surface_pressure"`
		Humidity []*float64 `json:"relative_humidity_2m"`
	} `json:"hourly"`
}

func (p *OpenMeteoProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.Observation, error) {
	values, err := p.query(loc)
	if err != nil {
		return nil, err
	}
	values.Set("forecast_days", strconv.Itoa(days))

	obs, err := p.fetch(ctx, loc, p.name, values)
	if err != nil {
		return nil, err
	}
	if len(obs) > days {
		obs = obs[:days]
	}
	return obs, nil
}

// Observe returns the weather of day as an ActualSource observation at
// distance 0.
func (p *OpenMeteoProvider) Observe(ctx context.Context, loc weather.Location, day time.Time) (weather.Observation, error) {
	values, err := p.query(loc)
	if err != nil {
		return weather.Observation{}, err
	}
	date := weather.Day(day).Format(time.DateOnly)
	values.Set("start_date", date)
	values.Set("end_date", date)

	obs, err := p.fetch(ctx, loc, weather.ActualSource, values)
	if err != nil {
		return weather.Observation{}, err
	}
	for _, o := range obs {
		if o.Label() == date {
			o.Distance = 0
			return o, nil
		}
	}
	return weather.Observation{}, fmt.Errorf("openmeteo: no observation for %s on %s", loc.Key(), date)
}

func (p *OpenMeteoProvider) query(loc weather.Location) (url.Values, error) {
	lat, lon, err := p.coordinates(loc)
	if err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", lat))
	values.Set("longitude", fmt.Sprintf("%f", lon))
	values.Set("daily", openMeteoDaily)
	values.Set("hourly", openMeteoHourly)
	values.Set("timezone", "UTC")
	return values, nil
}

func (p *OpenMeteoProvider) coordinates(loc weather.Location) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.coords[loc.Key()]; ok {
		return c[0], c[1], nil
	}
	if p.geocode == nil {
		return 0, 0, fmt.Errorf("no geocoder configured for %s", loc.Key())
	}
	lat, lon, err := p.geocode(loc)
	if err != nil {
		return 0, 0, err
	}
	p.coords[loc.Key()] = [2]float64{lat, lon}
	return lat, lon, nil
}

func (p *OpenMeteoProvider) fetch(ctx context.Context, loc weather.Location, source string, values url.Values) ([]weather.Observation, error) {
	var payload openMeteoPayload
	if err := p.api.getJSON(ctx, values, &payload); err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}

	pressure := make(map[string]*dailyRange)
	humidity := make(map[string]*dailyRange)
	for i, ts := range payload.Hourly.Time {
		if len(ts) < len(time.DateOnly) {
			continue
		}
		k := ts[:len(time.DateOnly)]
		if pressure[k] == nil {
			pressure[k], humidity[k] = &dailyRange{}, &dailyRange{}
		}
		if v := at(payload.Hourly.Pressure, i); v != nil {
			pressure[k].add(hpaToMmHg(*v))
		}
		humidity[k].addPtr(at(payload.Hourly.Humidity, i))
	}

	d := payload.Daily
	now := p.now()
	out := make([]weather.Observation, 0, len(d.Time))
	for i, ts := range d.Time {
		date, err := time.Parse(time.DateOnly, ts)
		if err != nil {
			return nil, fmt.Errorf("openmeteo: bad daily time %q: %w", ts, err)
		}
		obs := weather.NewObservation(source, loc, date, now)
		obs.Temperature = weather.Range{Min: at(d.TempMin, i), Max: at(d.TempMax, i)}
		obs.FeelsTemperature = weather.Range{Min: at(d.FeelsMin, i), Max: at(d.FeelsMax, i)}
		obs.Precipitation = pointOf(at(d.Precip, i))
		obs.WindSpeed = weather.Range{Min: kmhToMS(at(d.WindMin, i)), Max: kmhToMS(at(d.WindMax, i))}
		if dir := at(d.WindDir, i); dir != nil {
			obs.WindDirection = weather.Point(turns(*dir))
		}
		if r := pressure[ts]; r != nil {
			obs.Pressure = r.Range()
			obs.Humidity = humidity[ts].Range()
		}
		if code := at(d.WeatherCodes, i); code != nil {
			obs.Description = describeOpenMeteoCode(*code)
		}
		out = append(out, obs)
	}
	return out, nil
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func pointOf(v *float64) weather.Range {
	if v == nil {
		return weather.Range{}
	}
	return weather.Point(*v)
}

func kmhToMS(v *float64) *float64 {
	if v == nil {
		return nil
	}
	ms := *v / 3.6
	return &ms
}

// describeOpenMeteoCode renders WMO weather codes as text.
func describeOpenMeteoCode(code int) string {
	switch {
	case code == 0:
		return "clear sky, sun"
	case code >= 1 && code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle rain"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain shower"
	case code == 85 || code == 86:
		return "snow shower"
	case code >= 95:
		return "thunderstorm"
	default:
		return ""
	}
}
