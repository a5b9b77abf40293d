package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
	"github.com/i474232898/weather-ensemble/internal/metrics"
	"github.com/i474232898/weather-ensemble/internal/store"
	"github.com/i474232898/weather-ensemble/internal/weather"
)

var (
	paris = weather.Location{City: "Paris", Country: "FR"}
	day0  = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

type staticProvider string

func (p staticProvider) Name() string { return string(p) }

func (p staticProvider) FetchForecast(ctx context.Context, loc weather.Location, days int) ([]weather.Observation, error) {
	return nil, context.DeadlineExceeded
}

func newTestApp(t *testing.T, seed bool) *fiber.App {
	t.Helper()
	memStore := store.NewMemoryStore(10, 0)
	if seed {
		var obs []weather.Observation
		for day := 1; day <= 3; day++ {
			for _, src := range []struct {
				name     string
				distance int
				offset   float64
			}{{weather.ActualSource, 0, 0}, {"a", 1, 0}, {"b", 1, 4}} {
				o := weather.NewObservation(src.name, paris, day0.AddDate(0, 0, day), day0.AddDate(0, 0, day-src.distance))
				o.Temperature = weather.Span(0, 10+float64(day)+src.offset)
				obs = append(obs, o)
			}
		}
		if err := memStore.SaveObservations(obs); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	features := weather.FeatureSet{Features: []ensemble.Feature{
		{Name: "temperature_max", Path: ensemble.Path{"temperature", "max"}},
	}}
	reg := prometheus.NewRegistry()
	svc := weather.NewService(memStore, []weather.Provider{staticProvider("a"), staticProvider("b")}, features,
		weather.WithMetrics(metrics.New(metrics.WithRegisterer(reg))),
		weather.WithClock(func() time.Time { return day0.AddDate(0, 0, 5) }),
	)
	app := NewApp("weather-ensemble-test", reg)
	RegisterRoutes(app, svc, ModelDefaults{MaxDistance: 6, Limit: 30})
	return app
}

func do(t *testing.T, app *fiber.App, method, target string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
	}
	return resp, out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

// TestQueryValidation verifies that location and distance parameters are
// checked before the service is called.
func TestQueryValidation(t *testing.T) {
	app := newTestApp(t, false)

	for _, target := range []string{
		"/api/v1/weights?country=FR",
		"/api/v1/weights?city=Paris&country=FR&distance=-1",
		"/api/v1/weights?city=Paris&country=FR&distance=two",
		"/api/v1/forecast?city=Paris&country=FR&from=yesterday",
		"/api/v1/errors?city=Paris",
	} {
		resp, body := do(t, app, http.MethodGet, target)
		expectStatus(t, resp, http.StatusBadRequest)
		if body["error"] != true {
			t.Fatalf("%s: expected error body, got %v", target, body)
		}
	}

	resp, _ := do(t, app, http.MethodPost, "/api/v1/reduce?city=Paris&country=FR&limit=-3")
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t, false)
	for _, target := range []string{
		"/api/v1/weights?city=Paris&country=FR",
		"/api/v1/forecast?city=Paris&country=FR&distance=1",
		"/api/v1/errors?city=Paris&country=FR",
	} {
		resp, _ := do(t, app, http.MethodGet, target)
		expectStatus(t, resp, http.StatusNotFound)
	}

	resp, _ := do(t, app, http.MethodPost, "/api/v1/produce?city=Paris&country=FR")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestReduceProduceRoundTrip(t *testing.T) {
	app := newTestApp(t, true)

	resp, body := do(t, app, http.MethodPost, "/api/v1/reduce?city=Paris&country=FR")
	expectStatus(t, resp, http.StatusOK)
	if recs, _ := body["weights"].([]any); len(recs) != 1 {
		t.Fatalf("expected weights for one distance, got %v", body["weights"])
	}

	resp, body = do(t, app, http.MethodGet, "/api/v1/weights?city=Paris&country=FR&distance=1")
	expectStatus(t, resp, http.StatusOK)
	w := body["weights"].(map[string]any)["temperature_max"].([]any)
	if w[0].(float64) != 1 || w[1].(float64) != 0 {
		t.Fatalf("expected all weight on the exact source, got %v", w)
	}

	resp, _ = do(t, app, http.MethodPost, "/api/v1/produce?city=Paris&country=FR&max=1")
	expectStatus(t, resp, http.StatusOK)

	resp, body = do(t, app, http.MethodGet, "/api/v1/forecast?city=Paris&country=FR&distance=1&from=2024-05-04")
	expectStatus(t, resp, http.StatusOK)
	forecast := body["forecast"].([]any)
	if len(forecast) != 1 {
		t.Fatalf("expected one fused day, got %d", len(forecast))
	}
	values := forecast[0].(map[string]any)["values"].(map[string]any)
	if values["temperature_max"].(float64) != 13 {
		t.Fatalf("expected fused 13, got %v", values["temperature_max"])
	}

	resp, body = do(t, app, http.MethodGet, "/api/v1/errors?city=Paris&country=FR&distance=1")
	expectStatus(t, resp, http.StatusOK)
	if body["latestMean"].(float64) != 0 {
		t.Fatalf("expected zero cross-validation error, got %v", body["latestMean"])
	}
}

func TestFetchWithFailingProviders(t *testing.T) {
	app := newTestApp(t, false)
	resp, _ := do(t, app, http.MethodPost, "/api/v1/fetch?city=Paris&country=FR")
	expectStatus(t, resp, http.StatusBadGateway)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, true)

	resp, body := do(t, app, http.MethodGet, "/health")
	expectStatus(t, resp, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}

	do(t, app, http.MethodPost, "/api/v1/reduce?city=Paris&country=FR")
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectStatus(t, resp, http.StatusOK)
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "weather_ensemble_model_runs_total") {
		t.Fatalf("expected model run counter in metrics output")
	}
}
