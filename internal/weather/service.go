package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
	"github.com/i474232898/weather-ensemble/internal/metrics"
)

// ErrNoReadings is returned by FetchAndStore when no provider returned data.
var ErrNoReadings = errors.New("no successful provider readings")

// Service orchestrates fetching from multiple providers, learning per-source
// weights and producing the fused forecast.
type Service struct {
	store     Store
	providers []Provider
	observer  Observer
	features  FeatureSet
	reducer   ensemble.Reducer
	metrics   *metrics.Metrics
	log       zerolog.Logger

	forecastDays int
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver sets the source of observed weather.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithReducer sets the distance metric used for learning and validation.
func WithReducer(r ensemble.Reducer) Option {
	return func(s *Service) { s.reducer = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithForecastDays sets how many days each provider is asked for.
func WithForecastDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.forecastDays = days
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider, features FeatureSet, opts ...Option) *Service {
	s := &Service{
		store:        store,
		providers:    providers,
		features:     features,
		reducer:      ensemble.Euclidean{},
		log:          zerolog.Nop(),
		forecastDays: 7,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sources returns the names of the configured forecast providers.
func (s *Service) Sources() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// FetchAndStore fetches forecasts from all providers concurrently, plus the
// observed weather of yesterday, and stores every successful reading.
// A failing provider is logged and skipped.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	if len(s.providers) == 0 {
		return fmt.Errorf("no weather providers configured")
	}
	log := s.log.With().Str("location", loc.Key()).Logger()

	var (
		g   errgroup.Group
		mu  sync.Mutex
		obs []Observation
	)
	for _, p := range s.providers {
		g.Go(func() error {
			start := time.Now()
			got, err := p.FetchForecast(ctx, loc, s.forecastDays)
			s.metrics.ObserveFetch(p.Name(), time.Since(start), len(got), err)
			if err != nil {
				log.Warn().Err(err).Str("source", p.Name()).Msg("forecast fetch failed")
				return nil
			}
			mu.Lock()
			obs = append(obs, got...)
			mu.Unlock()
			return nil
		})
	}
	if s.observer != nil {
		g.Go(func() error {
			day := Day(s.now()).AddDate(0, 0, -1)
			start := time.Now()
			o, err := s.observer.Observe(ctx, loc, day)
			n := 1
			if err != nil {
				n = 0
			}
			s.metrics.ObserveFetch(ActualSource, time.Since(start), n, err)
			if err != nil {
				log.Warn().Err(err).Time("day", day).Msg("observation fetch failed")
				return nil
			}
			mu.Lock()
			obs = append(obs, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(obs) == 0 {
		return fmt.Errorf("%w for %s", ErrNoReadings, loc.Key())
	}
	if err := s.store.SaveObservations(obs); err != nil {
		return fmt.Errorf("store observations: %w", err)
	}
	log.Debug().Int("observations", len(obs)).Msg("stored readings")
	return nil
}

// Reduce learns weights for every forecast distance from 0 to maxDistance,
// clamped to the largest distance stored for loc. A negative maxDistance
// means all stored distances. limit caps the number of most recent days
// learned from. A failing distance is logged and the loop continues; an
// error is returned only when no distance succeeded.
func (s *Service) Reduce(ctx context.Context, loc Location, maxDistance, limit int) ([]WeightRecord, error) {
	var out []WeightRecord
	err := s.eachDistance(ctx, "reduce", loc, maxDistance, func(d int) error {
		rec, err := s.reduceDistance(loc, d, limit)
		if err == nil {
			out = append(out, rec)
		}
		return err
	})
	return out, err
}

func (s *Service) reduceDistance(loc Location, d, limit int) (WeightRecord, error) {
	streams, err := s.streams(loc, d, s.Sources(), false)
	if err != nil {
		return WeightRecord{}, err
	}
	truth, err := s.truth(loc)
	if err != nil {
		return WeightRecord{}, err
	}
	predicted, actual, err := ensemble.Union{Config: s.features.alignConfig(limit)}.Align(streams, &truth)
	if err != nil {
		return WeightRecord{}, err
	}
	if err := s.features.unwrapPeriodic(predicted, actual); err != nil {
		return WeightRecord{}, err
	}
	est := ensemble.NewEstimator(s.reducer, ensemble.WithWeightPostProcessors(s.features.weightPostProcessors()))
	ws, err := est.Reduce(predicted, actual)
	if err != nil {
		return WeightRecord{}, err
	}
	rec := WeightRecord{
		Location: loc,
		Distance: d,
		Updated:  Day(s.now()),
		Sources:  ws.Sources,
		Weights:  ws.Weights,
	}
	if err := s.store.SaveWeights(rec); err != nil {
		return WeightRecord{}, fmt.Errorf("store weights: %w", err)
	}
	s.log.Debug().Str("location", loc.Key()).Int("distance", d).Int("days", len(predicted.Labels)).Msg("weights learned")
	return rec, nil
}

// Produce fuses the latest forecasts of every distance with the learned
// weights and stores the result. Where observed weather overlaps the
// forecasts, the cross-validation error of the fused forecast is stored as
// well. Distances without weights of their own use the weights of distance 0.
func (s *Service) Produce(ctx context.Context, loc Location, maxDistance, limit int) ([]ProducedRecord, error) {
	var out []ProducedRecord
	err := s.eachDistance(ctx, "produce", loc, maxDistance, func(d int) error {
		recs, err := s.produceDistance(loc, d, limit)
		out = append(out, recs...)
		return err
	})
	return out, err
}

func (s *Service) produceDistance(loc Location, d, limit int) ([]ProducedRecord, error) {
	wrec, err := s.weightsFor(loc, d)
	if err != nil {
		return nil, err
	}
	ws, err := wrec.WeightSet()
	if err != nil {
		return nil, err
	}
	est := ensemble.NewEstimator(s.reducer,
		ensemble.WithWeights(ws),
		ensemble.WithDataPostProcessors(s.features.dataPostProcessors()),
	)

	// Streams follow the weight rows; a source without data at this
	// distance is backfilled from the others.
	streams, err := s.streams(loc, d, ws.Sources, true)
	if err != nil {
		return nil, err
	}
	data, _, err := ensemble.Union{Config: s.features.alignConfig(limit)}.Align(streams, nil)
	if err != nil {
		return nil, err
	}
	if err := s.features.unwrapPeriodic(data, data); err != nil {
		return nil, err
	}
	fused, err := est.Produce(data)
	if err != nil {
		return nil, err
	}

	updated := s.now().UTC()
	recs := make([]ProducedRecord, 0, len(fused.Labels))
	for j, label := range fused.Labels {
		values := make(map[string]float64, len(fused.Matrices))
		for name, m := range fused.Matrices {
			values[name] = m.At(0, j)
		}
		recs = append(recs, ProducedRecord{
			Location: loc,
			Distance: d,
			Label:    label,
			Updated:  updated,
			Sources:  ws.Sources,
			Values:   values,
		})
	}
	if len(recs) > 0 {
		if err := s.store.SaveProduced(recs); err != nil {
			return nil, fmt.Errorf("store produced: %w", err)
		}
	}

	if err := s.crossValidate(est, loc, d, limit, ws.Sources); err != nil {
		s.log.Warn().Err(err).Str("location", loc.Key()).Int("distance", d).Msg("cross-validation skipped")
	}
	return recs, nil
}

// crossValidate measures the fused forecast against observed weather on the
// days both are known.
func (s *Service) crossValidate(est *ensemble.Estimator, loc Location, d, limit int, sources []string) error {
	truth, err := s.truth(loc)
	if err != nil {
		return err
	}
	streams, err := s.streams(loc, d, sources, true)
	if err != nil {
		return err
	}
	predicted, actual, err := ensemble.Intersect{Config: s.features.alignConfig(limit)}.Align(streams, &truth)
	if err != nil {
		return err
	}
	if len(predicted.Labels) == 0 {
		return fmt.Errorf("%w: no observed days overlap the forecasts", ErrNotFound)
	}
	if err := s.features.unwrapPeriodic(predicted, actual); err != nil {
		return err
	}
	fused, err := est.Produce(predicted)
	if err != nil {
		return err
	}
	if err := s.features.unwrapPeriodic(fused, actual); err != nil {
		return err
	}
	cv, err := est.Validate(fused, actual)
	if err != nil {
		return err
	}

	names := cv.Features()
	values := make(map[string]float64, len(names))
	errs := make([]float64, 0, len(names))
	for _, name := range names {
		v := cv.Matrices[name].At(0, 0)
		values[name] = v
		errs = append(errs, v)
	}
	now := s.now().UTC()
	rec := ErrorRecord{
		Location: loc,
		Distance: d,
		Label:    Day(now).Format(LabelLayout),
		Updated:  now,
		Sources:  sources,
		Values:   values,
	}
	if err := s.store.SaveErrors([]ErrorRecord{rec}); err != nil {
		return fmt.Errorf("store errors: %w", err)
	}
	if len(errs) > 0 {
		s.metrics.SetCrossValidation(loc.Key(), strconv.Itoa(d), stat.Mean(errs, nil))
	}
	return nil
}

// eachDistance runs fn for distances 0..maxDistance, clamped to the stored
// maximum.
func (s *Service) eachDistance(ctx context.Context, op string, loc Location, maxDistance int, fn func(d int) error) error {
	top, err := s.store.MaxDistance(loc)
	if err != nil {
		return err
	}
	if maxDistance < 0 || maxDistance > top {
		maxDistance = top
	}
	log := s.log.With().Str("op", op).Str("location", loc.Key()).Logger()

	var (
		errs []error
		ok   int
	)
	for d := 0; d <= maxDistance; d++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(d)
		s.metrics.ObserveRun(op, err)
		if err != nil {
			log.Warn().Err(err).Int("distance", d).Msg("distance failed")
			errs = append(errs, fmt.Errorf("distance %d: %w", d, err))
			continue
		}
		ok++
	}
	if ok == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info().Int("distances", ok).Int("failed", len(errs)).Msg("run finished")
	return nil
}

// weightsFor returns the latest weights of distance d, falling back to
// distance 0.
func (s *Service) weightsFor(loc Location, d int) (WeightRecord, error) {
	rec, err := s.store.LatestWeights(loc, d)
	if errors.Is(err, ErrNotFound) && d != 0 {
		rec, err = s.store.LatestWeights(loc, 0)
	}
	if err != nil {
		return WeightRecord{}, fmt.Errorf("weights for distance %d: %w", d, err)
	}
	return rec, nil
}

// streams loads the stored series of each source at distance d. Sources
// without data are dropped, or kept as empty streams when keepEmpty is set.
func (s *Service) streams(loc Location, d int, sources []string, keepEmpty bool) ([]ensemble.Stream, error) {
	out := make([]ensemble.Stream, 0, len(sources))
	found := 0
	for _, name := range sources {
		obs, err := s.store.Observations(Query{Location: loc, Source: name, Distance: d})
		switch {
		case errors.Is(err, ErrNotFound):
			if keepEmpty {
				out = append(out, ensemble.StreamOf(name))
			}
			continue
		case err != nil:
			return nil, err
		}
		out = append(out, observationStream(name, obs))
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: no forecasts at distance %d", ErrNotFound, d)
	}
	return out, nil
}

func (s *Service) truth(loc Location) (ensemble.Stream, error) {
	obs, err := s.store.Observations(Query{Location: loc, Source: ActualSource})
	if err != nil {
		return ensemble.Stream{}, fmt.Errorf("observed weather: %w", err)
	}
	return observationStream(ActualSource, obs), nil
}

func observationStream(name string, obs []Observation) ensemble.Stream {
	docs := make([]ensemble.Document, len(obs))
	for i, o := range obs {
		docs[i] = o.Document()
	}
	return ensemble.StreamOf(name, docs...)
}

// Weights returns the latest learned weights.
func (s *Service) Weights(loc Location, distance int) (WeightRecord, error) {
	return s.store.LatestWeights(loc, distance)
}

// Forecast returns the fused forecast, optionally restricted to labels from
// `from` on (inclusive).
func (s *Service) Forecast(loc Location, distance int, from string) ([]ProducedRecord, error) {
	recs, err := s.store.Produced(loc, distance)
	if err != nil || from == "" {
		return recs, err
	}
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Label >= from })
	if i == len(recs) {
		return nil, ErrNotFound
	}
	return recs[i:], nil
}

// Errors returns the stored cross-validation errors.
func (s *Service) Errors(loc Location, distance int) ([]ErrorRecord, error) {
	return s.store.Errors(loc, distance)
}
