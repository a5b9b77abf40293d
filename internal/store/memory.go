package store

import (
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

// ErrNotFound is returned when no data is available for a given query.
var ErrNotFound = weather.ErrNotFound

// series holds one source's observations for one (location, distance),
// keyed by label. A later fetch of the same day replaces the earlier one.
type series struct {
	location weather.Location
	distance int
	byLabel  map[string]weather.Observation
}

var _ weather.Store = (*MemoryStore)(nil)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: seriesKey(location, source, distance)
	observations map[string]*series
	weights      map[string][]weather.WeightRecord
	produced     map[string]map[string]weather.ProducedRecord
	errors       map[string]map[string]weather.ErrorRecord

	// retention configuration
	maxHistory int           // max number of weather dates per series
	maxAge     time.Duration // optional max age of weather dates

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		observations: make(map[string]*series),
		weights:      make(map[string][]weather.WeightRecord),
		produced:     make(map[string]map[string]weather.ProducedRecord),
		errors:       make(map[string]map[string]weather.ErrorRecord),
		maxHistory:   maxHistory,
		maxAge:       maxAge,
		now:          time.Now,
	}
}

// SaveObservations upserts observations and enforces retention on every
// touched series.
func (s *MemoryStore) SaveObservations(obs []weather.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]*series)
	for _, o := range obs {
		key := seriesKey(o.Location, o.Source, o.Distance)
		sr, ok := s.observations[key]
		if !ok {
			sr = &series{location: o.Location, distance: o.Distance, byLabel: make(map[string]weather.Observation)}
			s.observations[key] = sr
		}
		sr.byLabel[o.Label()] = o
		touched[key] = sr
	}
	for _, sr := range touched {
		s.enforceRetention(sr)
	}
	return nil
}

func (s *MemoryStore) enforceRetention(sr *series) {
	if s.maxAge > 0 {
		cutoff := weather.Day(s.now().Add(-s.maxAge))
		for label, o := range sr.byLabel {
			if o.WeatherDate.Before(cutoff) {
				delete(sr.byLabel, label)
			}
		}
	}
	if s.maxHistory > 0 && len(sr.byLabel) > s.maxHistory {
		labels := sortedLabels(sr.byLabel)
		for _, l := range labels[:len(labels)-s.maxHistory] {
			delete(sr.byLabel, l)
		}
	}
}

// Observations returns the series selected by q, oldest first.
func (s *MemoryStore) Observations(q weather.Query) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.observations[seriesKey(q.Location, q.Source, q.Distance)]
	if !ok || len(sr.byLabel) == 0 {
		return nil, ErrNotFound
	}
	labels := sortedLabels(sr.byLabel)
	if q.Limit > 0 && len(labels) > q.Limit {
		labels = labels[len(labels)-q.Limit:]
	}
	out := make([]weather.Observation, 0, len(labels))
	for _, l := range labels {
		out = append(out, sr.byLabel[l])
	}
	return out, nil
}

// MaxDistance returns the largest stored forecast distance for loc.
func (s *MemoryStore) MaxDistance(loc weather.Location) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best, found := 0, false
	for _, sr := range s.observations {
		if sr.location != loc || len(sr.byLabel) == 0 {
			continue
		}
		if !found || sr.distance > best {
			best, found = sr.distance, true
		}
	}
	if !found {
		return 0, ErrNotFound
	}
	return best, nil
}

// SaveWeights upserts the record for its (location, distance, day).
func (s *MemoryStore) SaveWeights(rec weather.WeightRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := modelKey(rec.Location, rec.Distance)
	recs := s.weights[key]
	for i := range recs {
		if recs[i].Updated.Equal(rec.Updated) {
			recs[i] = rec
			return nil
		}
	}
	s.weights[key] = append(recs, rec)
	return nil
}

// LatestWeights returns the most recently updated weights.
func (s *MemoryStore) LatestWeights(loc weather.Location, distance int) (weather.WeightRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.weights[modelKey(loc, distance)]
	if len(recs) == 0 {
		return weather.WeightRecord{}, ErrNotFound
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if r.Updated.After(latest.Updated) {
			latest = r
		}
	}
	return latest, nil
}

// SaveProduced upserts fused output per label.
func (s *MemoryStore) SaveProduced(recs []weather.ProducedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		key := modelKey(r.Location, r.Distance)
		if s.produced[key] == nil {
			s.produced[key] = make(map[string]weather.ProducedRecord)
		}
		s.produced[key][r.Label] = r
	}
	return nil
}

// Produced returns the fused output ordered by label.
func (s *MemoryStore) Produced(loc weather.Location, distance int) ([]weather.ProducedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLabel := s.produced[modelKey(loc, distance)]
	if len(byLabel) == 0 {
		return nil, ErrNotFound
	}
	out := make([]weather.ProducedRecord, 0, len(byLabel))
	for _, l := range sortedLabels(byLabel) {
		out = append(out, byLabel[l])
	}
	return out, nil
}

// SaveErrors upserts cross-validation errors per label.
func (s *MemoryStore) SaveErrors(recs []weather.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		key := modelKey(r.Location, r.Distance)
		if s.errors[key] == nil {
			s.errors[key] = make(map[string]weather.ErrorRecord)
		}
		s.errors[key][r.Label] = r
	}
	return nil
}

// Errors returns cross-validation errors ordered by label.
func (s *MemoryStore) Errors(loc weather.Location, distance int) ([]weather.ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLabel := s.errors[modelKey(loc, distance)]
	if len(byLabel) == 0 {
		return nil, ErrNotFound
	}
	out := make([]weather.ErrorRecord, 0, len(byLabel))
	for _, l := range sortedLabels(byLabel) {
		out = append(out, byLabel[l])
	}
	return out, nil
}

func sortedLabels[V any](m map[string]V) []string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
