package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) record(op string, loc weather.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+loc.City)
}

func (f *fakeRunner) FetchAndStore(ctx context.Context, loc weather.Location) error {
	f.record("fetch", loc)
	if loc.City == "Lviv" {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakeRunner) Reduce(ctx context.Context, loc weather.Location, maxDistance, limit int) ([]weather.WeightRecord, error) {
	f.record("reduce", loc)
	return nil, nil
}

func (f *fakeRunner) Produce(ctx context.Context, loc weather.Location, maxDistance, limit int) ([]weather.ProducedRecord, error) {
	f.record("produce", loc)
	return nil, nil
}

var locations = []weather.Location{{City: "Kalush", Country: "UA"}, {City: "Lviv", Country: "UA"}}

func TestStartWithoutLocations(t *testing.T) {
	s := New(Config{ReduceAt: "01:00"}, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Empty(t, s.scheduler.Jobs())
	s.Stop()
}

func TestStartSchedulesFetchAndModel(t *testing.T) {
	s := New(Config{Locations: locations, FetchInterval: time.Hour, ReduceAt: "01:00"}, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.scheduler.Jobs(), 2)
}

func TestStartRejectsBadReduceTime(t *testing.T) {
	s := New(Config{Locations: locations, FetchInterval: time.Hour, ReduceAt: "noon"}, &fakeRunner{}, zerolog.Nop())
	require.Error(t, s.Start())
}

func TestFetchAllVisitsEveryLocation(t *testing.T) {
	r := &fakeRunner{}
	s := New(Config{Locations: locations}, r, zerolog.Nop())
	s.fetchAll()
	assert.ElementsMatch(t, []string{"fetch:Kalush", "fetch:Lviv"}, r.calls)
}

func TestModelAllReducesBeforeProducing(t *testing.T) {
	r := &fakeRunner{}
	s := New(Config{Locations: locations[:1], MaxDistance: 3, Limit: 10}, r, zerolog.Nop())
	s.modelAll()
	assert.Equal(t, []string{"reduce:Kalush", "produce:Kalush"}, r.calls)
}
