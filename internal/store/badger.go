package store

import (
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/i474232898/weather-ensemble/internal/weather"
)

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger sets the badger logger. If nil, badger output is discarded.
	Logger badger.Logger

	// MaxHistory caps the weather dates kept per observation series (0 = unlimited).
	MaxHistory int

	// MaxAge expires observations this long after their weather date (0 = never).
	MaxAge time.Duration
}

var _ weather.Store = (*BadgerStore)(nil)

// BadgerStore persists observations and model output in BadgerDB, encoding
// records with msgpack.
type BadgerStore struct {
	db         *badger.DB
	maxHistory int
	maxAge     time.Duration
	now        func() time.Time
}

// NewBadgerStore opens a BadgerDB-backed weather.Store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(nil)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, maxHistory: opts.MaxHistory, maxAge: opts.MaxAge, now: time.Now}, nil
}

// Close releases the underlying database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) SaveObservations(obs []weather.Observation) error {
	touched := make(map[string]struct{})
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, o := range obs {
			val, err := msgpack.Marshal(o)
			if err != nil {
				return err
			}
			e := badger.NewEntry([]byte(join(seriesKey(o.Location, o.Source, o.Distance), o.Label())), val)
			if b.maxAge > 0 {
				ttl := o.WeatherDate.Add(b.maxAge).Sub(b.now())
				if ttl <= 0 {
					continue
				}
				e = e.WithTTL(ttl)
			}
			if err := txn.SetEntry(e); err != nil {
				return err
			}
			touched[seriesKey(o.Location, o.Source, o.Distance)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if b.maxHistory <= 0 {
		return nil
	}
	for key := range touched {
		if err := b.trim(key); err != nil {
			return err
		}
	}
	return nil
}

// trim drops the oldest labels of a series beyond maxHistory.
func (b *BadgerStore) trim(series string) error {
	keys, err := b.keys(series + sep)
	if err != nil || len(keys) <= b.maxHistory {
		return err
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys[:len(keys)-b.maxHistory] {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) Observations(q weather.Query) ([]weather.Observation, error) {
	out, err := scan[weather.Observation](b.db, seriesKey(q.Location, q.Source, q.Distance)+sep)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func (b *BadgerStore) MaxDistance(loc weather.Location) (int, error) {
	prefix := locationPrefix(loc)
	keys, err := b.keys(prefix)
	if err != nil {
		return 0, err
	}
	best, found := 0, false
	for _, k := range keys {
		d, ok := distanceOf(string(k), prefix)
		if ok && (!found || d > best) {
			best, found = d, true
		}
	}
	if !found {
		return 0, ErrNotFound
	}
	return best, nil
}

func (b *BadgerStore) SaveWeights(rec weather.WeightRecord) error {
	key := join(prefixWeights, modelKey(rec.Location, rec.Distance), rec.Updated.UTC().Format(time.RFC3339))
	return b.put(key, rec)
}

// LatestWeights relies on RFC 3339 UTC stamps sorting chronologically.
func (b *BadgerStore) LatestWeights(loc weather.Location, distance int) (weather.WeightRecord, error) {
	recs, err := scan[weather.WeightRecord](b.db, join(prefixWeights, modelKey(loc, distance))+sep)
	if err != nil {
		return weather.WeightRecord{}, err
	}
	if len(recs) == 0 {
		return weather.WeightRecord{}, ErrNotFound
	}
	return recs[len(recs)-1], nil
}

func (b *BadgerStore) SaveProduced(recs []weather.ProducedRecord) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, r := range recs {
			if err := set(txn, join(prefixProduced, modelKey(r.Location, r.Distance), r.Label), r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) Produced(loc weather.Location, distance int) ([]weather.ProducedRecord, error) {
	out, err := scan[weather.ProducedRecord](b.db, join(prefixProduced, modelKey(loc, distance))+sep)
	if err == nil && len(out) == 0 {
		err = ErrNotFound
	}
	return out, err
}

func (b *BadgerStore) SaveErrors(recs []weather.ErrorRecord) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, r := range recs {
			if err := set(txn, join(prefixErrors, modelKey(r.Location, r.Distance), r.Label), r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) Errors(loc weather.Location, distance int) ([]weather.ErrorRecord, error) {
	out, err := scan[weather.ErrorRecord](b.db, join(prefixErrors, modelKey(loc, distance))+sep)
	if err == nil && len(out) == 0 {
		err = ErrNotFound
	}
	return out, err
}

func (b *BadgerStore) put(key string, v any) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return set(txn, key, v)
	})
}

func set(txn *badger.Txn, key string, v any) error {
	val, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), val)
}

// keys lists the keys under prefix in ascending order without reading values.
func (b *BadgerStore) keys(prefix string) ([][]byte, error) {
	var out [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(prefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			out = append(out, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return out, err
}

// scan decodes every value under prefix in ascending key order.
func scan[T any](db *badger.DB, prefix string) ([]T, error) {
	var out []T
	err := db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(prefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var v T
				if err := msgpack.Unmarshal(val, &v); err != nil {
					return err
				}
				out = append(out, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
