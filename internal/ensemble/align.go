package ensemble

import (
	"cmp"
	"container/heap"
	"fmt"
	"iter"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultLabelKey is where weather documents carry their alignment label.
const DefaultLabelKey = "weather_date"

// DefaultLabelPath is the path form of DefaultLabelKey.
var DefaultLabelPath = Path{DefaultLabelKey}

// Stream is one source's records. Records is consumed exactly once per
// alignment call.
type Stream struct {
	Name    string
	Records iter.Seq2[Document, error]
}

// StreamOf wraps in-memory documents as a stream.
func StreamOf(name string, docs ...Document) Stream {
	return Stream{
		Name: name,
		Records: func(yield func(Document, error) bool) {
			for _, d := range docs {
				if !yield(d, nil) {
					return
				}
			}
		},
	}
}

// StreamFromRows builds a stream from a column of values keyed by label,
// storing each value under feature name at the document root. It is the
// tabular counterpart of document streams and is mostly useful in tools
// and tests.
func StreamFromRows(name, feature string, labels []string, values []float64) Stream {
	docs := make([]Document, 0, len(labels))
	for i, l := range labels {
		var v any
		if i < len(values) && !math.IsNaN(values[i]) {
			v = values[i]
		}
		docs = append(docs, Document{DefaultLabelKey: l, feature: v})
	}
	return StreamOf(name, docs...)
}

// AlignConfig describes which features to extract and how labels are chosen.
type AlignConfig struct {
	Features []Feature
	// LabelPath locates the label in each document. Defaults to DefaultLabelPath.
	LabelPath Path
	// Limit caps the number of labels; zero or negative means no cap.
	Limit int
	// Labels, when set, fixes the label axis for Intersect and restricts the
	// candidate labels for Union.
	Labels []string
}

func (c AlignConfig) labelPath() Path {
	if len(c.LabelPath) == 0 {
		return DefaultLabelPath
	}
	return c.LabelPath
}

// Aligner builds aligned predicted and truth bundles from raw streams. The
// truth bundle is nil when no truth stream is given.
type Aligner interface {
	Align(sources []Stream, truth *Stream) (*Bundle, *Bundle, error)
}

// Intersect keeps only labels present in every source and in the truth.
type Intersect struct {
	Config AlignConfig
}

// Union keeps every label seen by any source and backfills missing cells
// from other sources.
type Union struct {
	Config AlignConfig
}

type series struct {
	name    string
	order   []string
	byLabel map[string]Document
}

func collect(s Stream, labelPath Path) (*series, error) {
	out := &series{name: s.Name, byLabel: make(map[string]Document)}
	if s.Records == nil {
		return out, nil
	}
	for doc, err := range s.Records {
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Name, err)
		}
		label, err := LabelOf(labelPath, doc)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Name, err)
		}
		if _, seen := out.byLabel[label]; !seen {
			out.order = append(out.order, label)
		}
		out.byLabel[label] = doc
	}
	return out, nil
}

func collectAll(cfg AlignConfig, sources []Stream, truth *Stream) ([]*series, *series, error) {
	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("%w: no sources to align", ErrConfiguration)
	}
	if len(cfg.Features) == 0 {
		return nil, nil, fmt.Errorf("%w: no features to align", ErrConfiguration)
	}
	all := make([]*series, 0, len(sources))
	for _, s := range sources {
		ser, err := collect(s, cfg.labelPath())
		if err != nil {
			return nil, nil, err
		}
		all = append(all, ser)
	}
	if truth == nil {
		return all, nil, nil
	}
	t, err := collect(*truth, cfg.labelPath())
	if err != nil {
		return nil, nil, err
	}
	return all, t, nil
}

func (a Intersect) Align(sources []Stream, truth *Stream) (*Bundle, *Bundle, error) {
	all, t, err := collectAll(a.Config, sources, truth)
	if err != nil {
		return nil, nil, err
	}
	labels := a.Config.Labels
	if labels == nil {
		labels = intersectLabels(all, t, a.Config.Limit)
	}
	return buildBundles(a.Config.Features, all, t, labels, false)
}

func intersectLabels(all []*series, truth *series, limit int) []string {
	var candidates []string
	if truth != nil {
		candidates = truth.order
	} else {
		candidates = all[0].order
	}
	labels := make([]string, 0, len(candidates))
	for _, l := range candidates {
		inAll := true
		for _, s := range all {
			if _, ok := s.byLabel[l]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			labels = append(labels, l)
		}
	}
	sort.SliceStable(labels, func(i, j int) bool { return compareLabels(labels[i], labels[j]) > 0 })
	if limit > 0 && len(labels) > limit {
		labels = labels[:limit]
	}
	return labels
}

func (a Union) Align(sources []Stream, truth *Stream) (*Bundle, *Bundle, error) {
	all, t, err := collectAll(a.Config, sources, truth)
	if err != nil {
		return nil, nil, err
	}
	var allowed map[string]bool
	if a.Config.Labels != nil {
		allowed = make(map[string]bool, len(a.Config.Labels))
		for _, l := range a.Config.Labels {
			allowed[l] = true
		}
	}
	q := newLabelQueue()
	for _, s := range all {
		for _, l := range s.order {
			if t != nil {
				if _, ok := t.byLabel[l]; !ok {
					continue
				}
			}
			if allowed != nil && !allowed[l] {
				continue
			}
			q.Add(l)
		}
	}
	labels := q.Drain()
	if limit := a.Config.Limit; limit > 0 && len(labels) > limit {
		labels = labels[len(labels)-limit:]
	}
	return buildBundles(a.Config.Features, all, t, labels, true)
}

func buildBundles(features []Feature, all []*series, truth *series, labels []string, fill bool) (*Bundle, *Bundle, error) {
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.name
	}
	predicted := &Bundle{Matrices: make(map[string]*Matrix, len(features)), Sources: names, Labels: labels}
	for _, f := range features {
		m, err := featureMatrix(f, all, labels)
		if err != nil {
			return nil, nil, err
		}
		if fill {
			FillMissing(m)
		}
		predicted.Matrices[f.Name] = m
	}
	if err := predicted.Validate(); err != nil {
		return nil, nil, err
	}
	if truth == nil {
		return predicted, nil, nil
	}

	actual := &Bundle{Matrices: make(map[string]*Matrix, len(features)), Sources: []string{truth.name}, Labels: labels}
	for _, f := range features {
		m, err := featureMatrix(f, []*series{truth}, labels)
		if err != nil {
			return nil, nil, err
		}
		actual.Matrices[f.Name] = m
	}
	if err := actual.Validate(); err != nil {
		return nil, nil, err
	}
	return predicted, actual, nil
}

func featureMatrix(f Feature, all []*series, labels []string) (*Matrix, error) {
	rows := make([][]float64, len(all))
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.name
		row := make([]float64, len(labels))
		for j, l := range labels {
			doc, ok := s.byLabel[l]
			if !ok {
				row[j] = math.NaN()
				continue
			}
			v, err := Retrieve(f, doc)
			if err != nil {
				return nil, fmt.Errorf("source %q label %q: %w", s.name, l, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return StackRows(f.Name, names, rows)
}

// StackRows stacks one row per source into a matrix. All rows must have the
// length of the first one.
func StackRows(feature string, sources []string, rows [][]float64) (*Matrix, error) {
	if len(rows) != len(sources) {
		return nil, shapeErr(ErrShapeMismatch, feature, len(rows), len(sources))
	}
	if len(rows) == 0 {
		return NewMatrix(0, 0), nil
	}
	width := len(rows[0])
	m := NewMatrix(len(rows), width)
	for i, row := range rows {
		if len(row) != width {
			return nil, &ShapeError{Err: ErrHeterogeneousData, Feature: feature, Source: sources[i], Got: len(row), Want: width}
		}
		copy(m.Row(i), row)
	}
	return m, nil
}

// FillMissing replaces every NaN cell with the first non-NaN value of the
// same column, scanning rows top to bottom. Columns with no value at all
// stay NaN.
func FillMissing(m *Matrix) {
	for j := 0; j < m.Cols; j++ {
		first := math.NaN()
		for i := 0; i < m.Rows; i++ {
			if v := m.At(i, j); !math.IsNaN(v) {
				first = v
				break
			}
		}
		if math.IsNaN(first) {
			continue
		}
		for i := 0; i < m.Rows; i++ {
			if math.IsNaN(m.At(i, j)) {
				m.Set(i, j, first)
			}
		}
	}
}

// compareLabels orders labels by value: numeric labels numerically and
// before any text label, the rest as text. Dates render as ISO text, which
// already sorts chronologically.
func compareLabels(a, b string) int {
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(x, y); c != 0 {
			return c
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// labelQueue is a min-heap of labels that ignores duplicates.
type labelQueue struct {
	items labelHeap
	seen  map[string]struct{}
}

func newLabelQueue() *labelQueue {
	return &labelQueue{seen: make(map[string]struct{})}
}

func (q *labelQueue) Add(label string) {
	if _, ok := q.seen[label]; ok {
		return
	}
	q.seen[label] = struct{}{}
	heap.Push(&q.items, label)
}

// Drain pops every label in ascending order.
func (q *labelQueue) Drain() []string {
	out := make([]string, 0, q.items.Len())
	for q.items.Len() > 0 {
		out = append(out, heap.Pop(&q.items).(string))
	}
	q.seen = make(map[string]struct{})
	return out
}

type labelHeap []string

func (h labelHeap) Len() int           { return len(h) }
func (h labelHeap) Less(i, j int) bool { return compareLabels(h[i], h[j]) < 0 }
func (h labelHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *labelHeap) Push(x any) { *h = append(*h, x.(string)) }

func (h *labelHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
