package ensemble

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// ErrorLabel is the single label of bundles returned by Validate.
	ErrorLabel = "error"
	// FusedSource names the single source row of combined bundles.
	FusedSource = "ensemble"
)

// Estimator learns per-source weights from historical error and applies
// them to new data. An Estimator is not safe for concurrent use; build one
// per (location, distance) being modelled.
type Estimator struct {
	reducer Reducer
	weights *WeightSet

	weightPost map[string][]PostProcessor
	dataPost   map[string][]PostProcessor
}

// EstimatorOption customizes an Estimator.
type EstimatorOption func(*Estimator)

// WithWeightPostProcessors runs the given post-processors on the learned
// weights of each listed feature.
func WithWeightPostProcessors(p map[string][]PostProcessor) EstimatorOption {
	return func(e *Estimator) {
		e.weightPost = p
	}
}

// WithDataPostProcessors runs the given post-processors on each produced
// feature row.
func WithDataPostProcessors(p map[string][]PostProcessor) EstimatorOption {
	return func(e *Estimator) {
		e.dataPost = p
	}
}

// WithWeights seeds the estimator with previously learned weights.
func WithWeights(w *WeightSet) EstimatorOption {
	return func(e *Estimator) {
		e.weights = w
	}
}

// NewEstimator returns an estimator measuring error with r (Euclidean if nil).
func NewEstimator(r Reducer, opts ...EstimatorOption) *Estimator {
	if r == nil {
		r = Euclidean{}
	}
	e := &Estimator{reducer: r}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns the current weight state, nil before the first Reduce.
func (e *Estimator) Weights() *WeightSet {
	return e.weights
}

// SetWeights replaces the current weight state.
func (e *Estimator) SetWeights(w *WeightSet) {
	e.weights = w
}

// Reduce learns one weight per source and feature from the distance between
// each source's series and the truth, and stores the result as the
// estimator's state.
func (e *Estimator) Reduce(predicted, truth *Bundle) (*WeightSet, error) {
	errs, err := sourceErrors(predicted, truth, e.reducer, true)
	if err != nil {
		return nil, err
	}
	ws := &WeightSet{Sources: append([]string(nil), predicted.Sources...), Weights: make(map[string][]float64, len(errs))}
	for name, v := range errs {
		w := ReverseNormalize(v)
		for _, p := range e.weightPost[name] {
			w = p.Process(w)
		}
		ws.Weights[name] = w
	}
	e.weights = ws
	return ws, nil
}

// Produce combines data using the stored weights.
func (e *Estimator) Produce(data *Bundle) (*Bundle, error) {
	res, err := Combine(e.weights, data)
	if err != nil {
		return nil, err
	}
	for name, m := range res.Matrices {
		for _, p := range e.dataPost[name] {
			copy(m.Row(0), p.Process(m.Row(0)))
		}
	}
	return res, nil
}

// Validate measures the error of data against truth with the estimator's reducer.
func (e *Estimator) Validate(data, truth *Bundle) (*Bundle, error) {
	return Validate(data, truth, e.reducer)
}

// Combine computes, per feature, the weighted sum across sources for every
// label. Features without weights are left out of the result. data is not
// modified. The result has one source row, FusedSource. When both sides
// name their sources, weights are matched to data rows by name.
func Combine(ws *WeightSet, data *Bundle) (*Bundle, error) {
	rows, err := weightRows(ws, data.Sources)
	if err != nil {
		return nil, err
	}
	res := &Bundle{
		Matrices: make(map[string]*Matrix),
		Sources:  []string{FusedSource},
		Labels:   append([]string(nil), data.Labels...),
	}
	for _, name := range data.Features() {
		x := data.Matrices[name]
		if x.Cols != len(data.Labels) {
			return nil, shapeErr(ErrLabelCountMismatch, name, x.Cols, len(data.Labels))
		}
		w, ok := ws.For(name)
		if !ok {
			continue
		}
		if len(w) != x.Rows {
			return nil, shapeErr(ErrShapeMismatch, name, len(w), x.Rows)
		}
		if rows != nil {
			ordered := make([]float64, len(rows))
			for i, k := range rows {
				ordered[i] = w[k]
			}
			w = ordered
		}
		res.Matrices[name] = weightedSum(w, x.Neutralized())
	}
	return res, nil
}

// weightRows returns, for each data source, the index of its weight. It is
// nil when no reordering is needed or either side is unnamed.
func weightRows(ws *WeightSet, sources []string) ([]int, error) {
	if ws == nil || len(ws.Sources) == 0 || len(sources) == 0 || slices.Equal(ws.Sources, sources) {
		return nil, nil
	}
	if len(ws.Sources) != len(sources) {
		return nil, &ShapeError{Err: ErrShapeMismatch, Got: len(sources), Want: len(ws.Sources), Source: sources[0]}
	}
	rows := make([]int, len(sources))
	for i, name := range sources {
		k := slices.Index(ws.Sources, name)
		if k < 0 {
			return nil, &ShapeError{Err: ErrShapeMismatch, Source: name, Got: len(sources), Want: len(ws.Sources)}
		}
		rows[i] = k
	}
	return rows, nil
}

func weightedSum(w []float64, x *Matrix) *Matrix {
	out := NewMatrix(1, x.Cols)
	if x.Rows == 0 || x.Cols == 0 {
		return out
	}
	xm := mat.NewDense(x.Rows, x.Cols, x.Data)
	wv := mat.NewVecDense(len(w), append([]float64(nil), w...))
	var sum mat.VecDense
	sum.MulVec(xm.T(), wv)
	for j := 0; j < x.Cols; j++ {
		out.Set(0, j, sum.AtVec(j))
	}
	return out
}

// Validate returns, per feature, one error per source (a column with the
// single label ErrorLabel). It does not touch any learned weights.
func Validate(data, truth *Bundle, r Reducer) (*Bundle, error) {
	if r == nil {
		r = Euclidean{}
	}
	errs, err := sourceErrors(data, truth, r, false)
	if err != nil {
		return nil, err
	}
	res := &Bundle{
		Matrices: make(map[string]*Matrix, len(errs)),
		Sources:  append([]string(nil), data.Sources...),
		Labels:   []string{ErrorLabel},
	}
	for name, v := range errs {
		res.Matrices[name] = &Matrix{Rows: len(v), Cols: 1, Data: v}
	}
	return res, nil
}

// sourceErrors computes reducer(row, truth) / len(labels) for every source
// row of every feature. Missing cells on either side count as 0.
func sourceErrors(data, truth *Bundle, r Reducer, strict bool) (map[string][]float64, error) {
	if data == nil || truth == nil {
		return nil, fmt.Errorf("%w: data and truth bundles are required", ErrShapeMismatch)
	}
	out := make(map[string][]float64, len(data.Matrices))
	for _, name := range data.Features() {
		x := data.Matrices[name]
		if strict && x.Cols == 0 {
			return nil, shapeErr(ErrEmptyPrediction, name, 0, len(data.Labels))
		}
		if x.Cols != len(data.Labels) {
			return nil, shapeErr(ErrLabelCountMismatch, name, x.Cols, len(data.Labels))
		}
		t, ok := truth.Matrices[name]
		if !ok || t.Rows < 1 {
			return nil, shapeErr(ErrShapeMismatch, name, 0, 1)
		}
		if t.Cols != x.Cols {
			return nil, shapeErr(ErrShapeMismatch, name, t.Cols, x.Cols)
		}
		y := t.Neutralized().Row(0)
		n := float64(len(y))
		if n == 0 {
			n = 1
		}
		clean := x.Neutralized()
		errs := make([]float64, clean.Rows)
		for i := range errs {
			errs[i] = r.Reduce(clean.Row(i), y) / n
		}
		out[name] = errs
	}
	return out, nil
}

// Normalize scales v to sum to 1. A zero sum yields [1, 0, 0, ...].
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	s := floats.Sum(v)
	if s == 0 {
		if len(out) > 0 {
			out[0] = 1
		}
		return out
	}
	for i, x := range v {
		out[i] = x / s
	}
	return out
}

// ReverseNormalize turns errors into weights: larger error, smaller weight,
// summing to 1. When every error is zero the first source takes all weight.
func ReverseNormalize(errs []float64) []float64 {
	if floats.Sum(errs) == 0 {
		return Normalize(make([]float64, len(errs)))
	}
	n := Normalize(errs)
	for i := range n {
		n[i] = 1 - n[i]
	}
	return Normalize(n)
}
