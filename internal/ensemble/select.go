package ensemble

import "gonum.org/v1/gonum/floats"

// PostProcessor rewrites a weight vector or a produced row.
type PostProcessor interface {
	Process(v []float64) []float64
}

// MaxWeight keeps only the largest entry: 1 at the first maximum, 0 elsewhere.
// Applied to weights it selects the single best source.
type MaxWeight struct{}

func (MaxWeight) Process(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	out[floats.MaxIdx(v)] = 1
	return out
}

// Select is MaxWeight as a function.
func Select(v []float64) []float64 {
	return MaxWeight{}.Process(v)
}
