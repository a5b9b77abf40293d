package ensemble

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Reducer measures a non-negative distance between a predicted series and
// the reference series. Both slices have the same length.
type Reducer interface {
	Reduce(predicted, truth []float64) float64
}

// Euclidean is the sum of squared differences.
type Euclidean struct{}

func (Euclidean) Reduce(predicted, truth []float64) float64 {
	diff := make([]float64, len(predicted))
	floats.SubTo(diff, predicted, truth)
	return floats.Dot(diff, diff)
}

func (Euclidean) String() string { return "euclidean" }

// Minkowski is the L-P distance. P <= 0 is treated as 1.
type Minkowski struct {
	P float64
}

func (m Minkowski) Reduce(predicted, truth []float64) float64 {
	p := m.P
	if p <= 0 {
		p = 1
	}
	return floats.Distance(predicted, truth, p)
}

func (m Minkowski) String() string { return fmt.Sprintf("minkowski(p=%g)", m.P) }

// ParseReducer builds a reducer from its configured name.
func ParseReducer(name string, p float64) (Reducer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "euclidean", "l2":
		return Euclidean{}, nil
	case "minkowski":
		return Minkowski{P: p}, nil
	case "l1", "manhattan":
		return Minkowski{P: 1}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reducer %q", ErrConfiguration, name)
	}
}
