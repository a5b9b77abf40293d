package ensemble

import (
	"fmt"
	"math"
)

// Radial moves a periodic value expressed in turns (1 == full circle) onto
// the representation closest to a reference value. Its input is a pair
// (reference, value); the output is the adjusted value.
type Radial struct{}

func (Radial) Apply(v any) (any, error) {
	pair, err := toPair(v)
	if err != nil {
		return nil, fmt.Errorf("radial: %w", err)
	}
	ref, val := pair[0], pair[1]
	lo, hi := math.Min(ref, val), math.Max(ref, val)
	if hi-lo < math.Abs(hi-lo-1) {
		return val, nil
	}
	if ref > val {
		return val + 1, nil
	}
	return val - 1, nil
}

func toPair(v any) ([2]float64, error) {
	var out [2]float64
	switch p := v.(type) {
	case [2]float64:
		return p, nil
	case []float64:
		if len(p) != 2 {
			return out, fmt.Errorf("expected a pair, got %d values", len(p))
		}
		copy(out[:], p)
		return out, nil
	case []any:
		if len(p) != 2 {
			return out, fmt.Errorf("expected a pair, got %d values", len(p))
		}
		for i, x := range p {
			f, err := toFloat(x)
			if err != nil {
				return out, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return out, fmt.Errorf("expected a pair, got %T", v)
	}
}
