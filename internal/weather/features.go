package weather

import (
	"math"

	"github.com/i474232898/weather-ensemble/internal/ensemble"
)

// FeatureSet is what the service extracts from observations and how each
// feature is modelled.
type FeatureSet struct {
	LabelPath ensemble.Path
	Features  []ensemble.Feature
	// Periodic features hold values in turns and are compared on the circle.
	Periodic map[string]bool
	// Select lists features whose learned weights keep only the best source.
	Select []string
}

func (fs FeatureSet) alignConfig(limit int) ensemble.AlignConfig {
	return ensemble.AlignConfig{Features: fs.Features, LabelPath: fs.LabelPath, Limit: limit}
}

func (fs FeatureSet) weightPostProcessors() map[string][]ensemble.PostProcessor {
	if len(fs.Select) == 0 {
		return nil
	}
	pp := make(map[string][]ensemble.PostProcessor, len(fs.Select))
	for _, name := range fs.Select {
		pp[name] = []ensemble.PostProcessor{ensemble.MaxWeight{}}
	}
	return pp
}

// dataPostProcessors folds fused periodic values back into [0, 1).
func (fs FeatureSet) dataPostProcessors() map[string][]ensemble.PostProcessor {
	if len(fs.Periodic) == 0 {
		return nil
	}
	pp := make(map[string][]ensemble.PostProcessor, len(fs.Periodic))
	for name := range fs.Periodic {
		pp[name] = []ensemble.PostProcessor{wrapTurns{}}
	}
	return pp
}

type wrapTurns struct{}

func (wrapTurns) Process(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x - math.Floor(x)
	}
	return out
}

// unwrapPeriodic rewrites every predicted cell of periodic features onto the
// representation closest to the first row of ref for the same label, so a
// forecast of 0.95 turns against an observed 0.05 counts as 0.1 apart rather
// than 0.9. ref is the truth when learning and the data itself when fusing.
func (fs FeatureSet) unwrapPeriodic(predicted, ref *ensemble.Bundle) error {
	for name := range fs.Periodic {
		x, ok := predicted.Matrices[name]
		if !ok {
			continue
		}
		t, ok := ref.Matrices[name]
		if !ok || t.Cols != x.Cols {
			continue
		}
		x = x.Clone()
		for j := 0; j < x.Cols; j++ {
			ref := t.At(0, j)
			for i := 0; i < x.Rows; i++ {
				v := x.At(i, j)
				if math.IsNaN(v) || math.IsNaN(ref) {
					continue
				}
				adj, err := ensemble.Radial{}.Apply([2]float64{ref, v})
				if err != nil {
					return err
				}
				x.Set(i, j, adj.(float64))
			}
		}
		predicted.Matrices[name] = x
	}
	return nil
}
