package ensemble

import (
	"math"
	"sort"
)

// Matrix is a dense row-major matrix. Zero-sized dimensions are allowed.
// Missing cells hold NaN.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// NewMatrix allocates a rows x cols matrix filled with zeros.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// NewMissingMatrix allocates a rows x cols matrix filled with NaN.
func NewMissingMatrix(rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = math.NaN()
	}
	return m
}

// RowVector builds a 1 x len(values) matrix.
func RowVector(values ...float64) *Matrix {
	data := make([]float64, len(values))
	copy(data, values)
	return &Matrix{Rows: 1, Cols: len(values), Data: data}
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// Row returns row i. The slice shares storage with the matrix.
func (m *Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	out := make([]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		out[i] = m.At(i, j)
	}
	return out
}

func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Data: data}
}

// Neutralized returns a copy of m with every missing cell replaced by 0.
func (m *Matrix) Neutralized() *Matrix {
	out := m.Clone()
	for i, v := range out.Data {
		if math.IsNaN(v) {
			out.Data[i] = 0
		}
	}
	return out
}

// Bundle is the unit exchanged between alignment, learning and combination:
// one matrix per feature with sources on rows and labels on columns.
type Bundle struct {
	Matrices map[string]*Matrix
	Sources  []string
	Labels   []string
}

// NewBundle builds a bundle and checks every matrix against both axes.
func NewBundle(sources, labels []string, matrices map[string]*Matrix) (*Bundle, error) {
	b := &Bundle{Matrices: matrices, Sources: sources, Labels: labels}
	if b.Matrices == nil {
		b.Matrices = make(map[string]*Matrix)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate reports the first feature whose matrix does not match the axes.
func (b *Bundle) Validate() error {
	for _, name := range b.Features() {
		m := b.Matrices[name]
		if m == nil {
			return shapeErr(ErrShapeMismatch, name, 0, len(b.Labels))
		}
		if m.Rows != len(b.Sources) {
			return shapeErr(ErrShapeMismatch, name, m.Rows, len(b.Sources))
		}
		if m.Cols != len(b.Labels) {
			return shapeErr(ErrShapeMismatch, name, m.Cols, len(b.Labels))
		}
		if len(m.Data) != m.Rows*m.Cols {
			return shapeErr(ErrShapeMismatch, name, len(m.Data), m.Rows*m.Cols)
		}
	}
	return nil
}

// Features returns the feature names in sorted order.
func (b *Bundle) Features() []string {
	names := make([]string, 0, len(b.Matrices))
	for k := range b.Matrices {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values flattens every matrix into per-feature slices, which is the shape
// persisted by the result writers.
func (b *Bundle) Values() map[string][]float64 {
	out := make(map[string][]float64, len(b.Matrices))
	for k, m := range b.Matrices {
		v := make([]float64, len(m.Data))
		copy(v, m.Data)
		out[k] = v
	}
	return out
}

// WeightSet maps a feature to one weight per source.
type WeightSet struct {
	Sources []string
	Weights map[string][]float64
}

// NewWeightSet checks that every weight vector has one entry per source.
func NewWeightSet(sources []string, weights map[string][]float64) (*WeightSet, error) {
	for name, w := range weights {
		if len(w) != len(sources) {
			return nil, shapeErr(ErrShapeMismatch, name, len(w), len(sources))
		}
	}
	return &WeightSet{Sources: sources, Weights: weights}, nil
}

// For returns the weight vector of a feature.
func (w *WeightSet) For(feature string) ([]float64, bool) {
	if w == nil {
		return nil, false
	}
	v, ok := w.Weights[feature]
	return v, ok
}
