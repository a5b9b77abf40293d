package ensemble

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieve(t *testing.T) {
	doc := Document{
		"temperature": map[string]any{"min": -3, "max": "4.5"},
		"hourly":      []any{map[string]any{"temp": json.Number("7.25")}},
		"pressure":    nil,
	}

	tests := []struct {
		name string
		path Path
		want float64
	}{
		{name: "nested int", path: Path{"temperature", "min"}, want: -3},
		{name: "numeric string", path: Path{"temperature", "max"}, want: 4.5},
		{name: "slice index", path: ParsePath("hourly.0.temp"), want: 7.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Retrieve(Feature{Name: tt.name, Path: tt.path}, doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("nil leaf is missing", func(t *testing.T) {
		got, err := Retrieve(Feature{Name: "p", Path: Path{"pressure"}}, doc)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(got))
	})
}

func TestRetrievePathNotFound(t *testing.T) {
	doc := Document{"temperature": map[string]any{"min": 1.0}, "hourly": []any{}}

	for _, p := range []Path{{"humidity", "min"}, {"temperature", "max"}, {"hourly", 3}, {"temperature", "min", "x"}} {
		_, err := Retrieve(Feature{Name: "f", Path: p}, doc)
		assert.ErrorIs(t, err, ErrPathNotFound, p.String())
	}
}

func TestRetrieveTransformChain(t *testing.T) {
	double := TransformFunc(func(v any) (any, error) {
		f, err := toFloat(v)
		return f * 2, err
	})
	plusOne := TransformFunc(func(v any) (any, error) {
		f, err := toFloat(v)
		return f + 1, err
	})
	doc := Document{"v": 3.0}

	got, err := Retrieve(Feature{Name: "v", Path: Path{"v"}, Transforms: Chain{double, plusOne}}, doc)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	got, err = Retrieve(Feature{Name: "v", Path: Path{"v"}, Transforms: Chain{plusOne, double}}, doc)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got)
}

func TestRetrieveTransformError(t *testing.T) {
	boom := errors.New("boom")
	fail := TransformFunc(func(any) (any, error) { return nil, boom })
	_, err := Retrieve(Feature{Name: "v", Path: Path{"v"}, Transforms: Chain{fail}}, Document{"v": 1})
	require.ErrorIs(t, err, boom)
}

func TestRetrieveNonNumeric(t *testing.T) {
	_, err := Retrieve(Feature{Name: "d", Path: Path{"description"}}, Document{"description": "light rain"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, Path{"a", 0, "b"}, ParsePath("a.0.b"))
	assert.Nil(t, ParsePath(""))
	assert.Equal(t, "a.0.b", ParsePath("a.0.b").String())
}

func TestRetrieveDigitMapKey(t *testing.T) {
	doc := Document{"yearly": map[string]any{"2024": map[string]any{"rain": 612.5}}}
	v, err := Retrieve(Feature{Name: "rain", Path: ParsePath("yearly.2024.rain")}, doc)
	require.NoError(t, err)
	assert.Equal(t, 612.5, v)

	_, err = Retrieve(Feature{Name: "rain", Path: ParsePath("yearly.2023.rain")}, doc)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestLabelOf(t *testing.T) {
	day := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	got, err := LabelOf(DefaultLabelPath, Document{"weather_date": day})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", got)

	_, err = LabelOf(DefaultLabelPath, Document{})
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestRadial(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{in: []float64{0.1, 0.2}, want: 0.2},
		{in: []float64{0.05, 0.95}, want: -0.05},
		{in: []any{0.95, 0.05}, want: 1.05},
	}
	for _, tt := range tests {
		got, err := Radial{}.Apply(tt.in)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-12)
	}

	_, err := Radial{}.Apply("north")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "radial"))
}
