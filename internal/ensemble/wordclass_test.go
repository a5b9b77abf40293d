package ensemble

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fieldsTagger treats every whitespace separated word as a noun.
type fieldsTagger struct {
	seen []string
	err  error
}

func (f *fieldsTagger) Nouns(text string) ([]string, error) {
	f.seen = append(f.seen, text)
	if f.err != nil {
		return nil, f.err
	}
	return strings.Fields(text), nil
}

var checkWords = []WordClassEntry{
	{Word: "sun", Class: 1},
	{Word: "cloud", Class: 2},
	{Word: "rain", Class: 3},
	{Word: "shower", Class: 4},
	{Word: "thunderstorm", Class: 5},
	{Word: "fog", Class: 6},
	{Word: "snow", Class: 7},
}

func TestWordClassThunderstorm(t *testing.T) {
	tagger := &fieldsTagger{}
	wc, err := NewWordClass(checkWords, tagger)
	require.NoError(t, err)

	got, err := wc.Apply("Thunderstorm expected tonight")
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
	assert.Equal(t, []string{"thunderstorm expected tonight"}, tagger.seen)
}

func TestWordClassInFeature(t *testing.T) {
	wc, err := NewWordClass(checkWords, &fieldsTagger{})
	require.NoError(t, err)

	f := Feature{Name: "class", Path: Path{"description"}, Transforms: Chain{wc}}
	got, err := Retrieve(f, Document{"description": "Light snow"})
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)
}

func TestWordClassTieBreaksByInsertionOrder(t *testing.T) {
	wc, err := NewWordClass([]WordClassEntry{{Word: "cat", Class: 1}, {Word: "bat", Class: 2}}, &fieldsTagger{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, wc.Classify([]string{"hat"}))

	wc, err = NewWordClass([]WordClassEntry{{Word: "bat", Class: 2}, {Word: "cat", Class: 1}}, &fieldsTagger{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, wc.Classify([]string{"hat"}))

	wc, err = NewWordClass(checkWords, &fieldsTagger{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, wc.Classify([]string{"thunderstorm", "rain"}))
}

func TestWordClassNearestWord(t *testing.T) {
	wc, err := NewWordClass(checkWords, &fieldsTagger{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, wc.Classify([]string{"clouds"}))
	assert.Equal(t, 4.0, wc.Classify([]string{"showers"}))
}

func TestWordClassNoTokens(t *testing.T) {
	entries := []WordClassEntry{{Word: "rain", Class: 3}, {Word: "sun", Class: 1}, {Word: "snow", Class: 7}}
	wc, err := NewWordClass(entries, &fieldsTagger{})
	require.NoError(t, err)

	got, err := wc.Apply("   ")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestWordClassConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		entries []WordClassEntry
	}{
		{name: "empty", entries: nil},
		{name: "blank word", entries: []WordClassEntry{{Word: "", Class: 1}}},
		{name: "nan class", entries: []WordClassEntry{{Word: "sun", Class: math.NaN()}}},
		{name: "inf class", entries: []WordClassEntry{{Word: "sun", Class: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWordClass(tt.entries, &fieldsTagger{})
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}

	_, err := NewWordClass(checkWords, nil)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestWordClassErrors(t *testing.T) {
	boom := errors.New("tagger down")
	wc, err := NewWordClass(checkWords, &fieldsTagger{err: boom})
	require.NoError(t, err)

	_, err = wc.Apply("rain")
	require.ErrorIs(t, err, boom)

	_, err = wc.Apply(42)
	require.Error(t, err)
}
