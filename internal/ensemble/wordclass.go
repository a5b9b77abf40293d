package ensemble

import (
	"fmt"
	"math"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tagger extracts noun-like tokens from free text.
type Tagger interface {
	Nouns(text string) ([]string, error)
}

// WordClassEntry maps a canonical word to its numeric class.
type WordClassEntry struct {
	Word  string  `yaml:"word" json:"word"`
	Class float64 `yaml:"class" json:"class"`
}

// WordClass turns a textual weather description into the class of the
// canonical word closest (by edit distance) to any noun in the text.
type WordClass struct {
	entries  []WordClassEntry
	tagger   Tagger
	minClass float64
}

// NewWordClass validates the class table. Entry order is significant: on
// equal distances the earlier entry wins.
func NewWordClass(entries []WordClassEntry, tagger Tagger) (*WordClass, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: word class table is empty", ErrConfiguration)
	}
	if tagger == nil {
		return nil, fmt.Errorf("%w: word class requires a tagger", ErrConfiguration)
	}
	minClass := math.Inf(1)
	for _, e := range entries {
		if e.Word == "" {
			return nil, fmt.Errorf("%w: word class entry with class %v has no word", ErrConfiguration, e.Class)
		}
		if math.IsNaN(e.Class) || math.IsInf(e.Class, 0) {
			return nil, fmt.Errorf("%w: class of %q is not a finite number", ErrConfiguration, e.Word)
		}
		minClass = math.Min(minClass, e.Class)
	}
	cp := make([]WordClassEntry, len(entries))
	copy(cp, entries)
	return &WordClass{
		entries:  cp,
		tagger:   tagger,
		minClass: minClass,
	}, nil
}

// Apply implements Transform.
func (w *WordClass) Apply(v any) (any, error) {
	text, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("word class: expected text, got %T", v)
	}
	// Casers are stateful, so one is built per call.
	nouns, err := w.tagger.Nouns(cases.Lower(language.Und).String(text))
	if err != nil {
		return nil, fmt.Errorf("word class: tagging %q: %w", text, err)
	}
	return w.Classify(nouns), nil
}

// Classify returns the class of the canonical word nearest to any token,
// or the minimum class when there are no tokens.
func (w *WordClass) Classify(tokens []string) float64 {
	best, bestDist := -1, 0
	for _, tok := range tokens {
		for i, e := range w.entries {
			d := levenshtein.ComputeDistance(e.Word, tok)
			if best < 0 || d < bestDist || (d == bestDist && i < best) {
				best, bestDist = i, d
			}
		}
	}
	if best < 0 {
		return w.minClass
	}
	return w.entries[best].Class
}
