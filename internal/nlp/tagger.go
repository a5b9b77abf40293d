// Package nlp tags weather descriptions for the word class transform.
package nlp

import (
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// ProseTagger extracts nouns with prose's part-of-speech tagger.
type ProseTagger struct {
	// Fallback returns every word token when the tagger finds no noun.
	// Short descriptions such as "overcast" are often tagged as adjectives.
	Fallback bool
}

// NewProseTagger returns a tagger that falls back to plain words.
func NewProseTagger() ProseTagger {
	return ProseTagger{Fallback: true}
}

// Nouns returns the NN* tokens of text in order of appearance.
func (t ProseTagger) Nouns(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil, err
	}
	var nouns, words []string
	for _, tok := range doc.Tokens() {
		if !isWord(tok.Text) {
			continue
		}
		words = append(words, tok.Text)
		if strings.HasPrefix(tok.Tag, "NN") {
			nouns = append(nouns, tok.Text)
		}
	}
	if len(nouns) == 0 && t.Fallback {
		return words, nil
	}
	return nouns, nil
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
