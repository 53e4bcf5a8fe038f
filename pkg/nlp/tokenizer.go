// Package nlp provides the Japanese language collaborators: morphological
// tokenization, kana/romaji transliteration, and dictionary lookup. All
// services here are safe for concurrent callers once constructed.
package nlp

import (
	"fmt"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Morpheme is one tokenized surface form with its grammatical category and
// katakana reading as reported by the morphological analyzer.
type Morpheme struct {
	Surface     string
	POS         string // analyzer category, e.g. 名詞
	BaseForm    string // dictionary form, equals Surface when unavailable
	ReadingKana string // katakana reading, empty when unavailable
}

// Tokenizer splits Japanese text into morphemes.
type Tokenizer interface {
	Tokenize(text string) ([]Morpheme, error)
}

// KagomeTokenizer is a Tokenizer backed by the kagome analyzer with the
// IPA dictionary. Construction is expensive (the dictionary is loaded into
// memory); build one at startup and share it.
type KagomeTokenizer struct {
	t *tokenizer.Tokenizer
}

// NewKagomeTokenizer loads the IPA dictionary and builds a tokenizer.
func NewKagomeTokenizer() (*KagomeTokenizer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("failed to build kagome tokenizer: %w", err)
	}
	return &KagomeTokenizer{t: t}, nil
}

// Tokenize splits text into morphemes in surface order.
func (k *KagomeTokenizer) Tokenize(text string) ([]Morpheme, error) {
	tokens := k.t.Tokenize(text)
	morphemes := make([]Morpheme, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Surface == "" {
			continue
		}
		m := Morpheme{
			Surface:  tok.Surface,
			BaseForm: tok.Surface,
		}
		if pos := tok.POS(); len(pos) > 0 {
			m.POS = pos[0]
		}
		if base, ok := tok.BaseForm(); ok && base != "" && base != "*" {
			m.BaseForm = base
		}
		if reading, ok := tok.Reading(); ok && reading != "*" {
			m.ReadingKana = reading
		}
		morphemes = append(morphemes, m)
	}
	return morphemes, nil
}

// ContainsKanji reports whether s has at least one CJK ideograph.
func ContainsKanji(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han) {
			return true
		}
	}
	return false
}
