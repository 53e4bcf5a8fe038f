package nlp

import (
	"github.com/gojp/kana"
)

// Transliterator converts a surface form and its katakana reading into the
// hiragana and romaji renderings used for annotations.
type Transliterator interface {
	Convert(surface, readingKana string) (hiragana, romaji string)
}

// KanaTransliterator converts readings through the kana library. When the
// analyzer supplied no reading the surface itself is used: for pure kana
// surfaces that is the reading, and for unrecognized kanji it degrades to
// the surface rather than inventing one.
type KanaTransliterator struct{}

// NewKanaTransliterator returns a ready transliterator.
func NewKanaTransliterator() *KanaTransliterator {
	return &KanaTransliterator{}
}

// Convert returns the hiragana and Hepburn romaji for a reading.
func (k *KanaTransliterator) Convert(surface, readingKana string) (string, string) {
	source := readingKana
	if source == "" {
		source = surface
	}
	romaji := kana.KanaToRomaji(source)
	hiragana := kana.RomajiToHiragana(romaji)
	if hiragana == "" {
		hiragana = source
	}
	return hiragana, romaji
}
