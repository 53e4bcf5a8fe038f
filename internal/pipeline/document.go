// Package pipeline contains the aggregate Document, the stage state
// machine, and the orchestrator that drives a Japanese-text image through
// OCR, lexical enrichment, semantic analysis, and annotation layout.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/kanjilens/kanjilens/pkg/geometry"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageOCR     Stage = "ocr"
	StageEnrich  Stage = "enrich"
	StageAnalyze Stage = "analyze"
	StageLayout  Stage = "layout"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageOCR, StageEnrich, StageAnalyze, StageLayout}

// StageStatus is the recorded outcome of one stage.
type StageStatus string

const (
	StatusPending  StageStatus = "pending"
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusFailed   StageStatus = "failed"
)

// TextElement is one OCR-recognized text span with bounding geometry.
// Immutable once appended to a Document.
type TextElement struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	BBox       geometry.Rect `json:"bbox"`
	Confidence float64       `json:"confidence"`
}

// PartOfSpeech is the coarse grammatical category of a token.
type PartOfSpeech string

const (
	POSNoun      PartOfSpeech = "noun"
	POSVerb      PartOfSpeech = "verb"
	POSAdjective PartOfSpeech = "adjective"
	POSParticle  PartOfSpeech = "particle"
	POSAdverb    PartOfSpeech = "adverb"
	POSSymbol    PartOfSpeech = "symbol"
	POSOther     PartOfSpeech = "other"
)

// Token is one tokenized word with readings and glosses. ElementID is a
// back-reference to the TextElement the surface came from; several tokens
// may share one element.
type Token struct {
	ID           string       `json:"id"`
	ElementID    string       `json:"element_id"`
	Surface      string       `json:"surface"`
	Reading      string       `json:"reading"` // hiragana
	Romaji       string       `json:"romaji"`
	Glosses      []string     `json:"glosses,omitempty"`
	PartOfSpeech PartOfSpeech `json:"part_of_speech"`
}

// GrammarNote is one grammar pattern the analyzer identified.
type GrammarNote struct {
	Pattern     string `json:"pattern"`
	Explanation string `json:"explanation"`
}

// PlacementKind distinguishes the two annotations drawn per word: the
// reading above the glyphs and the English meaning below them.
type PlacementKind string

const (
	PlacementReading PlacementKind = "reading"
	PlacementMeaning PlacementKind = "meaning"
)

// Placement anchors one annotation in image space. Band is the vertical
// stacking level: 0 sits immediately adjacent to the source glyphs, each
// higher band one line-height further away.
type Placement struct {
	TokenID string         `json:"token_id"`
	Kind    PlacementKind  `json:"kind"`
	Anchor  geometry.Point `json:"anchor"`
	Text    string         `json:"text"`
	Band    int            `json:"band"`
}

// Document is the aggregate a single pipeline run builds up. Stages only
// ever append to it; each stage sees a read-only view of what earlier
// stages produced.
type Document struct {
	ID                string                `json:"id"`
	Elements          []TextElement         `json:"elements"`
	Tokens            []Token               `json:"tokens"`
	GrammarNotes      []GrammarNote         `json:"grammar_notes"`
	Translation       string                `json:"translation"`
	Placements        []Placement           `json:"placements"`
	DegradedElements  []string              `json:"degraded_elements,omitempty"`
	DroppedPlacements []string              `json:"dropped_placements,omitempty"`
	Stages            map[Stage]StageStatus `json:"stage_status"`
	AnnotatedImage    []byte                `json:"-"`
	CreatedAt         time.Time             `json:"created_at"`
	ProcessingTime    time.Duration         `json:"-"`
}

// NewDocument creates an empty document with all stages pending.
func NewDocument() *Document {
	stages := make(map[Stage]StageStatus, len(Stages))
	for _, s := range Stages {
		stages[s] = StatusPending
	}
	return &Document{
		ID:        uuid.New().String(),
		Stages:    stages,
		CreatedAt: time.Now().UTC(),
	}
}

// markStage records a stage outcome. Status is monotonic: a failed stage
// stays failed, and a degraded stage can only worsen to failed.
func (d *Document) markStage(stage Stage, status StageStatus) {
	current := d.Stages[stage]
	if current == StatusFailed {
		return
	}
	if current == StatusDegraded && status == StatusOK {
		return
	}
	d.Stages[stage] = status
}

// FullText reconstructs the recognized text in element order, skipping
// elements from failed reads. Spans are space-joined the way the OCR
// engine reported them.
func (d *Document) FullText() string {
	if d.Stages[StageOCR] == StatusFailed {
		return ""
	}
	var out string
	for i, el := range d.Elements {
		if i > 0 {
			out += " "
		}
		out += el.Text
	}
	return out
}

// Degraded reports whether any stage finished below ok.
func (d *Document) Degraded() bool {
	for _, s := range Stages {
		if d.Stages[s] == StatusDegraded || d.Stages[s] == StatusFailed {
			return true
		}
	}
	return false
}

// TokensFor returns the tokens that reference the given element, in
// creation order.
func (d *Document) TokensFor(elementID string) []Token {
	var out []Token
	for _, t := range d.Tokens {
		if t.ElementID == elementID {
			out = append(out, t)
		}
	}
	return out
}
