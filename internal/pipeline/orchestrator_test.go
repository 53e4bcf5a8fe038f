package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanjilens/kanjilens/pkg/config"
	"github.com/kanjilens/kanjilens/pkg/geometry"
	"github.com/kanjilens/kanjilens/pkg/ocr"
)

type stubRecognizer struct {
	spans []ocr.Span
	err   error
}

func (s *stubRecognizer) Recognize(ctx context.Context, image []byte) ([]ocr.Span, error) {
	return s.spans, s.err
}

type stubEnricher struct {
	tokensFor func(elements []TextElement) []Token
	degraded  []string
	err       error
}

func (s *stubEnricher) Enrich(ctx context.Context, elements []TextElement) ([]Token, []string, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	var tokens []Token
	if s.tokensFor != nil {
		tokens = s.tokensFor(elements)
	}
	return tokens, s.degraded, nil
}

type stubAnalyzer struct {
	notes       []GrammarNote
	translation string
	err         error
	called      bool
	sawTokens   []Token
}

func (s *stubAnalyzer) Analyze(ctx context.Context, fullText string, tokens []Token) ([]GrammarNote, string, error) {
	s.called = true
	s.sawTokens = tokens
	if s.err != nil {
		return nil, "", s.err
	}
	return s.notes, s.translation, nil
}

type stubLayouter struct {
	sawTokens []Token
	dropped   []string
}

func (s *stubLayouter) Layout(elements []TextElement, tokens []Token) ([]Placement, []string) {
	s.sawTokens = tokens
	var placements []Placement
	for _, t := range tokens {
		placements = append(placements, Placement{TokenID: t.ID, Text: t.Reading})
	}
	return placements, s.dropped
}

func testPipelineConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		OCRTimeout:     time.Second,
		EnrichTimeout:  time.Second,
		AnalyzeTimeout: time.Second,
		EnrichWorkers:  2,
		MaxGlosses:     2,
	}
}

func span(text string, x, y, w, h int) ocr.Span {
	return ocr.Span{Text: text, BBox: geometry.NewRect(x, y, w, h), Confidence: 0.9}
}

func TestRunHappyPath(t *testing.T) {
	enricher := &stubEnricher{
		tokensFor: func(elements []TextElement) []Token {
			return []Token{
				{ID: "tok-1", ElementID: elements[0].ID, Surface: "日本", Reading: "にほん"},
				{ID: "tok-2", ElementID: elements[0].ID, Surface: "語", Reading: "ご"},
			}
		},
	}
	analyzer := &stubAnalyzer{
		notes:       []GrammarNote{{Pattern: "について", Explanation: "regarding"}},
		translation: "Japanese language",
	}
	layouter := &stubLayouter{}

	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{spans: []ocr.Span{span("日本語", 10, 10, 90, 30)}},
		enricher, analyzer, layouter, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Len(t, doc.Elements, 1)
	assert.Len(t, doc.Tokens, 2)
	assert.Equal(t, doc.Tokens, analyzer.sawTokens, "analyzer receives the enriched tokens")
	assert.Equal(t, "Japanese language", doc.Translation)
	assert.Len(t, doc.Placements, 2)
	assert.False(t, doc.Degraded())
	for _, stage := range Stages {
		assert.Equal(t, StatusOK, doc.Stages[stage], "stage %s", stage)
	}
	assert.Greater(t, doc.ProcessingTime, time.Duration(0))
}

func TestRunFatalOCRFailure(t *testing.T) {
	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{err: errors.New("tesseract unavailable")},
		&stubEnricher{}, &stubAnalyzer{}, &stubLayouter{}, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	assert.Nil(t, doc, "no document on fatal failure")
	require.Error(t, err)

	var fatal *FatalStageError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StageOCR, fatal.Stage)
	assert.True(t, IsFatal(err))
}

func TestRunAnalyzerFailureIsNonFatal(t *testing.T) {
	analyzer := &stubAnalyzer{err: context.DeadlineExceeded}
	layouter := &stubLayouter{}

	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{spans: []ocr.Span{span("日本語", 10, 10, 90, 30)}},
		&stubEnricher{tokensFor: func(elements []TextElement) []Token {
			return []Token{{ID: "tok-1", ElementID: elements[0].ID, Reading: "にほんご"}}
		}},
		analyzer, layouter, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Empty(t, doc.Translation)
	assert.Empty(t, doc.GrammarNotes)
	assert.Equal(t, StatusFailed, doc.Stages[StageAnalyze])
	assert.True(t, doc.Degraded())

	// Later stages still ran.
	assert.Equal(t, StatusOK, doc.Stages[StageLayout])
	assert.Len(t, doc.Placements, 1)
}

func TestRunEnricherDegradation(t *testing.T) {
	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{spans: []ocr.Span{
			span("日本語", 10, 10, 90, 30),
			span("??", 110, 10, 20, 30),
		}},
		&stubEnricher{
			tokensFor: func(elements []TextElement) []Token {
				return []Token{{ID: "tok-1", ElementID: elements[0].ID, Reading: "にほんご"}}
			},
			degraded: []string{"el-2"},
		},
		&stubAnalyzer{translation: "ok"}, &stubLayouter{}, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, doc.Stages[StageEnrich])
	assert.Equal(t, []string{"el-2"}, doc.DegradedElements)
	assert.True(t, doc.Degraded())
}

func TestRunFailedEnrichHidesTokensFromLayout(t *testing.T) {
	analyzer := &stubAnalyzer{translation: "ok"}
	layouter := &stubLayouter{}
	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{spans: []ocr.Span{span("日本語", 10, 10, 90, 30)}},
		&stubEnricher{err: errors.New("tokenizer service down")},
		analyzer, layouter, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, doc.Stages[StageEnrich])
	assert.Empty(t, analyzer.sawTokens, "analysis must not read a failed stage's output")
	assert.Empty(t, layouter.sawTokens, "layout must not read a failed stage's output")
	assert.Empty(t, doc.Placements)
}

func TestRunDroppedPlacementsDegradeLayout(t *testing.T) {
	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{spans: []ocr.Span{span("日本語", 10, 10, 90, 30)}},
		&stubEnricher{tokensFor: func(elements []TextElement) []Token {
			return []Token{{ID: "tok-1", ElementID: elements[0].ID, Reading: "にほんご"}}
		}},
		&stubAnalyzer{translation: "ok"},
		&stubLayouter{dropped: []string{"tok-9"}}, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, StatusDegraded, doc.Stages[StageLayout])
	assert.Equal(t, []string{"tok-9"}, doc.DroppedPlacements)
}

func TestRunEmptyOCRSkipsAnalysis(t *testing.T) {
	analyzer := &stubAnalyzer{translation: "should not be used"}
	o := NewOrchestrator(testPipelineConfig(),
		&stubRecognizer{spans: nil},
		&stubEnricher{}, analyzer, &stubLayouter{}, nil)

	doc, err := o.Run(context.Background(), []byte("img"))
	require.NoError(t, err)

	assert.False(t, analyzer.called, "no text means no LLM call")
	assert.Empty(t, doc.Translation)
	assert.Equal(t, StatusOK, doc.Stages[StageAnalyze])
}

func TestRunStateMachineHasNoBackwardTransitions(t *testing.T) {
	order := []runState{stateIdle, stateOCR, stateEnrich, stateAnalyze, stateLayout, stateDone}
	for i, s := range order[:len(order)-1] {
		assert.Equal(t, order[i+1], s.next(), "from %s", s)
	}
	assert.Equal(t, stateDone, stateDone.next(), "done is terminal")
	assert.Equal(t, stateAborted, stateAborted.next(), "aborted is terminal")
}
