package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kanjilens/kanjilens/pkg/config"
	"github.com/kanjilens/kanjilens/pkg/logging"
	"github.com/kanjilens/kanjilens/pkg/ocr"
)

// Enricher turns text elements into annotated tokens. The second return
// value lists element IDs whose tokenization or lookup failed.
type Enricher interface {
	Enrich(ctx context.Context, elements []TextElement) ([]Token, []string, error)
}

// Analyzer produces grammar notes and a translation for the full text.
// tokens carries the enrichment output for context; it is empty when the
// enrich stage failed.
type Analyzer interface {
	Analyze(ctx context.Context, fullText string, tokens []Token) ([]GrammarNote, string, error)
}

// Layouter resolves token readings into non-colliding placements. The
// second return value lists token IDs whose placement was dropped.
type Layouter interface {
	Layout(elements []TextElement, tokens []Token) ([]Placement, []string)
}

// Annotator renders placements onto the source image.
type Annotator interface {
	Annotate(image []byte, elements []TextElement, placements []Placement) ([]byte, error)
}

// runState tracks the orchestrator's position in the stage sequence.
type runState int

const (
	stateIdle runState = iota
	stateOCR
	stateEnrich
	stateAnalyze
	stateLayout
	stateDone
	stateAborted
)

// next returns the state following s. There are no backward transitions
// and no stage is entered twice; the only branch is OCR → Aborted on
// fatal failure, which the orchestrator takes explicitly.
func (s runState) next() runState {
	switch s {
	case stateIdle:
		return stateOCR
	case stateOCR:
		return stateEnrich
	case stateEnrich:
		return stateAnalyze
	case stateAnalyze:
		return stateLayout
	case stateLayout:
		return stateDone
	default:
		return s
	}
}

// Orchestrator drives one image through the four pipeline stages. It holds
// no per-request state; concurrent Run calls operate on independent
// Documents.
type Orchestrator struct {
	cfg        *config.PipelineConfig
	recognizer ocr.Recognizer
	enricher   Enricher
	analyzer   Analyzer
	layouter   Layouter
	annotator  Annotator
}

// NewOrchestrator wires the collaborators. annotator may be nil, in which
// case no annotated image is produced.
func NewOrchestrator(cfg *config.PipelineConfig, recognizer ocr.Recognizer, enricher Enricher, analyzer Analyzer, layouter Layouter, annotator Annotator) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		recognizer: recognizer,
		enricher:   enricher,
		analyzer:   analyzer,
		layouter:   layouter,
		annotator:  annotator,
	}
}

// Run executes the pipeline on one image. A fatal OCR failure returns a
// nil Document and a *FatalStageError; every other failure mode is
// recorded in the returned Document's stage status instead of an error.
func (o *Orchestrator) Run(ctx context.Context, image []byte) (*Document, error) {
	doc := NewDocument()
	logger := logging.GetLogger("orchestrator").With().Str("document_id", doc.ID).Logger()
	started := time.Now()

	state := stateIdle
	for state = state.next(); state != stateDone && state != stateAborted; state = state.next() {
		if err := ctx.Err(); err != nil && state != stateOCR {
			// Request cancelled mid-run: remaining stages are unavailable.
			o.skipRemaining(doc, state)
			break
		}

		switch state {
		case stateOCR:
			if err := o.runOCR(ctx, doc, image); err != nil {
				state = stateAborted
				logger.Error().Err(err).Str("state", state.String()).Msg("OCR stage failed, aborting run")
				return nil, err
			}
		case stateEnrich:
			o.runEnrich(ctx, doc)
		case stateAnalyze:
			o.runAnalyze(ctx, doc)
		case stateLayout:
			o.runLayout(ctx, doc, image)
		}
	}

	doc.ProcessingTime = time.Since(started)
	logger.Info().
		Dur("processing_time", doc.ProcessingTime).
		Int("elements", len(doc.Elements)).
		Int("tokens", len(doc.Tokens)).
		Int("placements", len(doc.Placements)).
		Bool("degraded", doc.Degraded()).
		Msg("Pipeline run complete")

	return doc, nil
}

func (o *Orchestrator) runOCR(ctx context.Context, doc *Document, image []byte) error {
	logger := logging.GetPipelineLogger(doc.ID, string(StageOCR))

	ctx, cancel := context.WithTimeout(ctx, o.cfg.OCRTimeout)
	defer cancel()

	spans, err := o.recognizer.Recognize(ctx, image)
	if err != nil {
		doc.markStage(StageOCR, StatusFailed)
		return &FatalStageError{Stage: StageOCR, Err: err}
	}

	for _, s := range spans {
		doc.Elements = append(doc.Elements, TextElement{
			ID:         uuid.New().String(),
			Text:       s.Text,
			BBox:       s.BBox,
			Confidence: s.Confidence,
		})
	}
	doc.markStage(StageOCR, StatusOK)

	logger.Info().Int("elements", len(doc.Elements)).Msg("Stage complete")
	return nil
}

func (o *Orchestrator) runEnrich(ctx context.Context, doc *Document) {
	logger := logging.GetPipelineLogger(doc.ID, string(StageEnrich))

	if len(doc.Elements) == 0 {
		doc.markStage(StageEnrich, StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.EnrichTimeout)
	defer cancel()

	tokens, degraded, err := o.enricher.Enrich(ctx, doc.Elements)
	if err != nil {
		logger.Error().Err(&StageUnavailableError{Stage: StageEnrich, Err: err}).Msg("Enrichment unavailable")
		doc.markStage(StageEnrich, StatusFailed)
		return
	}

	doc.Tokens = tokens
	doc.DegradedElements = degraded
	if len(degraded) > 0 {
		doc.markStage(StageEnrich, StatusDegraded)
	} else {
		doc.markStage(StageEnrich, StatusOK)
	}

	logger.Info().
		Int("tokens", len(tokens)).
		Int("degraded_elements", len(degraded)).
		Msg("Stage complete")
}

func (o *Orchestrator) runAnalyze(ctx context.Context, doc *Document) {
	logger := logging.GetPipelineLogger(doc.ID, string(StageAnalyze))

	fullText := doc.FullText()
	if fullText == "" {
		// Nothing to analyze; an empty translation is correct here.
		doc.markStage(StageAnalyze, StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.AnalyzeTimeout)
	defer cancel()

	// Tokens from a failed enrichment stage are treated as empty.
	tokens := doc.Tokens
	if doc.Stages[StageEnrich] == StatusFailed {
		tokens = nil
	}

	notes, translation, err := o.analyzer.Analyze(ctx, fullText, tokens)
	if err != nil {
		logger.Warn().Err(&StageUnavailableError{Stage: StageAnalyze, Err: err}).Msg("Semantic analysis unavailable, continuing without translation")
		doc.markStage(StageAnalyze, StatusFailed)
		return
	}

	doc.GrammarNotes = notes
	doc.Translation = translation
	doc.markStage(StageAnalyze, StatusOK)

	logger.Info().Int("grammar_notes", len(notes)).Msg("Stage complete")
}

func (o *Orchestrator) runLayout(ctx context.Context, doc *Document, image []byte) {
	logger := logging.GetPipelineLogger(doc.ID, string(StageLayout))

	// Tokens from a failed enrichment stage are treated as empty.
	tokens := doc.Tokens
	if doc.Stages[StageEnrich] == StatusFailed {
		tokens = nil
	}

	placements, dropped := o.layouter.Layout(doc.Elements, tokens)
	doc.Placements = placements
	doc.DroppedPlacements = dropped
	if len(dropped) > 0 {
		doc.markStage(StageLayout, StatusDegraded)
	} else {
		doc.markStage(StageLayout, StatusOK)
	}

	if o.annotator != nil {
		annotated, err := o.annotator.Annotate(image, doc.Elements, placements)
		if err != nil {
			// Rendering is best effort: keep the original image.
			logger.Warn().Err(err).Msg("Annotation rendering failed, returning original image")
			doc.AnnotatedImage = image
			doc.markStage(StageLayout, StatusDegraded)
		} else {
			doc.AnnotatedImage = annotated
		}
	}

	logger.Info().
		Int("placements", len(placements)).
		Int("dropped", len(dropped)).
		Msg("Stage complete")
}

// skipRemaining marks the stage at and after the given state failed when a
// run is cut short by cancellation.
func (o *Orchestrator) skipRemaining(doc *Document, from runState) {
	for s := from; s != stateDone && s != stateAborted; s = s.next() {
		switch s {
		case stateEnrich:
			doc.markStage(StageEnrich, StatusFailed)
		case stateAnalyze:
			doc.markStage(StageAnalyze, StatusFailed)
		case stateLayout:
			doc.markStage(StageLayout, StatusFailed)
		}
	}
}

// String renders the run state for logs.
func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateOCR:
		return "ocr"
	case stateEnrich:
		return "enrich"
	case stateAnalyze:
		return "analyze"
	case stateLayout:
		return "layout"
	case stateDone:
		return "done"
	case stateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
