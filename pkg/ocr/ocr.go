// Package ocr wraps the Tesseract engine behind the Recognizer contract
// the pipeline consumes: image bytes in, positioned text spans out.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/kanjilens/kanjilens/pkg/geometry"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

// Span is one recognized text region with bounding geometry.
type Span struct {
	Text       string
	BBox       geometry.Rect
	Confidence float64 // 0..1
}

// Recognizer extracts positioned text spans from image bytes.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]Span, error)
}

// Engine is a Tesseract-backed Recognizer.
type Engine struct {
	Language             string  // tesseract language code, e.g. "jpn"
	MinConfidence        float64 // 0..100, observations below are discarded
	PageSegmentationMode gosseract.PageSegMode

	extract func(image []byte) ([]gosseract.BoundingBox, error)
}

// NewEngine creates an Engine configured for Japanese block text.
func NewEngine(language string, minConfidence float64) *Engine {
	e := &Engine{
		Language:             language,
		MinConfidence:        minConfidence,
		PageSegmentationMode: gosseract.PSM_SINGLE_BLOCK,
	}
	e.extract = e.tesseractBoxes
	return e
}

// Recognize runs OCR and returns word-level spans in reading order.
// Low-confidence observations are discarded, and a consecutive duplicate of
// the same text on the same line is suppressed (Tesseract occasionally
// reports a glyph run twice). The Tesseract call runs on its own goroutine
// so context expiry fails the call; the engine work itself is abandoned,
// not interrupted.
func (e *Engine) Recognize(ctx context.Context, image []byte) ([]Span, error) {
	logger := logging.GetCollaboratorLogger("tesseract", "recognize")

	if len(image) == 0 {
		return nil, fmt.Errorf("no image content provided for OCR")
	}

	type extraction struct {
		boxes []gosseract.BoundingBox
		err   error
	}
	done := make(chan extraction, 1)
	go func() {
		boxes, err := e.extract(image)
		done <- extraction{boxes: boxes, err: err}
	}()

	var boxes []gosseract.BoundingBox
	select {
	case <-ctx.Done():
		logger.Warn().Err(ctx.Err()).Msg("OCR abandoned before the engine returned")
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		boxes = res.boxes
	}

	spans := make([]Span, 0, len(boxes))
	var prevText string
	var prevY int
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		conf := box.Confidence
		if text == "" || conf < e.MinConfidence {
			continue
		}
		y := box.Box.Min.Y
		// Same text twice on the same line is a re-read of the same glyphs.
		if text == prevText && abs(y-prevY) < 15 {
			continue
		}
		spans = append(spans, Span{
			Text: text,
			BBox: geometry.NewRect(
				box.Box.Min.X,
				box.Box.Min.Y,
				box.Box.Dx(),
				box.Box.Dy(),
			),
			Confidence: conf / 100,
		})
		prevText = text
		prevY = y
	}

	logger.Info().
		Int("observations", len(boxes)).
		Int("spans", len(spans)).
		Msg("OCR extraction complete")

	return spans, nil
}

// tesseractBoxes runs the synchronous gosseract sequence.
func (e *Engine) tesseractBoxes(image []byte) ([]gosseract.BoundingBox, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.Language); err != nil {
		return nil, fmt.Errorf("failed to set OCR language %q: %w", e.Language, err)
	}
	if err := client.SetPageSegMode(e.PageSegmentationMode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set OCR image data: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR extraction failed: %w", err)
	}
	return boxes, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
