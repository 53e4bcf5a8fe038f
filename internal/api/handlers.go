// Package api exposes the HTTP surface: a status root, a health check,
// and the /process endpoint that runs an image through the pipeline. The
// handlers translate pipeline outcomes into transport terms and nothing
// else; all processing lives behind the Runner contract.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

// Runner executes the processing pipeline on one image.
type Runner interface {
	Run(ctx context.Context, image []byte) (*pipeline.Document, error)
}

// ArtifactSaver persists an annotated image and returns its path.
type ArtifactSaver interface {
	Save(documentID string, image []byte) (string, error)
}

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	runner      Runner
	artifacts   ArtifactSaver
	maxFileSize int64
}

// NewHandlers creates a new handlers instance. artifacts may be nil, in
// which case annotated images are returned inline only.
func NewHandlers(runner Runner, artifacts ArtifactSaver, maxFileSize int64) *Handlers {
	return &Handlers{
		runner:      runner,
		artifacts:   artifacts,
		maxFileSize: maxFileSize,
	}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "kanjilens",
		"version":   "0.1.0",
		"timestamp": time.Now().UTC(),
	})
}

// Root returns the API description payload.
func (h *Handlers) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":         "KanjiLens Japanese Text Processing API",
		"status":       "operational",
		"architecture": "Four-stage sequential pipeline with per-stage degradation",
		"stages": []fiber.Map{
			{"name": "ocr", "description": "Extracts positioned Japanese text spans (Tesseract)"},
			{"name": "enrich", "description": "Tokenization, readings, and dictionary glosses (kagome + JMdict index)"},
			{"name": "analyze", "description": "Grammar explanation and translation (LLM)"},
			{"name": "layout", "description": "Collision-free furigana placement and image annotation"},
		},
		"features": []string{
			"OCR text extraction with bounding boxes",
			"Japanese tokenization with hiragana and romaji readings",
			"Dictionary vocabulary lookup",
			"LLM grammar analysis and translation",
			"Furigana-annotated output image",
		},
		"endpoints": fiber.Map{
			"POST /process": "Process a Japanese text image (multipart field: file)",
		},
	})
}

// allowedExtensions are the accepted upload types.
var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
}

// ProcessResponse is the success payload for /process.
type ProcessResponse struct {
	ID             string                                      `json:"id"`
	Timestamp      time.Time                                   `json:"timestamp"`
	ProcessingTime string                                      `json:"processing_time"`
	ExtractedText  ExtractedText                               `json:"extracted_text"`
	Elements       []pipeline.TextElement                      `json:"elements"`
	Vocabulary     []VocabularyEntry                           `json:"vocabulary"`
	Analysis       Analysis                                    `json:"analysis"`
	Placements     []pipeline.Placement                        `json:"placements"`
	StageStatus    map[pipeline.Stage]pipeline.StageStatus     `json:"stage_status"`
	Degraded       bool                                        `json:"degraded"`
	AnnotatedImage *AnnotatedImage                             `json:"annotated_image,omitempty"`
}

// ExtractedText summarizes the OCR output.
type ExtractedText struct {
	FullText       string `json:"full_text"`
	CharacterCount int    `json:"character_count"`
	ElementCount   int    `json:"element_count"`
}

// VocabularyEntry is one deduplicated vocabulary item.
type VocabularyEntry struct {
	Surface      string                `json:"surface"`
	Hiragana     string                `json:"hiragana"`
	Romaji       string                `json:"romaji"`
	Glosses      []string              `json:"glosses,omitempty"`
	PartOfSpeech pipeline.PartOfSpeech `json:"part_of_speech"`
}

// Analysis carries the semantic stage output.
type Analysis struct {
	Translation  string                 `json:"translation"`
	GrammarNotes []pipeline.GrammarNote `json:"grammar_notes"`
}

// AnnotatedImage references the rendered output.
type AnnotatedImage struct {
	Path   string `json:"path,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// maxVocabulary caps the response vocabulary list.
const maxVocabulary = 100

// Process accepts a multipart image upload and runs the pipeline.
func (h *Handlers) Process(c *fiber.Ctx) error {
	logger := logging.GetLogger("api")

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "No file uploaded or invalid file format",
			"details": err.Error(),
		})
	}

	if file.Size > h.maxFileSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large: %d bytes, maximum is %d bytes", file.Size, h.maxFileSize),
		})
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
	if !allowedExtensions[ext] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only PNG, JPG, JPEG images supported",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Failed to open uploaded file",
			"details": err.Error(),
		})
	}
	defer src.Close()

	image, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Failed to read uploaded file",
			"details": err.Error(),
		})
	}

	doc, err := h.runner.Run(c.Context(), image)
	if err != nil {
		var fatal *pipeline.FatalStageError
		if errors.As(err, &fatal) {
			logger.Error().Err(err).Str("filename", file.Filename).Msg("Pipeline aborted")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": fmt.Sprintf("Processing failed at stage %s", fatal.Stage),
				"stage": string(fatal.Stage),
			})
		}
		logger.Error().Err(err).Str("filename", file.Filename).Msg("Pipeline error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Processing failed",
		})
	}

	return c.JSON(h.buildResponse(doc))
}

func (h *Handlers) buildResponse(doc *pipeline.Document) ProcessResponse {
	logger := logging.GetLogger("api")

	resp := ProcessResponse{
		ID:             doc.ID,
		Timestamp:      doc.CreatedAt,
		ProcessingTime: doc.ProcessingTime.String(),
		ExtractedText: ExtractedText{
			FullText:       doc.FullText(),
			CharacterCount: len([]rune(doc.FullText())),
			ElementCount:   len(doc.Elements),
		},
		Elements:    doc.Elements,
		Vocabulary:  buildVocabulary(doc.Tokens),
		Analysis:    Analysis{Translation: doc.Translation, GrammarNotes: doc.GrammarNotes},
		Placements:  doc.Placements,
		StageStatus: doc.Stages,
		Degraded:    doc.Degraded(),
	}

	if len(doc.AnnotatedImage) > 0 {
		img := &AnnotatedImage{
			Base64: base64.StdEncoding.EncodeToString(doc.AnnotatedImage),
		}
		if h.artifacts != nil {
			path, err := h.artifacts.Save(doc.ID, doc.AnnotatedImage)
			if err != nil {
				logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Failed to persist annotated image")
			} else {
				img.Path = path
			}
		}
		resp.AnnotatedImage = img
	}

	return resp
}

// buildVocabulary deduplicates tokens by surface form, keeping first
// occurrence order, and caps the list.
func buildVocabulary(tokens []pipeline.Token) []VocabularyEntry {
	seen := make(map[string]bool, len(tokens))
	var out []VocabularyEntry
	for _, t := range tokens {
		if t.Surface == "" || seen[t.Surface] {
			continue
		}
		if len(t.Glosses) == 0 && t.PartOfSpeech == pipeline.POSSymbol {
			continue
		}
		seen[t.Surface] = true
		out = append(out, VocabularyEntry{
			Surface:      t.Surface,
			Hiragana:     t.Reading,
			Romaji:       t.Romaji,
			Glosses:      t.Glosses,
			PartOfSpeech: t.PartOfSpeech,
		})
		if len(out) == maxVocabulary {
			break
		}
	}
	return out
}
