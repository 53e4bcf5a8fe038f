// Package analyze implements the semantic analysis stage: one
// language-model request over the reconstructed full text, returning
// grammar notes and a translation. The response is shape-validated before
// acceptance; a response without a translation fails the whole stage.
package analyze

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/llm"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

const systemPrompt = "You are an expert Japanese teacher. Provide translation and grammar explanations for language learners."

const promptTemplate = `Analyze this Japanese text for language learners.

TEXT:
%s

TASK:
Provide analysis in this format:

TRANSLATION:
[Natural English translation - translate the entire text naturally]

GRAMMAR_PATTERNS:
- Pattern (e.g., について): Explanation of usage and meaning
- Pattern: Detailed explanation
[List all important grammar patterns found in the text with detailed explanations]

Be thorough and educational. Focus on explaining grammar patterns clearly.`

var (
	translationRe = regexp.MustCompile(`(?is)TRANSLATION[:\s]*(.*?)(?:GRAMMAR_PATTERNS|GRAMMAR|$)`)
	grammarRe     = regexp.MustCompile(`(?is)GRAMMAR[_ ]?PATTERNS?[:\s]*(.*)$`)
	bulletRe      = regexp.MustCompile(`(?m)^[-•*]\s*(.+)$`)
)

// Analyzer runs the semantic analysis stage.
type Analyzer struct {
	client llm.Client
}

// New creates an Analyzer over an LLM client.
func New(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// Analyze issues one request and parses the sectioned response. No retries
// happen here; the client owns retry policy for its idempotent calls.
// tokens is the enrichment output for the same text; the prompt works from
// the raw text alone, so tokens only inform the log here.
func (a *Analyzer) Analyze(ctx context.Context, fullText string, tokens []pipeline.Token) ([]pipeline.GrammarNote, string, error) {
	logger := logging.GetLogger("analyzer")

	logger.Debug().
		Int("text_len", len(fullText)).
		Int("tokens", len(tokens)).
		Msg("Requesting semantic analysis")

	response, err := a.client.Complete(ctx, systemPrompt, fmt.Sprintf(promptTemplate, fullText))
	if err != nil {
		return nil, "", err
	}

	notes, translation, err := parseResponse(response)
	if err != nil {
		return nil, "", err
	}

	logger.Info().
		Int("grammar_notes", len(notes)).
		Int("translation_len", len(translation)).
		Msg("Semantic analysis parsed")

	return notes, translation, nil
}

// parseResponse scans the TRANSLATION / GRAMMAR_PATTERNS sections line by
// line, falling back to regex extraction for a loosely formatted response.
// A response with no recoverable translation is rejected outright.
func parseResponse(response string) ([]pipeline.GrammarNote, string, error) {
	var translationLines, grammarLines []string
	section := ""

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "TRANSLATION"):
			section = "translation"
			continue
		case strings.Contains(upper, "GRAMMAR"):
			section = "grammar"
			continue
		}

		switch section {
		case "translation":
			// Headers and placeholder brackets are not translation text.
			if !strings.HasPrefix(line, "-") && !strings.Contains(line, "[") && !strings.Contains(line, "]") {
				translationLines = append(translationLines, line)
			}
		case "grammar":
			if strings.HasPrefix(line, "-") {
				grammarLines = append(grammarLines, strings.TrimSpace(line[1:]))
			}
		}
	}

	translation := strings.Join(translationLines, " ")
	if translation == "" {
		translation = fallbackTranslation(response)
	}
	if translation == "" {
		return nil, "", fmt.Errorf("%w: no translation section found", pipeline.ErrMalformedResponse)
	}

	if len(grammarLines) == 0 {
		grammarLines = fallbackGrammar(response)
	}

	notes := make([]pipeline.GrammarNote, 0, len(grammarLines))
	for _, raw := range grammarLines {
		raw = strings.TrimSpace(strings.NewReplacer("**", "", "*", "").Replace(raw))
		if raw == "" || strings.HasPrefix(raw, "[") {
			continue
		}
		notes = append(notes, splitNote(raw))
	}

	return notes, translation, nil
}

// splitNote separates "pattern: explanation" bullets; a bullet without a
// colon becomes an explanation with no named pattern.
func splitNote(raw string) pipeline.GrammarNote {
	if pattern, explanation, ok := strings.Cut(raw, ":"); ok {
		return pipeline.GrammarNote{
			Pattern:     strings.TrimSpace(pattern),
			Explanation: strings.TrimSpace(explanation),
		}
	}
	return pipeline.GrammarNote{Explanation: raw}
}

func fallbackTranslation(response string) string {
	if m := translationRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func fallbackGrammar(response string) []string {
	m := grammarRe.FindStringSubmatch(response)
	if m == nil {
		return nil
	}
	var out []string
	for _, b := range bulletRe.FindAllStringSubmatch(m[1], -1) {
		if s := strings.TrimSpace(b[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}
