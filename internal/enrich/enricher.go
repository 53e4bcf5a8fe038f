// Package enrich implements the lexical enrichment stage: per-element
// tokenization, reading resolution, and dictionary lookup, fanned out
// across a bounded worker pool and merged back in element order.
package enrich

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/logging"
	"github.com/kanjilens/kanjilens/pkg/nlp"
)

// Enricher resolves text elements into annotated tokens.
type Enricher struct {
	tokenizer  nlp.Tokenizer
	translit   nlp.Transliterator
	dictionary nlp.Dictionary
	workers    int
	maxGlosses int
}

// New creates an Enricher. workers bounds the per-element concurrency.
func New(tokenizer nlp.Tokenizer, translit nlp.Transliterator, dictionary nlp.Dictionary, workers, maxGlosses int) *Enricher {
	if workers < 1 {
		workers = 1
	}
	if maxGlosses < 1 {
		maxGlosses = 2
	}
	return &Enricher{
		tokenizer:  tokenizer,
		translit:   translit,
		dictionary: dictionary,
		workers:    workers,
		maxGlosses: maxGlosses,
	}
}

// Enrich tokenizes each element and resolves readings and glosses. Element
// work runs concurrently but results are merged in element order, so the
// output is independent of completion order. Elements whose tokenizer call
// fails are reported in the degraded ID list and excluded from the token
// output; elements with empty text are skipped silently. The only error
// returned is context cancellation.
func (e *Enricher) Enrich(ctx context.Context, elements []pipeline.TextElement) ([]pipeline.Token, []string, error) {
	logger := logging.GetLogger("enricher")

	results := make([][]pipeline.Token, len(elements))
	failed := make([]bool, len(elements))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, el := range elements {
		if strings.TrimSpace(el.Text) == "" {
			continue
		}
		// Cancellation abandons elements not yet dispatched.
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			tokens, err := e.enrichElement(el)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("element_id", el.ID).
					Str("text", el.Text).
					Msg("Element enrichment degraded")
				failed[i] = true
				return nil
			}
			results[i] = tokens
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var tokens []pipeline.Token
	var degraded []string
	for i, el := range elements {
		if failed[i] {
			degraded = append(degraded, el.ID)
			continue
		}
		tokens = append(tokens, results[i]...)
	}

	logger.Info().
		Int("elements", len(elements)).
		Int("tokens", len(tokens)).
		Int("degraded", len(degraded)).
		Msg("Enrichment complete")

	return tokens, degraded, nil
}

func (e *Enricher) enrichElement(el pipeline.TextElement) ([]pipeline.Token, error) {
	morphemes, err := e.tokenizer.Tokenize(el.Text)
	if err != nil {
		return nil, err
	}

	tokens := make([]pipeline.Token, 0, len(morphemes))
	for _, m := range morphemes {
		if strings.TrimSpace(m.Surface) == "" {
			continue
		}
		hiragana, romaji := e.translit.Convert(m.Surface, m.ReadingKana)
		tokens = append(tokens, pipeline.Token{
			ID:           uuid.New().String(),
			ElementID:    el.ID,
			Surface:      m.Surface,
			Reading:      hiragana,
			Romaji:       romaji,
			Glosses:      e.lookupGlosses(m),
			PartOfSpeech: mapPartOfSpeech(m.POS),
		})
	}
	return tokens, nil
}

// lookupGlosses resolves dictionary senses for a morpheme. The surface
// form is tried first, then its NFKC normalization, then the analyzer's
// base form; within a hit, senses arrive ordered by rank so the result is
// deterministic for identical input.
func (e *Enricher) lookupGlosses(m nlp.Morpheme) []string {
	if !nlp.ContainsKanji(m.Surface) {
		return nil
	}

	forms := []string{m.Surface}
	if normalized := norm.NFKC.String(m.Surface); normalized != m.Surface {
		forms = append(forms, normalized)
	}
	if m.BaseForm != m.Surface {
		forms = append(forms, m.BaseForm)
	}

	for _, form := range forms {
		senses := e.dictionary.Lookup(form)
		if len(senses) == 0 {
			continue
		}
		var glosses []string
		for _, sense := range senses {
			for _, g := range sense.Glosses {
				if g == "" {
					continue
				}
				glosses = append(glosses, g)
				if len(glosses) == e.maxGlosses {
					return glosses
				}
			}
		}
		if len(glosses) > 0 {
			return glosses
		}
	}
	return nil
}

// mapPartOfSpeech folds the analyzer's Japanese category labels into the
// document's coarse enum.
func mapPartOfSpeech(pos string) pipeline.PartOfSpeech {
	switch pos {
	case "名詞", "代名詞", "接頭詞":
		return pipeline.POSNoun
	case "動詞", "助動詞":
		return pipeline.POSVerb
	case "形容詞", "連体詞":
		return pipeline.POSAdjective
	case "助詞", "接続詞":
		return pipeline.POSParticle
	case "副詞", "感動詞":
		return pipeline.POSAdverb
	case "記号":
		return pipeline.POSSymbol
	default:
		return pipeline.POSOther
	}
}
