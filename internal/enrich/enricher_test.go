package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/geometry"
	"github.com/kanjilens/kanjilens/pkg/nlp"
)

// splitTokenizer emits one morpheme per space-separated field, failing on
// any text containing "FAIL".
type splitTokenizer struct {
	delay time.Duration
}

func (s *splitTokenizer) Tokenize(text string) ([]nlp.Morpheme, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("tokenizer crashed")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	var out []nlp.Morpheme
	for _, field := range strings.Fields(text) {
		out = append(out, nlp.Morpheme{Surface: field, POS: "名詞", BaseForm: field})
	}
	return out, nil
}

type echoTranslit struct{}

func (echoTranslit) Convert(surface, readingKana string) (string, string) {
	return "よみ", "yomi"
}

type mapDictionary map[string][]nlp.Sense

func (m mapDictionary) Lookup(form string) []nlp.Sense { return m[form] }

func element(id, text string) pipeline.TextElement {
	return pipeline.TextElement{ID: id, Text: text, BBox: geometry.NewRect(0, 0, 10, 10)}
}

func TestEnrichPreservesElementOrder(t *testing.T) {
	// Enough elements that pool completion order would scramble output if
	// the merge were wrong.
	var elements []pipeline.TextElement
	for i := 0; i < 20; i++ {
		elements = append(elements, element(fmt.Sprintf("el-%d", i), fmt.Sprintf("語%d", i)))
	}

	e := New(&splitTokenizer{delay: time.Millisecond}, echoTranslit{}, mapDictionary{}, 8, 2)
	tokens, degraded, err := e.Enrich(context.Background(), elements)
	require.NoError(t, err)
	assert.Empty(t, degraded)
	require.Len(t, tokens, 20)

	for i, tok := range tokens {
		assert.Equal(t, fmt.Sprintf("el-%d", i), tok.ElementID, "token order must follow element order")
	}
}

func TestEnrichDegradesFailingElementOnly(t *testing.T) {
	elements := []pipeline.TextElement{
		element("el-1", "日本"),
		element("el-2", "FAIL"),
		element("el-3", "語"),
	}

	e := New(&splitTokenizer{}, echoTranslit{}, mapDictionary{}, 2, 2)
	tokens, degraded, err := e.Enrich(context.Background(), elements)
	require.NoError(t, err)

	assert.Equal(t, []string{"el-2"}, degraded)
	require.Len(t, tokens, 2)
	assert.Equal(t, "el-1", tokens[0].ElementID)
	assert.Equal(t, "el-3", tokens[1].ElementID)
}

func TestEnrichSkipsEmptyTextSilently(t *testing.T) {
	elements := []pipeline.TextElement{
		element("el-1", "  "),
		element("el-2", "語"),
	}

	e := New(&splitTokenizer{}, echoTranslit{}, mapDictionary{}, 2, 2)
	tokens, degraded, err := e.Enrich(context.Background(), elements)
	require.NoError(t, err)

	assert.Empty(t, degraded, "empty text is skipped, not degraded")
	require.Len(t, tokens, 1)
	assert.Equal(t, "el-2", tokens[0].ElementID)
}

func TestEnrichCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(&splitTokenizer{}, echoTranslit{}, mapDictionary{}, 2, 2)
	_, _, err := e.Enrich(ctx, []pipeline.TextElement{element("el-1", "語")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookupGlossesFallbackOrder(t *testing.T) {
	dict := mapDictionary{
		"走っ": nil,
		"走る": {{Reading: "はしる", Glosses: []string{"to run"}}},
	}
	e := New(&splitTokenizer{}, echoTranslit{}, dict, 1, 2)

	glosses := e.lookupGlosses(nlp.Morpheme{Surface: "走っ", BaseForm: "走る"})
	assert.Equal(t, []string{"to run"}, glosses, "base form is consulted on surface miss")
}

func TestLookupGlossesPrefersSurfaceAndCaps(t *testing.T) {
	dict := mapDictionary{
		"日本": {
			{Reading: "にほん", Glosses: []string{"Japan", "Nippon", "the Japanese state"}, Rank: 1},
		},
	}
	e := New(&splitTokenizer{}, echoTranslit{}, dict, 1, 2)

	glosses := e.lookupGlosses(nlp.Morpheme{Surface: "日本", BaseForm: "日本"})
	assert.Equal(t, []string{"Japan", "Nippon"}, glosses, "gloss list capped at configured maximum")
}

func TestLookupGlossesSkipsKanaOnlySurfaces(t *testing.T) {
	dict := mapDictionary{"これ": {{Glosses: []string{"this"}}}}
	e := New(&splitTokenizer{}, echoTranslit{}, dict, 1, 2)
	assert.Nil(t, e.lookupGlosses(nlp.Morpheme{Surface: "これ", BaseForm: "これ"}))
}

func TestLookupGlossesDeterministic(t *testing.T) {
	dict := mapDictionary{
		"語": {
			{Reading: "ご", Glosses: []string{"language"}, Rank: 1},
			{Reading: "かたり", Glosses: []string{"narration"}, Rank: 2},
		},
	}
	e := New(&splitTokenizer{}, echoTranslit{}, dict, 1, 2)

	first := e.lookupGlosses(nlp.Morpheme{Surface: "語", BaseForm: "語"})
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.lookupGlosses(nlp.Morpheme{Surface: "語", BaseForm: "語"}))
	}
}

func TestMapPartOfSpeech(t *testing.T) {
	tests := []struct {
		pos  string
		want pipeline.PartOfSpeech
	}{
		{"名詞", pipeline.POSNoun},
		{"動詞", pipeline.POSVerb},
		{"形容詞", pipeline.POSAdjective},
		{"助詞", pipeline.POSParticle},
		{"副詞", pipeline.POSAdverb},
		{"記号", pipeline.POSSymbol},
		{"フィラー", pipeline.POSOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapPartOfSpeech(tt.pos), tt.pos)
	}
}
