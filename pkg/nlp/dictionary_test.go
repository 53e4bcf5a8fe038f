package nlp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDict = `{
  "entries": [
    {
      "kanji": ["日本"],
      "kana": ["にほん"],
      "senses": [
        {"reading": "にっぽん", "glosses": ["Nippon"], "rank": 2},
        {"reading": "にほん", "glosses": ["Japan"], "rank": 1}
      ]
    },
    {
      "kanji": ["語"],
      "kana": ["ご"],
      "senses": [{"reading": "ご", "glosses": ["language", "word"], "rank": 1}]
    }
  ]
}`

func loadTestDictionary(t *testing.T) *IndexedDictionary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dict.json")
	require.NoError(t, os.WriteFile(path, []byte(testDict), 0o644))

	d := NewIndexedDictionary()
	require.NoError(t, d.Load(path))
	return d
}

func TestDictionaryLookupOrdersByRank(t *testing.T) {
	d := loadTestDictionary(t)
	defer d.Close()

	senses := d.Lookup("日本")
	require.Len(t, senses, 2)
	assert.Equal(t, "にほん", senses[0].Reading, "lower rank first")
	assert.Equal(t, []string{"Japan"}, senses[0].Glosses)
}

func TestDictionaryLookupByKana(t *testing.T) {
	d := loadTestDictionary(t)
	defer d.Close()

	senses := d.Lookup("ご")
	require.Len(t, senses, 1)
	assert.Equal(t, []string{"language", "word"}, senses[0].Glosses)
}

func TestDictionaryMissReturnsEmpty(t *testing.T) {
	d := loadTestDictionary(t)
	defer d.Close()
	assert.Empty(t, d.Lookup("存在しない"))
}

func TestDictionaryUnloadedMisses(t *testing.T) {
	d := NewIndexedDictionary()
	assert.False(t, d.Loaded())
	assert.Empty(t, d.Lookup("日本"))
}

func TestDictionaryLoadBadFile(t *testing.T) {
	d := NewIndexedDictionary()
	assert.Error(t, d.Load(filepath.Join(t.TempDir(), "missing.json")))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Error(t, d.Load(path))
	assert.False(t, d.Loaded())
}

func TestDictionaryCloseClearsIndex(t *testing.T) {
	d := loadTestDictionary(t)
	d.Close()
	assert.False(t, d.Loaded())
	assert.Empty(t, d.Lookup("日本"))
}

func TestContainsKanji(t *testing.T) {
	assert.True(t, ContainsKanji("日本語"))
	assert.True(t, ContainsKanji("たべ物"))
	assert.False(t, ContainsKanji("ひらがな"))
	assert.False(t, ContainsKanji("katakana"))
	assert.False(t, ContainsKanji(""))
}
