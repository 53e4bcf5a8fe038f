package nlp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Sense is one dictionary sense: a reading plus its ordered glosses. Rank
// carries the source's frequency ordering when present; lower is more
// common.
type Sense struct {
	Reading string   `json:"reading"`
	Glosses []string `json:"glosses"`
	Rank    int      `json:"rank"`
}

// Dictionary resolves a surface or normalized form to an ordered sense
// list, empty on miss.
type Dictionary interface {
	Lookup(form string) []Sense
}

// dictEntry is the on-disk entry shape: a JMdict-style record keyed by its
// kanji and kana writings.
type dictEntry struct {
	Kanji  []string `json:"kanji"`
	Kana   []string `json:"kana"`
	Senses []Sense  `json:"senses"`
}

// dictFile is the on-disk file shape.
type dictFile struct {
	Entries []dictEntry `json:"entries"`
}

// IndexedDictionary is an in-memory dictionary index with an explicit
// load/close lifecycle. After Load the index is read-only and safe for
// concurrent lookups.
type IndexedDictionary struct {
	mu     sync.RWMutex
	index  map[string][]Sense
	loaded bool
}

// NewIndexedDictionary creates an empty dictionary. Until Load succeeds
// every lookup misses, which downstream treats as "no glosses", not as an
// error.
func NewIndexedDictionary() *IndexedDictionary {
	return &IndexedDictionary{index: make(map[string][]Sense)}
}

// Load reads a JSON dictionary file and builds the index. Senses for each
// key are ordered by rank, then by insertion order, so lookups are
// deterministic for identical input data.
func (d *IndexedDictionary) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dictionary file: %w", err)
	}

	var file dictFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse dictionary file: %w", err)
	}

	index := make(map[string][]Sense)
	for _, entry := range file.Entries {
		for _, key := range append(entry.Kanji, entry.Kana...) {
			if key == "" {
				continue
			}
			index[key] = append(index[key], entry.Senses...)
		}
	}
	for key := range index {
		senses := index[key]
		sort.SliceStable(senses, func(i, j int) bool {
			return senses[i].Rank < senses[j].Rank
		})
		index[key] = senses
	}

	d.mu.Lock()
	d.index = index
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// Loaded reports whether a dictionary file has been indexed.
func (d *IndexedDictionary) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Lookup returns the ordered senses for a form, or nil on miss.
func (d *IndexedDictionary) Lookup(form string) []Sense {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.index[form]
}

// Close releases the index.
func (d *IndexedDictionary) Close() {
	d.mu.Lock()
	d.index = make(map[string][]Sense)
	d.loaded = false
	d.mu.Unlock()
}
