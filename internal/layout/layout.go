// Package layout converts annotated tokens into non-colliding reading
// placements in image-pixel space. Collisions are resolved by promoting a
// placement to a higher stacking band, never by shifting it horizontally,
// so left-to-right reading order is preserved.
package layout

import (
	"sort"
	"unicode/utf8"

	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/config"
	"github.com/kanjilens/kanjilens/pkg/geometry"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

// Engine computes annotation placements.
type Engine struct {
	charWidth int // estimated rendered width per reading rune, px
	maxBands  int
}

// New creates an Engine from layout configuration.
func New(cfg *config.LayoutConfig) *Engine {
	return &Engine{
		charWidth: cfg.CharWidth,
		maxBands:  cfg.MaxBands,
	}
}

// maxMeaningRunes caps the meaning text drawn below an element.
const maxMeaningRunes = 30

// candidate is a placement before collision resolution.
type candidate struct {
	tokenID  string
	reading  string
	meaning  string // first gloss, truncated; empty when the token has none
	line     int
	centerX  int
	width    int
	elementY int
	baseY    int // top of the source bbox
	bottomY  int // bottom of the source bbox
	lineH    int
	seq      int // token creation order
}

// Layout computes a deterministic, collision-free placement for every
// token whose source element can anchor one. Tokens that cannot be placed
// within the band limit are dropped and reported by ID; the stage never
// fails outright.
func (e *Engine) Layout(elements []pipeline.TextElement, tokens []pipeline.Token) ([]pipeline.Placement, []string) {
	logger := logging.GetLogger("layout")

	lineOf, lineHeights := groupLines(elements)

	byID := make(map[string]pipeline.TextElement, len(elements))
	for _, el := range elements {
		byID[el.ID] = el
	}

	// Sub-span tokenization: several tokens may share one element, each
	// anchored over its proportional slice of the element box.
	tokensPerElement := make(map[string]int, len(elements))
	for _, t := range tokens {
		tokensPerElement[t.ElementID]++
	}

	ordinal := make(map[string]int, len(elements))
	candidates := make([]candidate, 0, len(tokens))
	for seq, t := range tokens {
		el, ok := byID[t.ElementID]
		if !ok || el.BBox.Empty() || t.Reading == "" {
			// Degenerate or unknown anchor: nothing to place, not a drop.
			continue
		}
		slot := ordinal[t.ElementID]
		ordinal[t.ElementID]++
		total := tokensPerElement[t.ElementID]

		// Anchor over the center of this token's slice of the element.
		centerX := el.BBox.X + el.BBox.W*(2*slot+1)/(2*total)

		line := lineOf[el.ID]
		candidates = append(candidates, candidate{
			tokenID:  t.ID,
			reading:  t.Reading,
			meaning:  meaningText(t),
			line:     line,
			centerX:  centerX,
			width:    utf8.RuneCountInString(t.Reading) * e.charWidth,
			elementY: el.BBox.Y,
			baseY:    el.BBox.Y,
			bottomY:  el.BBox.Bottom(),
			lineH:    lineHeights[line],
			seq:      seq,
		})
	}

	// Left-to-right, then top-to-bottom, then creation order: the walk
	// below is deterministic for identical input.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.centerX != b.centerX {
			return a.centerX < b.centerX
		}
		if a.elementY != b.elementY {
			return a.elementY < b.elementY
		}
		return a.seq < b.seq
	})

	// claimed[line][band] is the rightmost x-extent already taken on that
	// band. Candidates arrive sorted by x, so one edge per band suffices.
	// Readings stack upward from the element top, meanings downward from
	// its bottom; the two sides never collide so they claim independently.
	claimedAbove := make(map[int][]int)
	claimedBelow := make(map[int][]int)
	droppedSet := make(map[string]bool)

	var placements []pipeline.Placement
	var dropped []string
	for _, c := range candidates {
		band, ok := claimBand(claimedAbove, c.line, c.centerX, c.width, e.maxBands)
		if !ok {
			droppedSet[c.tokenID] = true
			dropped = append(dropped, c.tokenID)
			continue
		}

		placements = append(placements, pipeline.Placement{
			TokenID: c.tokenID,
			Kind:    pipeline.PlacementReading,
			Anchor: geometry.Point{
				X: c.centerX,
				Y: c.baseY - c.lineH*(band+1),
			},
			Text: c.reading,
			Band: band,
		})
	}

	for _, c := range candidates {
		if c.meaning == "" {
			continue
		}
		// Latin meaning text is roughly half as wide per rune as kana.
		width := utf8.RuneCountInString(c.meaning) * (e.charWidth + 1) / 2
		band, ok := claimBand(claimedBelow, c.line, c.centerX, width, e.maxBands)
		if !ok {
			if !droppedSet[c.tokenID] {
				droppedSet[c.tokenID] = true
				dropped = append(dropped, c.tokenID)
			}
			continue
		}

		placements = append(placements, pipeline.Placement{
			TokenID: c.tokenID,
			Kind:    pipeline.PlacementMeaning,
			Anchor: geometry.Point{
				X: c.centerX,
				Y: c.bottomY + 3 + c.lineH*band,
			},
			Text: c.meaning,
			Band: band,
		})
	}

	logger.Debug().
		Int("candidates", len(candidates)).
		Int("placements", len(placements)).
		Int("dropped", len(dropped)).
		Msg("Layout resolved")

	return placements, dropped
}

// claimBand finds the lowest band on the line where [centerX±width/2] does
// not overlap the claimed extent, records the claim, and reports failure
// when every band up to max is taken.
func claimBand(claimed map[int][]int, line, centerX, width, maxBands int) (int, bool) {
	bands, ok := claimed[line]
	if !ok {
		bands = make([]int, maxBands)
		for i := range bands {
			bands[i] = -1 << 31
		}
		claimed[line] = bands
	}

	left := centerX - width/2
	right := centerX + width/2

	band := 0
	for band < maxBands && left < bands[band] {
		band++
	}
	if band >= maxBands {
		return 0, false
	}
	bands[band] = right
	return band, true
}

// meaningText returns the token's first gloss, truncated for drawing.
func meaningText(t pipeline.Token) string {
	if len(t.Glosses) == 0 {
		return ""
	}
	runes := []rune(t.Glosses[0])
	if len(runes) > maxMeaningRunes {
		return string(runes[:maxMeaningRunes]) + "..."
	}
	return t.Glosses[0]
}

// groupLines assigns each element to a text line by vertical bbox overlap
// and returns each line's height (the tallest element on it). Elements are
// considered in top-to-bottom, left-to-right order.
func groupLines(elements []pipeline.TextElement) (map[string]int, []int) {
	sorted := make([]pipeline.TextElement, 0, len(elements))
	for _, el := range elements {
		if el.BBox.Empty() {
			continue
		}
		sorted = append(sorted, el)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].BBox, sorted[j].BBox
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	lineOf := make(map[string]int, len(sorted))
	var lineHeights []int
	var lineRange geometry.Rect
	current := -1

	for _, el := range sorted {
		box := el.BBox
		if current >= 0 && box.VertOverlaps(lineRange) {
			lineOf[el.ID] = current
			// Extend the line's running y-range.
			top := min(lineRange.Y, box.Y)
			bottom := max(lineRange.Bottom(), box.Bottom())
			lineRange = geometry.Rect{X: 0, Y: top, W: 1, H: bottom - top}
			if box.H > lineHeights[current] {
				lineHeights[current] = box.H
			}
			continue
		}
		current++
		lineOf[el.ID] = current
		lineRange = geometry.Rect{X: 0, Y: box.Y, W: 1, H: box.H}
		lineHeights = append(lineHeights, box.H)
	}

	return lineOf, lineHeights
}
