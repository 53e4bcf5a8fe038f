// Package render draws resolved reading placements onto the source image.
// It mirrors the classic furigana presentation: red reading text on a
// translucent white backing box above the glyphs, plus a thin frame around
// the image.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"sync"

	_ "image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/logging"
)

var (
	readingColor   = color.RGBA{R: 220, A: 255}
	readingBacking = color.RGBA{R: 255, G: 255, B: 255, A: 220}
	meaningColor   = color.RGBA{G: 100, B: 200, A: 255}
	meaningBacking = color.RGBA{R: 255, G: 255, B: 255, A: 200}
	frameColor     = color.RGBA{R: 100, G: 100, B: 100, A: 255}
)

// Annotator renders placements onto an image. Readings use the full
// configured size, meanings a smaller face.
type Annotator struct {
	readingFace font.Face
	meaningFace font.Face
	mu          sync.Mutex // font.Face is not safe for concurrent use
}

// NewAnnotator loads the annotation font from the resolved path. Both
// standalone fonts and collections (.ttc) are accepted; for a collection
// the first face is used.
func NewAnnotator(fontPath string, size float64) (*Annotator, error) {
	raw, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %q: %w", fontPath, err)
	}

	var f *opentype.Font
	if coll, cerr := opentype.ParseCollection(raw); cerr == nil {
		f, err = coll.Font(0)
		if err != nil {
			return nil, fmt.Errorf("failed to load font from collection %q: %w", fontPath, err)
		}
	} else {
		f, err = opentype.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font %q: %w", fontPath, err)
		}
	}

	readingFace, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build font face: %w", err)
	}
	meaningFace, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size * 0.8,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build meaning font face: %w", err)
	}

	return &Annotator{readingFace: readingFace, meaningFace: meaningFace}, nil
}

// Annotate draws every placement onto a copy of the image and returns the
// result as PNG bytes. The source image is never modified.
func (a *Annotator) Annotate(imageBytes []byte, elements []pipeline.TextElement, placements []pipeline.Placement) ([]byte, error) {
	logger := logging.GetCollaboratorLogger("renderer", "annotate")

	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	a.mu.Lock()
	for _, p := range placements {
		a.drawPlacement(canvas, p)
	}
	a.mu.Unlock()

	drawFrame(canvas)

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}

	logger.Info().
		Int("placements", len(placements)).
		Int("elements", len(elements)).
		Msg("Image annotated")

	return out.Bytes(), nil
}

// drawPlacement renders one annotation: backing box first, text on top.
// Readings are red above the glyphs, meanings blue below them. The anchor
// is the horizontal center of the text; an anchor pushed outside the image
// by band stacking is clamped back inside it.
func (a *Annotator) drawPlacement(canvas *image.RGBA, p pipeline.Placement) {
	face := a.readingFace
	fg, bg := readingColor, readingBacking
	if p.Kind == pipeline.PlacementMeaning {
		face = a.meaningFace
		fg, bg = meaningColor, meaningBacking
	}

	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	width := font.MeasureString(face, p.Text).Ceil()

	top := p.Anchor.Y
	if top < 2 {
		top = 2
	}
	if bottom := canvas.Bounds().Max.Y; top+height+2 > bottom {
		top = bottom - height - 2
	}
	left := p.Anchor.X - width/2
	if left < 2 {
		left = 2
	}

	backing := image.Rect(left-2, top-2, left+width+2, top+height+2)
	draw.Draw(canvas, backing.Intersect(canvas.Bounds()), image.NewUniform(bg), image.Point{}, draw.Over)

	drawer := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(left),
			Y: fixed.I(top + ascent),
		},
	}
	drawer.DrawString(p.Text)
}

// drawFrame draws a 2px border just inside the image bounds.
func drawFrame(canvas *image.RGBA) {
	b := canvas.Bounds()
	frame := image.NewUniform(frameColor)
	draw.Draw(canvas, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+2), frame, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(b.Min.X, b.Max.Y-2, b.Max.X, b.Max.Y), frame, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(b.Min.X, b.Min.Y, b.Min.X+2, b.Max.Y), frame, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(b.Max.X-2, b.Min.Y, b.Max.X, b.Max.Y), frame, image.Point{}, draw.Src)
}
