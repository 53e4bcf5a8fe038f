// Package geometry provides the pixel-space primitives shared by the OCR,
// layout, and rendering layers. Coordinates follow image convention: the
// origin is the top-left corner and Y grows downward.
package geometry

// Point represents a 2D pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an axis-aligned rectangle in image pixel coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// NewRect creates a rectangle from its top-left corner and dimensions.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Right returns the right edge X coordinate.
func (r Rect) Right() int {
	return r.X + r.W
}

// Bottom returns the bottom edge Y coordinate.
func (r Rect) Bottom() int {
	return r.Y + r.H
}

// CenterX returns the X coordinate of the horizontal center.
func (r Rect) CenterX() int {
	return r.X + r.W/2
}

// Empty reports whether the rectangle has no area. OCR engines occasionally
// emit zero-width or zero-height boxes for noise; such boxes cannot anchor
// an annotation.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// VertOverlaps reports whether the vertical ranges of two rectangles
// intersect. Elements whose boxes overlap vertically belong to the same
// text line.
func (r Rect) VertOverlaps(other Rect) bool {
	return r.Y < other.Bottom() && other.Y < r.Bottom()
}

// HorizOverlaps reports whether the horizontal ranges of two rectangles
// intersect.
func (r Rect) HorizOverlaps(other Rect) bool {
	return r.X < other.Right() && other.X < r.Right()
}
