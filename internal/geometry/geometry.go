package geometry

import (
	"image"
	"math"
)

// Point is a position in image coordinates.
type Point struct {
	X, Y float64
}

// Segment is a line segment between two points.
type Segment struct {
	A, B Point
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return math.Hypot(s.B.X-s.A.X, s.B.Y-s.A.Y)
}

// Distance returns the Euclidean distance from p to the closest point of the segment.
func (s Segment) Distance(p Point) float64 {
	dx, dy := s.B.X-s.A.X, s.B.Y-s.A.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-s.A.X, p.Y-s.A.Y)
	}
	t := ((p.X-s.A.X)*dx + (p.Y-s.A.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	cx, cy := s.A.X+t*dx, s.A.Y+t*dy
	return math.Hypot(p.X-cx, p.Y-cy)
}

// Ratio returns min(a, b) / max(a, b).
func Ratio(a, b float64) float64 {
	return math.Min(a, b) / math.Max(a, b)
}

// Corner indexes into Square.Corners.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Square is a candidate square region derived from one contour.
type Square struct {
	Corners [4]Point
	Contour []image.Point
}

// Bounds returns the integer rectangle spanned by the corners.
func (s Square) Bounds() image.Rectangle {
	tl, br := s.Corners[TopLeft], s.Corners[BottomRight]
	return image.Rect(int(tl.X), int(tl.Y), int(br.X), int(br.Y))
}

// Sides returns the top, bottom, left and right edges.
func (s Square) Sides() (top, bottom, left, right Segment) {
	tl, tr := s.Corners[TopLeft], s.Corners[TopRight]
	br, bl := s.Corners[BottomRight], s.Corners[BottomLeft]
	return Segment{tl, tr}, Segment{bl, br}, Segment{tl, bl}, Segment{tr, br}
}
