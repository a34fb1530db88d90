// Package contour binarizes grayscale frames and traces the borders of their foreground regions
package contour

import (
	"image"
)

// BorderKind tells whether a border surrounds a foreground region or a hole inside one.
type BorderKind int

const (
	Outer BorderKind = iota
	Hole
)

func (k BorderKind) String() string {
	if k == Hole {
		return "hole"
	}
	return "outer"
}

// Contour is one traced border in image coordinates.
type Contour struct {
	Points []image.Point
	Kind   BorderKind
	Parent int // index of the enclosing border, -1 for none
}

// Binarize maps pixels above threshold to 255 and the rest to 0.
func Binarize(src *image.Gray, threshold uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		off := src.PixOffset(b.Min.X, b.Min.Y+y)
		row := src.Pix[off : off+b.Dx()]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x, v := range row {
			if v > threshold {
				out[x] = 255
			}
		}
	}
	return dst
}

// clockwise neighbour offsets, y pointing down
var dirs = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

func dirOf(center, p image.Point) int {
	d := p.Sub(center)
	for i, o := range dirs {
		if o == d {
			return i
		}
	}
	return 0
}

// Find traces every outer and hole border of the non-zero pixels in img
// (Suzuki-Abe border following). Points are relative to img's origin.
func Find(img *image.Gray) []Contour {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := newTracer(w+2, h+2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 0 {
				t.set(image.Pt(x+1, y+1), 1)
			}
		}
	}

	var contours []Contour
	nbd := int32(1)
	for y := 1; y < t.h-1; y++ {
		lnbd := int32(1)
		for x := 1; x < t.w-1; x++ {
			p := image.Pt(x, y)
			v := t.at(p)
			if v == 0 {
				continue
			}

			var from image.Point
			kind, start := Outer, false
			switch {
			case v == 1 && t.at(image.Pt(x-1, y)) == 0:
				from, start = image.Pt(x-1, y), true
			case v >= 1 && t.at(image.Pt(x+1, y)) == 0:
				from, kind, start = image.Pt(x+1, y), Hole, true
				if v > 1 {
					lnbd = v
				}
			}

			if start {
				nbd++
				pts := t.follow(p, from, nbd)
				for i := range pts {
					pts[i] = pts[i].Sub(image.Pt(1, 1))
				}
				contours = append(contours, Contour{
					Points: pts,
					Kind:   kind,
					Parent: parentOf(contours, lnbd, kind),
				})
			}

			if av := t.at(p); av != 1 {
				if av < 0 {
					av = -av
				}
				lnbd = av
			}
		}
	}
	return contours
}

// parentOf resolves the enclosing border from the last border met on the row.
// Border numbers start at 2; 1 is the image frame.
func parentOf(contours []Contour, lnbd int32, kind BorderKind) int {
	if lnbd < 2 {
		return -1
	}
	last := int(lnbd - 2)
	if contours[last].Kind == kind {
		return contours[last].Parent
	}
	return last
}

type tracer struct {
	w, h int
	f    []int32
}

func newTracer(w, h int) *tracer {
	return &tracer{w: w, h: h, f: make([]int32, w*h)}
}

func (t *tracer) at(p image.Point) int32     { return t.f[p.Y*t.w+p.X] }
func (t *tracer) set(p image.Point, v int32) { t.f[p.Y*t.w+p.X] = v }

// follow walks one border starting at p0, entering from the zero pixel at from,
// and labels it with nbd.
func (t *tracer) follow(p0, from image.Point, nbd int32) []image.Point {
	start := dirOf(p0, from)
	found := -1
	for k := 0; k < 8; k++ {
		d := (start + k) % 8
		if t.at(p0.Add(dirs[d])) != 0 {
			found = d
			break
		}
	}
	if found < 0 {
		t.set(p0, -nbd)
		return []image.Point{p0}
	}

	p1 := p0.Add(dirs[found])
	p2, p3 := p1, p0
	var pts []image.Point
	for {
		d2 := dirOf(p3, p2)
		eastZero := false
		var p4 image.Point
		for k := 1; k <= 8; k++ {
			d := (d2 - k + 8) % 8
			q := p3.Add(dirs[d])
			if t.at(q) != 0 {
				p4 = q
				break
			}
			if d == 0 {
				eastZero = true
			}
		}

		pts = append(pts, p3)
		if eastZero {
			t.set(p3, -nbd)
		} else if t.at(p3) == 1 {
			t.set(p3, nbd)
		}

		if p4 == p0 && p3 == p1 {
			return pts
		}
		p2, p3 = p3, p4
	}
}
