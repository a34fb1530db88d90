package watcher

import "image"

// Band returns the search area inside a capture with bounds b: from half
// height down to matchFloor, over the left quarter of the width. The result
// is clamped to b and may be empty when matchFloor is above the midline.
func Band(b image.Rectangle, matchFloor int) image.Rectangle {
	top := b.Dy() / BandTopDivisor
	bottom := min(matchFloor, b.Dy())
	if bottom <= top {
		return image.Rectangle{}
	}
	r := image.Rect(0, top, b.Dx()/BandWidthDivisor, bottom).Add(b.Min)
	return r.Intersect(b)
}
