// Package subimage finds the offsets where a small grayscale image best matches inside a larger one
package subimage

import (
	"context"
	"image"
	"sort"
)

// DefaultPruneDistance discards offsets whose normalized distance exceeds it.
const DefaultPruneDistance = 0.05

// Candidate is one match offset. Distance is the mean squared pixel difference
// normalized to [0, 1]; 0 is a perfect match.
type Candidate struct {
	X, Y     int
	Distance float64
}

// Searcher scans every offset of the needle inside the haystack.
type Searcher struct {
	// PruneDistance is the largest distance kept; negative keeps every offset.
	PruneDistance float64
}

// NewSearcher creates a searcher with the given prune distance.
func NewSearcher(pruneDistance float64) *Searcher {
	return &Searcher{PruneDistance: pruneDistance}
}

// Search returns at most maxResults non-overlapping candidates, best first.
// A needle larger than the haystack or an empty needle yields no candidates.
// The only error is ctx's.
func (s *Searcher) Search(ctx context.Context, haystack, needle *image.Gray, maxResults int) ([]Candidate, error) {
	maxResults = max(1, maxResults)
	hb, nb := haystack.Bounds(), needle.Bounds()
	nw, nh := nb.Dx(), nb.Dy()
	if nw == 0 || nh == 0 || nw > hb.Dx() || nh > hb.Dy() {
		return nil, nil
	}

	scale := float64(nw*nh) * 255 * 255
	budget := int64(-1)
	if s.PruneDistance >= 0 {
		budget = int64(s.PruneDistance * scale)
	}

	var found []Candidate
	for y := 0; y <= hb.Dy()-nh; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x <= hb.Dx()-nw; x++ {
			sum, ok := sqDiff(haystack, needle, hb.Min.X+x, hb.Min.Y+y, budget)
			if !ok {
				continue
			}
			found = append(found, Candidate{X: x, Y: y, Distance: float64(sum) / scale})
		}
	}

	return suppress(found, nw, nh, maxResults), nil
}

// sqDiff sums squared differences of the needle placed at (ox, oy), giving up
// once the sum passes budget (budget < 0 never gives up).
func sqDiff(haystack, needle *image.Gray, ox, oy int, budget int64) (int64, bool) {
	nb := needle.Bounds()
	var sum int64
	for y := 0; y < nb.Dy(); y++ {
		hOff := haystack.PixOffset(ox, oy+y)
		nOff := needle.PixOffset(nb.Min.X, nb.Min.Y+y)
		hRow := haystack.Pix[hOff : hOff+nb.Dx()]
		nRow := needle.Pix[nOff : nOff+nb.Dx()]
		for i, hv := range hRow {
			d := int64(hv) - int64(nRow[i])
			sum += d * d
		}
		if budget >= 0 && sum > budget {
			return 0, false
		}
	}
	return sum, true
}

// suppress keeps the best candidates whose needle footprints do not overlap.
func suppress(found []Candidate, nw, nh, limit int) []Candidate {
	sort.SliceStable(found, func(i, j int) bool { return found[i].Distance < found[j].Distance })

	kept := make([]Candidate, 0, limit)
	for _, c := range found {
		if len(kept) == limit {
			break
		}
		overlaps := false
		for _, k := range kept {
			if abs(c.X-k.X) < nw && abs(c.Y-k.Y) < nh {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
