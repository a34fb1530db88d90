package geometry

import (
	"sort"

	"github.com/GriffinCanCode/queue-sentinel/internal/contour"
)

// bucket is one histogram entry: a coordinate and how many contour points share it.
type bucket struct {
	coord int
	count int
}

// Detect returns the contours that trace a clean axis-aligned square, ordered
// top to bottom by the y of their top-left corner. Contours failing any gate are
// skipped; an empty result is not an error.
func Detect(width, height int, contours []contour.Contour) []Square {
	if width < 3 || height < 3 {
		return nil
	}

	var results []Square
	xHist := make([]int, width)
	yHist := make([]int, height)

	for _, c := range contours {
		if sq, ok := detectOne(c, xHist, yHist); ok {
			results = append(results, sq)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Corners[TopLeft].Y < results[j].Corners[TopLeft].Y
	})
	return results
}

// detectOne runs every gate against a single contour. The histogram slices are
// scratch space shared across contours.
func detectOne(c contour.Contour, xHist, yHist []int) (Square, bool) {
	points := c.Points
	if len(points) < MinContourPoints {
		return Square{}, false
	}

	clear(xHist)
	clear(yHist)
	for _, p := range points {
		if p.X < 0 || p.X >= len(xHist) || p.Y < 0 || p.Y >= len(yHist) {
			return Square{}, false
		}
		xHist[p.X]++
		yHist[p.Y]++
	}

	xs := topBuckets(xHist, 3)
	ys := topBuckets(yHist, 3)

	// A frame needs two populated parallel edges per axis
	if xs[1].count == 0 || ys[1].count == 0 {
		return Square{}, false
	}

	// The two real edges must stand clearly above the noise floor
	if Ratio(float64(xs[1].count), float64(xs[2].count)) > MaxPeakRatio ||
		Ratio(float64(ys[1].count), float64(ys[2].count)) > MaxPeakRatio {
		return Square{}, false
	}

	left := float64(min(xs[0].coord, xs[1].coord))
	right := float64(max(xs[0].coord, xs[1].coord))
	top := float64(min(ys[0].coord, ys[1].coord))
	bottom := float64(max(ys[0].coord, ys[1].coord))

	sq := Square{
		Corners: [4]Point{
			{left, top},
			{right, top},
			{right, bottom},
			{left, bottom},
		},
	}
	topSide, bottomSide, leftSide, rightSide := sq.Sides()

	for _, p := range points {
		pt := Point{float64(p.X), float64(p.Y)}
		if topSide.Distance(pt) > SideTolerance &&
			bottomSide.Distance(pt) > SideTolerance &&
			leftSide.Distance(pt) > SideTolerance &&
			rightSide.Distance(pt) > SideTolerance {
			return Square{}, false
		}
	}

	if Ratio(topSide.Length(), bottomSide.Length()) < MinSquareness ||
		Ratio(topSide.Length(), leftSide.Length()) < MinSquareness ||
		Ratio(topSide.Length(), rightSide.Length()) < MinSquareness {
		return Square{}, false
	}

	sq.Contour = append(sq.Contour, points...)
	return sq, true
}

// topBuckets returns the n highest-count buckets in descending count order.
// Ties keep the lower coordinate first, matching a stable descending sort.
func topBuckets(hist []int, n int) []bucket {
	top := make([]bucket, n)
	for i := range top {
		top[i] = bucket{coord: -1, count: -1}
	}
	for coord, count := range hist {
		for i := range top {
			if count > top[i].count {
				copy(top[i+1:], top[i:n-1])
				top[i] = bucket{coord: coord, count: count}
				break
			}
		}
	}
	return top
}
