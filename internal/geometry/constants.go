// Package geometry detects axis-aligned square frames in traced contours
package geometry

// Detection thresholds
const (
	// Contours with fewer points are too small to be a UI frame
	MinContourPoints = 150

	// Max ratio between the 2nd and 3rd histogram peaks; above it the edges are ambiguous
	MaxPeakRatio = 0.35

	// Max distance (px) from any contour point to the nearest side
	SideTolerance = 10.0

	// Min ratio between any two side lengths
	MinSquareness = 0.98
)
