// Package watcher re-captures the target window on a fixed cadence and
// alerts when the reference image is missing from the indicator band.
package watcher

import "time"

// Watcher configuration constants
const (
	// Default cadence and per-step bound
	DefaultInterval    = time.Second
	DefaultStepTimeout = 5 * time.Second

	// Band geometry: the indicator lives in the lower half of the left quarter
	BandTopDivisor   = 2
	BandWidthDivisor = 4

	// SkipSimilarDisabled turns off verdict reuse for unchanged bands
	SkipSimilarDisabled = -1
)
