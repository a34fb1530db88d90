// Package orchestrator drives the operator workflow: find the target window,
// offer candidate regions, arm the reference and run the watcher.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Pixels trimmed from each side of a detected square to form its preview
	PreviewInset = 5

	// Detection results are kept per window capture
	DetectionCacheTTL     = 10 * time.Minute
	DetectionCacheCleanup = 5 * time.Minute

	// Event history
	EventMaxEntries = 100
	EventBufferSize = 32
	EventRecentSpan = 10 * time.Minute
)
