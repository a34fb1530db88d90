// Package match turns sub-image search results into a present/absent verdict
package match

import (
	"context"
	"fmt"
	"image"

	"github.com/GriffinCanCode/queue-sentinel/internal/imaging"
	"github.com/GriffinCanCode/queue-sentinel/internal/subimage"
)

// Searcher is the best-offset oracle.
type Searcher interface {
	Search(ctx context.Context, haystack, needle *image.Gray, maxResults int) ([]subimage.Candidate, error)
}

// Verdict is the outcome of one search.
type Verdict struct {
	Found    bool
	Offset   image.Point
	Distance float64
}

func (v Verdict) String() string {
	if !v.Found {
		return "not found"
	}
	return fmt.Sprintf("found at %v (distance %.4f)", v.Offset, v.Distance)
}

// Config for the match policy.
type Config struct {
	MaxResults int
	// MaxDistance rejects the best candidate when its distance is above it; 0 disables the ceiling.
	MaxDistance float64
}

// Policy prepares buffers for the oracle and interprets its candidates.
type Policy struct {
	searcher Searcher
	cfg      Config
}

// NewPolicy creates a match policy around searcher.
func NewPolicy(searcher Searcher, cfg Config) *Policy {
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 1
	}
	return &Policy{searcher: searcher, cfg: cfg}
}

// Locate reports whether needle appears in haystack. Both are reduced to
// grayscale first. An empty candidate set is a NotFound verdict, not an error;
// the only error is a cancelled or expired ctx.
func (p *Policy) Locate(ctx context.Context, haystack, needle image.Image) (Verdict, error) {
	candidates, err := p.searcher.Search(ctx, imaging.Grayscale(haystack), imaging.Grayscale(needle), p.cfg.MaxResults)
	if err != nil {
		return Verdict{}, err
	}
	return p.Decide(candidates), nil
}

// Decide reduces candidates to the minimum-distance one.
func (p *Policy) Decide(candidates []subimage.Candidate) Verdict {
	if len(candidates) == 0 {
		return Verdict{}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Distance < best.Distance {
			best = c
		}
	}
	if p.cfg.MaxDistance > 0 && best.Distance > p.cfg.MaxDistance {
		return Verdict{}
	}
	return Verdict{Found: true, Offset: image.Pt(best.X, best.Y), Distance: best.Distance}
}
