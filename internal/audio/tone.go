// Package audio plays the absence alert tone
package audio

import (
	"math"
	"time"
)

// Tone defaults
const (
	DefaultSampleRate = 44100
	DefaultAmplitude  = 0.2
)

// Sine generates a phase-continuous mono sine wave.
type Sine struct {
	step      float64 // radians per sample
	phase     float64
	amplitude float32
	remaining int
}

// NewSine creates a generator for d of freq Hz at sampleRate.
func NewSine(freq float64, d time.Duration, sampleRate float64, amplitude float32) *Sine {
	return &Sine{
		step:      2 * math.Pi * freq / sampleRate,
		amplitude: amplitude,
		remaining: int(d.Seconds() * sampleRate),
	}
}

// Fill writes the next len(out) samples, padding with silence once the tone
// is over. It reports whether samples remain after this call.
func (s *Sine) Fill(out []float32) bool {
	for i := range out {
		if s.remaining <= 0 {
			out[i] = 0
			continue
		}
		out[i] = s.amplitude * float32(math.Sin(s.phase))
		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
		s.remaining--
	}
	return s.remaining > 0
}

// Remaining returns the number of samples left.
func (s *Sine) Remaining() int { return s.remaining }
