package audio

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/queue-sentinel/internal/resilience"
)

// Alert outcomes reported to the observer.
const (
	OutcomePlayed  = "played"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped" // breaker open
	OutcomeBusy    = "busy"    // previous tone still playing
)

// playbackSlack is added to the tone duration to bound a detached playback.
const playbackSlack = 2 * time.Second

// Alerter fires the absence tone without blocking its caller.
type Alerter struct {
	sink     Sink
	breaker  *resilience.Breaker
	freq     float64
	dur      time.Duration
	playing  atomic.Bool
	observer func(outcome string)
	done     func() // test hook, called when a detached playback returns
}

// NewAlerter creates an alerter playing freq Hz for dur on sink.
func NewAlerter(sink Sink, breaker *resilience.Breaker, freq float64, dur time.Duration) *Alerter {
	return &Alerter{sink: sink, breaker: breaker, freq: freq, dur: dur}
}

// WithObserver sets a callback receiving every alert outcome.
func (a *Alerter) WithObserver(fn func(outcome string)) *Alerter {
	a.observer = fn
	return a
}

// Alert starts the tone on its own goroutine and returns immediately.
func (a *Alerter) Alert() {
	if err := a.breaker.Allow(); err != nil {
		a.report(OutcomeDropped)
		return
	}
	if !a.playing.CompareAndSwap(false, true) {
		a.report(OutcomeBusy)
		return
	}

	go func() {
		defer func() {
			a.playing.Store(false)
			if a.done != nil {
				a.done()
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.dur+playbackSlack)
		defer cancel()

		if err := a.sink.PlayTone(ctx, a.freq, a.dur); err != nil {
			a.breaker.Failure()
			slog.Warn("alert tone failed", "error", err, "breaker", a.breaker.State().String())
			a.report(OutcomeFailed)
			return
		}
		a.breaker.Success()
		a.report(OutcomePlayed)
	}()
}

func (a *Alerter) report(outcome string) {
	if a.observer != nil {
		a.observer(outcome)
	}
}
