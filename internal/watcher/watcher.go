package watcher

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/corona10/goimagehash"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/imaging"
	"github.com/GriffinCanCode/queue-sentinel/internal/match"
	"github.com/GriffinCanCode/queue-sentinel/internal/metrics"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/session"
	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
)

// Capturer re-captures one window by id.
type Capturer interface {
	TakeOne(ctx context.Context, id uint64) (screen.Capture, error)
}

// Locator decides whether needle appears in haystack.
type Locator interface {
	Locate(ctx context.Context, haystack, needle image.Image) (match.Verdict, error)
}

// Alerter raises the absence alert without blocking.
type Alerter interface {
	Alert()
}

// Config for the watcher.
type Config struct {
	Interval    time.Duration
	StepTimeout time.Duration
	// SkipSimilarDistance is the largest perceptual hash distance at which an
	// unchanged band reuses the previous verdict. Negative disables reuse.
	SkipSimilarDistance int
}

// Watcher runs the watch cycle.
type Watcher struct {
	session  *session.Session
	capturer Capturer
	locator  Locator
	alerter  Alerter
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
	observer func(outcome string, v match.Verdict)

	// only touched from the cycle goroutine
	lastHash    *goimagehash.ImageHash
	lastEpoch   uint64
	lastVerdict match.Verdict
}

// New creates a watcher. m may be nil.
func New(s *session.Session, c Capturer, l Locator, a Alerter, m *metrics.Metrics, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	return &Watcher{session: s, capturer: c, locator: l, alerter: a, metrics: m, cfg: cfg, now: time.Now}
}

// WithObserver registers fn to receive every cycle's outcome and verdict.
// It runs on the cycle goroutine and must not block.
func (w *Watcher) WithObserver(fn func(outcome string, v match.Verdict)) *Watcher {
	w.observer = fn
	return w
}

// Run checks once per interval until ctx is done or stopCh closes. Cycles never overlap.
func (w *Watcher) Run(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
				trace.Logger(ctx).Error("watch cycle failed", "error", err)
			}
		}
	}
}

// Check runs one cycle and returns its outcome (see metrics.Cycle*). Per-cycle
// failures are outcomes, not errors; only cancellation of ctx is returned.
func (w *Watcher) Check(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "watch_cycle")
	outcome, verdict, err := w.check(ctx)
	span.SetAttr("outcome", outcome)
	span.Finish(err)
	if w.metrics != nil {
		w.metrics.Cycle(outcome)
	}
	if w.observer != nil && err == nil {
		w.observer(outcome, verdict)
	}
	return outcome, err
}

func (w *Watcher) check(ctx context.Context) (string, match.Verdict, error) {
	log := trace.Logger(ctx)

	in, ok := w.session.WatchInput()
	if !ok {
		return metrics.CycleIdle, match.Verdict{}, nil
	}

	capture, err := w.capture(ctx, in.Window.ID)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return metrics.CycleError, match.Verdict{}, ctx.Err()
	case isTimeout(err):
		log.Warn("capture timed out", "window", in.Window.Title, "timeout", w.cfg.StepTimeout)
		return metrics.CycleTimeout, match.Verdict{}, nil
	default:
		log.Info("target window lost", "window", in.Window.Title, "error", err)
		if w.session.LoseWindowAt(in.Epoch) {
			w.forget()
			if w.metrics != nil {
				w.metrics.WindowLost()
			}
		}
		return metrics.CycleGone, match.Verdict{}, nil
	}

	if !in.Watching || in.Reference == nil {
		if !w.session.RefreshCapture(in.Epoch, capture) {
			return metrics.CycleStale, match.Verdict{}, nil
		}
		return metrics.CyclePaused, match.Verdict{}, nil
	}

	band := Band(capture.Image.Bounds(), in.Reference.MatchFloor)
	outcome := ""
	var verdict match.Verdict
	if band.Empty() {
		log.Warn("search band is empty", "match_floor", in.Reference.MatchFloor, "capture", capture.Image.Bounds())
	} else {
		haystack := imaging.CropGray(capture.Image, band)
		hash, prev, reused := w.reuse(in.Epoch, haystack)
		if reused {
			verdict, outcome = prev, metrics.CycleReused
		} else {
			verdict, err = w.locate(ctx, haystack, in.Reference.Image)
			switch {
			case err == nil:
				w.remember(in.Epoch, hash, verdict)
			case ctx.Err() != nil:
				return metrics.CycleError, match.Verdict{}, ctx.Err()
			case isTimeout(err):
				log.Warn("match timed out", "timeout", w.cfg.StepTimeout)
				return metrics.CycleTimeout, match.Verdict{}, nil
			default:
				log.Error("match failed", "error", err)
				return metrics.CycleError, match.Verdict{}, nil
			}
		}
	}

	if !w.session.RecordVerdict(in.Epoch, capture, verdict, w.now()) {
		return metrics.CycleStale, match.Verdict{}, nil
	}
	if w.metrics != nil {
		w.metrics.SetVerdict(verdict.Found, verdict.Distance)
	}

	if verdict.Found {
		log.Debug("reference present", "offset", verdict.Offset, "distance", verdict.Distance)
		if outcome == "" {
			outcome = metrics.CycleFound
		}
		return outcome, verdict, nil
	}

	log.Info("reference absent, alerting")
	w.alerter.Alert()
	if outcome == "" {
		outcome = metrics.CycleNotFound
	}
	return outcome, verdict, nil
}

func (w *Watcher) capture(ctx context.Context, id uint64) (screen.Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StepTimeout)
	defer cancel()
	ctx, span := trace.StartSpan(ctx, "capture")
	c, err := w.capturer.TakeOne(ctx, id)
	span.Finish(err)
	if err == nil && c.Image == nil {
		err = apperrors.New(apperrors.CaptureFailed, "capture has no image")
	}
	return c, err
}

func (w *Watcher) locate(ctx context.Context, haystack, needle image.Image) (match.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StepTimeout)
	defer cancel()
	ctx, span := trace.StartSpan(ctx, "match")
	v, err := w.locator.Locate(ctx, haystack, needle)
	span.SetAttr("found", v.Found)
	span.Finish(err)
	return v, err
}

// reuse hashes the band and reports the previous verdict when the band looks
// unchanged since the last search against the same reference.
func (w *Watcher) reuse(epoch uint64, haystack *image.Gray) (*goimagehash.ImageHash, match.Verdict, bool) {
	if w.cfg.SkipSimilarDistance < 0 {
		return nil, match.Verdict{}, false
	}
	hash, err := goimagehash.PerceptionHash(haystack)
	if err != nil {
		return nil, match.Verdict{}, false
	}
	if w.lastHash == nil || w.lastEpoch != epoch {
		return hash, match.Verdict{}, false
	}
	dist, err := w.lastHash.Distance(hash)
	if err != nil || dist > w.cfg.SkipSimilarDistance {
		return hash, match.Verdict{}, false
	}
	return hash, w.lastVerdict, true
}

func (w *Watcher) remember(epoch uint64, hash *goimagehash.ImageHash, v match.Verdict) {
	w.lastEpoch = epoch
	w.lastHash = hash
	w.lastVerdict = v
}

func (w *Watcher) forget() {
	w.lastHash = nil
	w.lastVerdict = match.Verdict{}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || apperrors.IsCode(err, apperrors.Timeout)
}
