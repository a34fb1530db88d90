// Package screen enumerates top-level windows and captures their pixels
package screen

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/resilience"
)

// Window describes one top-level window as reported by the window system.
type Window struct {
	ID      uint64
	PID     int32
	Title   string
	AppName string
	X, Y    int
	Width   int
	Height  int
}

// DisplayTitle is Title, or "(empty)" for untitled windows.
func (w Window) DisplayTitle() string {
	if w.Title == "" {
		return "(empty)"
	}
	return w.Title
}

// Capture is one grabbed frame of a window. Image is never mutated after capture.
type Capture struct {
	Window  Window
	Image   *image.RGBA
	TakenAt time.Time
}

// Source is the per-platform window system backend.
type Source interface {
	Windows(ctx context.Context) ([]Window, error)
	// Grab returns WINDOW_GONE if the window closed since enumeration.
	Grab(ctx context.Context, w Window) (*image.RGBA, error)
	Close() error
}

// Capturer wraps a Source with retries and window lookup.
type Capturer struct {
	src   Source
	retry resilience.RetryConfig
	now   func() time.Time
}

// NewCapturer creates a capturer over src.
func NewCapturer(src Source) *Capturer {
	return &Capturer{src: src, retry: resilience.CaptureRetryConfig(), now: time.Now}
}

// Windows enumerates windows, logging each one.
func (c *Capturer) Windows(ctx context.Context) ([]Window, error) {
	windows, err := resilience.RetryValue(ctx, c.retry, func() ([]Window, error) {
		return c.src.Windows(ctx)
	})
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		slog.Debug("window", "id", w.ID, "app", w.AppName, "title", w.Title,
			"x", w.X, "y", w.Y, "width", w.Width, "height", w.Height)
	}
	return windows, nil
}

// TakeAll captures every enumerated window. Windows that vanish between
// enumeration and capture are skipped.
func (c *Capturer) TakeAll(ctx context.Context) ([]Capture, error) {
	windows, err := c.Windows(ctx)
	if err != nil {
		return nil, err
	}
	captures := make([]Capture, 0, len(windows))
	for _, w := range windows {
		img, err := c.grab(ctx, w)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("skipping window", "id", w.ID, "title", w.Title, "error", err)
			continue
		}
		captures = append(captures, Capture{Window: w, Image: img, TakenAt: c.now()})
	}
	return captures, nil
}

// TakeOne re-captures the window with the given id. A window that is no
// longer listed is WINDOW_GONE.
func (c *Capturer) TakeOne(ctx context.Context, id uint64) (Capture, error) {
	windows, err := c.Windows(ctx)
	if err != nil {
		return Capture{}, err
	}
	for _, w := range windows {
		if w.ID != id {
			continue
		}
		img, err := c.grab(ctx, w)
		if err != nil {
			return Capture{}, err
		}
		return Capture{Window: w, Image: img, TakenAt: c.now()}, nil
	}
	return Capture{}, apperrors.Newf(apperrors.WindowGone, "window %#x no longer exists", id)
}

// Close releases backend resources.
func (c *Capturer) Close() error {
	return c.src.Close()
}

func (c *Capturer) grab(ctx context.Context, w Window) (*image.RGBA, error) {
	return resilience.RetryValue(ctx, c.retry, func() (*image.RGBA, error) {
		return c.src.Grab(ctx, w)
	})
}

// HasTitle reports whether the window's trimmed title matches title case-insensitively.
func (w Window) HasTitle(title string) bool {
	return strings.EqualFold(strings.TrimSpace(w.Title), strings.TrimSpace(title))
}

// FindByTitle returns the first capture whose window has the given title.
func FindByTitle(captures []Capture, title string) (Capture, bool) {
	for _, c := range captures {
		if c.Window.HasTitle(title) {
			return c, true
		}
	}
	return Capture{}, false
}
