//go:build linux

package screen

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
)

// x11Source enumerates with wmctrl and grabs with ImageMagick's import.
type x11Source struct{ tempDir string }

func (s *x11Source) Windows(ctx context.Context) ([]Window, error) {
	out, err := s.run(ctx, "wmctrl", "-lpG")
	if err != nil {
		return nil, err
	}
	windows, err := parseWmctrl(out)
	if err != nil {
		return nil, err
	}
	for i := range windows {
		windows[i].AppName = appName(ctx, windows[i].PID)
	}
	return windows, nil
}

func (s *x11Source) Grab(ctx context.Context, w Window) (*image.RGBA, error) {
	tmpFile := filepath.Join(s.tempDir, strconv.FormatUint(w.ID, 16)+".png")
	defer os.Remove(tmpFile)

	if _, err := s.run(ctx, "import", "-silent", "-window", "0x"+strconv.FormatUint(w.ID, 16), "png:"+tmpFile); err != nil {
		if strings.Contains(err.Error(), "BadWindow") || strings.Contains(err.Error(), "unable to read X window") {
			return nil, apperrors.Wrapf(err, apperrors.WindowGone, "window %#x closed", w.ID)
		}
		return nil, err
	}

	f, err := os.Open(tmpFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "open capture")
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "decode capture")
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

func (s *x11Source) Close() error {
	return os.RemoveAll(s.tempDir)
}

func (s *x11Source) run(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CaptureUnsupported, "%s not installed", name)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", apperrors.Wrap(ctx.Err(), apperrors.Timeout, name)
		}
		return "", apperrors.Wrapf(err, apperrors.CaptureFailed, "%s: %s", name, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// NewSource creates the platform window system backend.
func NewSource() (Source, error) {
	tmpDir, err := os.MkdirTemp("", "queue-sentinel-capture-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return &x11Source{tempDir: tmpDir}, nil
}
