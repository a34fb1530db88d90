//go:build windows

package screen

import (
	"context"
	"image"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
)

type windowsSource struct{}

// TODO: enumerate with EnumWindows and grab through PrintWindow into a DIB section
func (windowsSource) Windows(context.Context) ([]Window, error) {
	return nil, apperrors.New(apperrors.CaptureUnsupported, "window enumeration is not implemented on Windows")
}

func (windowsSource) Grab(context.Context, Window) (*image.RGBA, error) {
	return nil, apperrors.New(apperrors.CaptureUnsupported, "window capture is not implemented on Windows")
}

func (windowsSource) Close() error { return nil }

// NewSource creates the platform window system backend.
func NewSource() (Source, error) {
	return windowsSource{}, nil
}
