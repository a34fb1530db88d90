//go:build darwin

package screen

import (
	"context"
	"image"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
)

type darwinSource struct{}

// TODO: enumerate via CGWindowListCopyWindowInfo and grab with `screencapture -l <id>`
func (darwinSource) Windows(context.Context) ([]Window, error) {
	return nil, apperrors.New(apperrors.CaptureUnsupported, "window enumeration is not implemented on macOS")
}

func (darwinSource) Grab(context.Context, Window) (*image.RGBA, error) {
	return nil, apperrors.New(apperrors.CaptureUnsupported, "window capture is not implemented on macOS")
}

func (darwinSource) Close() error { return nil }

// NewSource creates the platform window system backend.
func NewSource() (Source, error) {
	return darwinSource{}, nil
}
