package orchestrator

import (
	"context"
	"image"
	"time"

	"github.com/GriffinCanCode/queue-sentinel/internal/contour"
	"github.com/GriffinCanCode/queue-sentinel/internal/geometry"
	"github.com/GriffinCanCode/queue-sentinel/internal/imaging"
	"github.com/GriffinCanCode/queue-sentinel/internal/reference"
	"github.com/GriffinCanCode/queue-sentinel/internal/screen"
	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
)

// Capturer enumerates and captures windows.
type Capturer interface {
	Windows(ctx context.Context) ([]screen.Window, error)
	TakeAll(ctx context.Context) ([]screen.Capture, error)
	TakeOne(ctx context.Context, id uint64) (screen.Capture, error)
}

// ReferenceStore persists the armed reference.
type ReferenceStore interface {
	Load() (*reference.Template, error)
	Save(t *reference.Template) error
	Clear() error
}

// Region is one candidate square offered to the operator.
type Region struct {
	Index int
	// Square is in capture coordinates
	Square geometry.Square
	// Bounds is the inset rectangle the preview was cut from
	Bounds  image.Rectangle
	Preview *image.RGBA
}

// MatchFloor is the y of the square's bottom-left corner.
func (r Region) MatchFloor() int {
	return int(r.Square.Corners[geometry.BottomLeft].Y)
}

// Detection is the result of one region detection pass over a capture.
type Detection struct {
	WindowID uint64
	TakenAt  time.Time
	Regions  []Region
	// Overlay is the grayscale capture with the accepted contours painted red
	Overlay *image.RGBA
}

// DetectRegions binarizes img at threshold, traces its borders and keeps the
// ones that form clean squares. Squares whose preview is too small to cut a
// reference from are dropped.
func DetectRegions(ctx context.Context, img image.Image, threshold uint8) Detection {
	ctx, span := trace.StartSpan(ctx, "detect_regions")
	defer span.End()

	gray := imaging.Grayscale(img)
	contours := contour.Find(contour.Binarize(gray, threshold))
	b := gray.Bounds()
	squares := geometry.Detect(b.Dx(), b.Dy(), contours)

	origin := img.Bounds().Min
	var regions []Region
	var marked []image.Point
	for _, sq := range squares {
		r := sq.Bounds().Inset(PreviewInset)
		if r.Dx() < 2 || r.Dy() < 2*reference.TopMargin {
			continue
		}
		regions = append(regions, Region{
			Index:   len(regions),
			Square:  sq,
			Bounds:  r,
			Preview: imaging.Crop(img, r.Add(origin)),
		})
		marked = append(marked, sq.Contour...)
	}

	span.SetAttr("contours", len(contours))
	span.SetAttr("regions", len(regions))
	trace.Logger(ctx).Debug("regions detected", "contours", len(contours), "squares", len(squares), "regions", len(regions))

	return Detection{Regions: regions, Overlay: imaging.Overlay(gray, marked, imaging.Red)}
}
