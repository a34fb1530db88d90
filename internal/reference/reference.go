// Package reference holds the operator-chosen reference image and its on-disk form.
package reference

import (
	"encoding/json"
	"errors"
	"image"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/imaging"
)

// TopMargin skips the frame's title strip when cutting the reference out of a preview.
const TopMargin = 10

// Template is the reference image plus the vertical bound of the watch band.
type Template struct {
	WindowTitle string
	Image       *image.Gray
	MatchFloor  int
}

// Extract cuts the reference out of a region preview: the right half of the
// preview, starting TopMargin pixels down, half the preview's height tall.
func Extract(preview image.Image, matchFloor int, title string) *Template {
	b := preview.Bounds()
	w, h := b.Dx(), b.Dy()
	r := image.Rect(w/2, TopMargin, w/2+w/2, TopMargin+h/2).Add(b.Min)
	return &Template{
		WindowTitle: title,
		Image:       imaging.CropGray(preview, r),
		MatchFloor:  matchFloor,
	}
}

type pixels struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

type onDisk struct {
	WindowTitle string  `json:"window_title"`
	Data        *pixels `json:"data"`
	YMax        int     `json:"y_max"`
}

// Store persists a Template as JSON at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the persisted template. A missing file is NOT_FOUND, a file
// without image data is REFERENCE_MISSING and anything unreadable is CONFIG_CORRUPT.
func (s *Store) Load() (*Template, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Wrap(err, apperrors.NotFound, "no persisted reference").WithMetadata("path", s.path)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigCorrupt, "read reference").WithMetadata("path", s.path)
	}

	var d onDisk
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigCorrupt, "decode reference").WithMetadata("path", s.path)
	}
	if d.Data == nil {
		return nil, apperrors.New(apperrors.ReferenceMissing, "persisted config has no reference image").WithMetadata("path", s.path)
	}
	if d.Data.Width <= 0 || d.Data.Height <= 0 || len(d.Data.Pixels) != d.Data.Width*d.Data.Height {
		return nil, apperrors.Newf(apperrors.ConfigCorrupt, "reference is %dx%d but carries %d samples",
			d.Data.Width, d.Data.Height, len(d.Data.Pixels)).WithMetadata("path", s.path)
	}

	img := &image.Gray{
		Pix:    d.Data.Pixels,
		Stride: d.Data.Width,
		Rect:   image.Rect(0, 0, d.Data.Width, d.Data.Height),
	}
	return &Template{WindowTitle: d.WindowTitle, Image: img, MatchFloor: d.YMax}, nil
}

// Save writes t atomically, creating the directory if needed.
func (s *Store) Save(t *Template) error {
	if t == nil || t.Image == nil {
		return apperrors.New(apperrors.InvalidArgument, "nothing to persist")
	}
	g := imaging.Grayscale(t.Image)
	b := g.Bounds()
	packed := make([]byte, 0, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		off := g.PixOffset(b.Min.X, b.Min.Y+y)
		packed = append(packed, g.Pix[off:off+b.Dx()]...)
	}

	raw, err := json.Marshal(onDisk{
		WindowTitle: t.WindowTitle,
		Data:        &pixels{Width: b.Dx(), Height: b.Dy(), Pixels: packed},
		YMax:        t.MatchFloor,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "encode reference")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "create config dir").WithMetadata("path", s.path)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "write reference").WithMetadata("path", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return apperrors.Wrap(err, apperrors.Internal, "replace reference").WithMetadata("path", s.path)
	}
	return nil
}

// Clear removes the persisted template. Clearing a missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(err, apperrors.Internal, "remove reference").WithMetadata("path", s.path)
	}
	return nil
}
