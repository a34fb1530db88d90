// Package imaging holds the pixel-buffer helpers shared by detection, matching and previews
package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Red marks traced contour points on overlays.
var Red = color.RGBA{R: 255, A: 255}

// Grayscale converts src into a new single-channel buffer with its origin at (0, 0).
func Grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Crop copies the part of src inside r into a new RGBA buffer. r is clipped to
// src's bounds; an empty intersection yields an empty image.
func Crop(src image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(src.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// CropGray is Crop for single-channel buffers.
func CropGray(src image.Image, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// Thumbnail scales src down so its height is at most maxHeight. Smaller images are returned as is.
func Thumbnail(src image.Image, maxHeight int) image.Image {
	b := src.Bounds()
	if maxHeight <= 0 || b.Dy() <= maxHeight {
		return src
	}
	w := max(1, b.Dx()*maxHeight/b.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, w, maxHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Overlay returns a copy of src with every point painted in c.
func Overlay(src image.Image, points []image.Point, c color.Color) *image.RGBA {
	dst := Crop(src, src.Bounds())
	origin := src.Bounds().Min
	for _, p := range points {
		dst.Set(p.X-origin.X, p.Y-origin.Y, c)
	}
	return dst
}
