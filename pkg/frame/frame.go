// Package frame provides the immutable colour raster analyzed by the focus
// engine and the decoders that produce it from wire payloads.
package frame

import (
	"errors"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// ErrEmptyFrame is returned for nil or zero-area images.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is a read-only width×height colour image.
// The grayscale view is computed on first use and reused afterwards.
type Frame struct {
	img image.Image

	grayOnce sync.Once
	gray     *image.Gray
}

// New wraps img as a Frame. The image must not be modified afterwards.
func New(img image.Image) (*Frame, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}
	return &Frame{img: img}, nil
}

// Valid reports whether f holds a non-empty image.
func (f *Frame) Valid() bool {
	return f != nil && f.img != nil && !f.img.Bounds().Empty()
}

// Image returns the underlying colour image.
func (f *Frame) Image() image.Image {
	return f.img
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.img.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.img.Bounds().Dy()
}

// Gray returns the luminance view of the frame with its origin at (0,0).
func (f *Frame) Gray() *image.Gray {
	f.grayOnce.Do(func() {
		if g, ok := f.img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
			f.gray = g
			return
		}
		b := f.img.Bounds()
		g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(g, g.Bounds(), f.img, b.Min, draw.Src)
		f.gray = g
	})
	return f.gray
}
