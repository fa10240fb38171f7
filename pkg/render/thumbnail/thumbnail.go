// Package thumbnail rasterizes one small preview image per named object
// of a parsed G-code file.
package thumbnail

import (
	"image"

	"github.com/samber/lo"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
)

// Thumbnail is the BGRA preview of one object
type Thumbnail struct {
	Object string
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// IsValid reports whether the thumbnail holds pixel data
func (t *Thumbnail) IsValid() bool {
	return t != nil && t.Width > 0 && t.Height > 0 && len(t.Pix) >= t.Stride*t.Height
}

// ByteSize returns the size of the pixel data
func (t *Thumbnail) ByteSize() int {
	if !t.IsValid() {
		return 0
	}
	return t.Stride * t.Height
}

// Buffer returns a raster view sharing the thumbnail pixels
func (t *Thumbnail) Buffer() *raster.Buffer {
	return &raster.Buffer{Width: t.Width, Height: t.Height, Stride: t.Stride, Pix: t.Pix}
}

// Image converts the thumbnail to a standard image
func (t *Thumbnail) Image() *image.NRGBA {
	return t.Buffer().ToNRGBA()
}

func fromBuffer(name string, b *raster.Buffer) Thumbnail {
	return Thumbnail{
		Object: name,
		Width:  b.Width,
		Height: b.Height,
		Stride: b.Stride,
		Pix:    b.Pix,
	}
}

// Set is the result of one render, ordered by object name. Ownership of
// the pixel data passes to the receiver.
type Set struct {
	Thumbnails []Thumbnail
}

// Len returns the number of thumbnails
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Thumbnails)
}

// Find returns the thumbnail of the named object, or nil
func (s *Set) Find(name string) *Thumbnail {
	if s == nil {
		return nil
	}
	for i := range s.Thumbnails {
		if s.Thumbnails[i].Object == name {
			return &s.Thumbnails[i]
		}
	}
	return nil
}

// ByteSize returns the total pixel memory of the set
func (s *Set) ByteSize() int {
	if s == nil {
		return 0
	}
	return lo.SumBy(s.Thumbnails, func(t Thumbnail) int { return t.ByteSize() })
}
