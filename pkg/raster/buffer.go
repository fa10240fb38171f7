// Package raster holds raw BGRA pixel buffers and the software line
// drawing used by the layer and thumbnail renderers.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
)

// BytesPerPixel is the size of one BGRA pixel
const BytesPerPixel = 4

// ErrSizeMismatch is returned when two buffers must share dimensions
var ErrSizeMismatch = errors.New("buffer size mismatch")

// Buffer is a BGRA8888 pixel buffer. Bytes are stored B, G, R, A and rows
// are Stride bytes apart. The zero value is an empty buffer.
type Buffer struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// New allocates a cleared buffer of at least 1x1 pixels
func New(width, height int) *Buffer {
	width = max(width, 1)
	height = max(height, 1)
	stride := width * BytesPerPixel
	return &Buffer{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Size returns width and height
func (b *Buffer) Size() (int, int) { return b.Width, b.Height }

// Bounds returns the buffer rectangle
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// SameSize reports whether both buffers have the same dimensions
func (b *Buffer) SameSize(o *Buffer) bool {
	return o != nil && b.Width == o.Width && b.Height == o.Height
}

// Clear resets every pixel to transparent black
func (b *Buffer) Clear() {
	clear(b.Pix)
}

// Fill sets every pixel to c
func (b *Buffer) Fill(c color.NRGBA) {
	for y := 0; y < b.Height; y++ {
		row := b.Pix[y*b.Stride : y*b.Stride+b.Width*BytesPerPixel]
		for i := 0; i < len(row); i += BytesPerPixel {
			row[i+0] = c.B
			row[i+1] = c.G
			row[i+2] = c.R
			row[i+3] = c.A
		}
	}
}

// Set overwrites the pixel at x, y. Out of range coordinates are ignored.
func (b *Buffer) Set(x, y int, c color.NRGBA) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	i := y*b.Stride + x*BytesPerPixel
	b.Pix[i+0] = c.B
	b.Pix[i+1] = c.G
	b.Pix[i+2] = c.R
	b.Pix[i+3] = c.A
}

// At returns the pixel at x, y, transparent when out of range
func (b *Buffer) At(x, y int) color.NRGBA {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return color.NRGBA{}
	}
	i := y*b.Stride + x*BytesPerPixel
	return color.NRGBA{R: b.Pix[i+2], G: b.Pix[i+1], B: b.Pix[i+0], A: b.Pix[i+3]}
}

// Blend composites c over the pixel at x, y with straight alpha
func (b *Buffer) Blend(x, y int, c color.NRGBA) {
	if c.A == 0xFF {
		b.Set(x, y, c)
		return
	}
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height || c.A == 0 {
		return
	}
	i := y*b.Stride + x*BytesPerPixel
	blendAt(b.Pix[i:i+BytesPerPixel], c.B, c.G, c.R, uint32(c.A))
}

// blendAt composites a straight-alpha BGRA source over px
func blendAt(px []byte, sb, sg, sr byte, sa uint32) {
	da := uint32(px[3])
	outA := sa + da*(255-sa)/255
	if outA == 0 {
		return
	}
	mix := func(s, d byte) byte {
		return byte((uint32(s)*sa + uint32(d)*da*(255-sa)/255) / outA)
	}
	px[0] = mix(sb, px[0])
	px[1] = mix(sg, px[1])
	px[2] = mix(sr, px[2])
	px[3] = byte(outA)
}

// CopyFrom copies src into b. Strides may differ; dimensions may not.
func (b *Buffer) CopyFrom(src *Buffer) error {
	if !b.SameSize(src) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, b.Width, b.Height, src.Width, src.Height)
	}
	if b.Stride == src.Stride {
		copy(b.Pix, src.Pix)
		return nil
	}
	rowBytes := b.Width * BytesPerPixel
	for y := 0; y < b.Height; y++ {
		copy(b.Pix[y*b.Stride:y*b.Stride+rowBytes], src.Pix[y*src.Stride:y*src.Stride+rowBytes])
	}
	return nil
}

// Clone returns a deep copy
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Width: b.Width, Height: b.Height, Stride: b.Stride, Pix: make([]byte, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// Blit composites src over b at offset x, y. Source alpha is multiplied by
// opacity (0..1). Pixels falling outside b are clipped.
func (b *Buffer) Blit(src *Buffer, x, y int, opacity float64) {
	if src == nil || opacity <= 0 {
		return
	}
	op := uint32(min(opacity, 1) * 255)

	for sy := 0; sy < src.Height; sy++ {
		dy := y + sy
		if dy < 0 || dy >= b.Height {
			continue
		}
		for sx := 0; sx < src.Width; sx++ {
			dx := x + sx
			if dx < 0 || dx >= b.Width {
				continue
			}
			si := sy*src.Stride + sx*BytesPerPixel
			sa := uint32(src.Pix[si+3]) * op / 255
			if sa == 0 {
				continue
			}
			di := dy*b.Stride + dx*BytesPerPixel
			if sa == 255 {
				copy(b.Pix[di:di+BytesPerPixel], src.Pix[si:si+BytesPerPixel])
				continue
			}
			blendAt(b.Pix[di:di+BytesPerPixel], src.Pix[si], src.Pix[si+1], src.Pix[si+2], sa)
		}
	}
}

// ToNRGBA converts the buffer to a standard image
func (b *Buffer) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(b.Bounds())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			si := y*b.Stride + x*BytesPerPixel
			di := img.PixOffset(x, y)
			img.Pix[di+0] = b.Pix[si+2]
			img.Pix[di+1] = b.Pix[si+1]
			img.Pix[di+2] = b.Pix[si+0]
			img.Pix[di+3] = b.Pix[si+3]
		}
	}
	return img
}

// FromImage converts any image into a BGRA buffer
func FromImage(img image.Image) *Buffer {
	r := img.Bounds()
	b := New(r.Dx(), r.Dy())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA)
			b.Set(x, y, c)
		}
	}
	return b
}

// EncodePNG writes the buffer as a PNG image
func (b *Buffer) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, b.ToNRGBA()); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
