package raster

import (
	"image"

	"github.com/anthonynsimon/bild/transform"
)

// Surface receives finished pixel buffers. Renderers never draw on a
// Surface directly; they paint into their own buffers and blit them.
type Surface interface {
	// Blit composites src at x, y with the given opacity (0..1)
	Blit(src *Buffer, x, y int, opacity float64)
}

var _ Surface = (*Buffer)(nil)

// Upscale resizes the buffer by an integer factor with nearest-neighbor
// sampling, which keeps thin toolpath lines crisp
func Upscale(b *Buffer, factor int) *image.RGBA {
	factor = max(factor, 1)
	return transform.Resize(b.ToNRGBA(), b.Width*factor, b.Height*factor, transform.NearestNeighbor)
}
