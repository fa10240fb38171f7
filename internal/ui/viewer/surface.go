package viewer

import (
	"image/color"

	"gioui.org/op/paint"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
)

// surface collects the layer renderer's blits for one frame and hands the
// result to Gio as an image op
type surface struct {
	buf *raster.Buffer
}

var _ raster.Surface = (*surface)(nil)

func newSurface(w, h int) *surface {
	return &surface{buf: raster.New(w, h)}
}

// resize reallocates the backing buffer when the canvas size changed and
// reports whether it did
func (s *surface) resize(w, h int) bool {
	w, h = max(w, 1), max(h, 1)
	if s.buf.Width == w && s.buf.Height == h {
		return false
	}
	s.buf = raster.New(w, h)
	return true
}

// begin clears the surface to the background color
func (s *surface) begin(bg color.NRGBA) {
	s.buf.Fill(bg)
}

// Blit implements raster.Surface
func (s *surface) Blit(src *raster.Buffer, x, y int, opacity float64) {
	s.buf.Blit(src, x, y, opacity)
}

// imageOp snapshots the frame. Gio treats image ops as immutable, so every
// frame gets a fresh image.
func (s *surface) imageOp() paint.ImageOp {
	op := paint.NewImageOp(s.buf.ToNRGBA())
	op.Filter = paint.FilterNearest
	return op
}
