package scene

import (
	"image/color"
	"log/slog"
	"math"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/camera"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

// LOD selects how many segments of each layer the line renderer draws
type LOD int

const (
	LODFull    LOD = iota // every segment
	LODHalf               // every second segment
	LODQuarter            // every fourth segment
)

// step returns the segment stride of the level
func (l LOD) step() int {
	return 1 << max(0, min(int(l), int(LODQuarter)))
}

// Line styles: alpha of 60%, 90% and opaque; depth fades to 40%
const (
	alphaFaint  = 153
	alphaStrong = 229
	alphaFull   = 255
	alphaFar    = 102

	widthThin      = 1
	widthExtrusion = 2
	widthHighlight = 3
)

// LineOptions controls one line render
type LineOptions struct {
	FirstLayer int
	LastLayer  int // negative means the last layer

	ShowTravels      bool
	ShowExtrusions   bool
	ShowObjectBounds bool
	LOD              LOD

	Highlighted map[string]bool
	Excluded    map[string]bool

	// Brightness scales colors, clamped to [0.5, 2]
	Brightness float64
	// Opacity scales every line, clamped to [0, 1]
	Opacity float64
}

// DefaultLineOptions draws all extrusions at full detail
func DefaultLineOptions() LineOptions {
	return LineOptions{
		LastLayer:      -1,
		ShowExtrusions: true,
		Brightness:     1,
		Opacity:        1,
	}
}

func (o LineOptions) visible(seg *gcode.Segment) bool {
	if seg.Extrusion {
		return o.ShowExtrusions
	}
	return o.ShowTravels
}

// LineRenderer draws segments as depth cued lines colored by height. It
// is the fast path for large files and for interaction.
//
// The file passed to SetFile is borrowed and must stay unmodified until
// it is replaced.
type LineRenderer struct {
	logger  *slog.Logger
	palette style.Palette
	file    *gcode.File

	rendered int
	culled   int
}

// NewLineRenderer creates a line renderer using palette for travels,
// highlights and excluded objects
func NewLineRenderer(palette style.Palette, opts ...Option) *LineRenderer {
	c := newConfig(opts)
	return &LineRenderer{logger: c.logger, palette: palette}
}

// SetFile sets the file to draw. nil clears it.
func (r *LineRenderer) SetFile(f *gcode.File) { r.file = f }

// SetPalette replaces the palette
func (r *LineRenderer) SetPalette(p style.Palette) { r.palette = p }

// Stats returns the segments drawn and skipped by the last Render
func (r *LineRenderer) Stats() (rendered, culled int) { return r.rendered, r.culled }

// depthRange normalizes projected depth over the file bounds
type depthRange struct {
	min, span float64
}

func newDepthRange(cam *camera.Camera, b gcode.AABB) depthRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range b.Corners() {
		if _, _, d, ok := cam.Project(p); ok {
			lo, hi = math.Min(lo, d), math.Max(hi, d)
		}
	}
	if math.IsInf(lo, 0) || hi-lo < minDepthSpan {
		return depthRange{min: lo, span: 1}
	}
	return depthRange{min: lo, span: hi - lo}
}

const minDepthSpan = 1e-6

func (d depthRange) normalize(v float64) float64 {
	if math.IsInf(d.min, 0) {
		return 0
	}
	return max(0, min(1, (v-d.min)/d.span))
}

// Render draws the visible layers into dst through cam
func (r *LineRenderer) Render(dst *raster.Buffer, cam *camera.Camera, o LineOptions) {
	r.rendered, r.culled = 0, 0
	f := r.file
	if f == nil || f.Bounds.IsEmpty() {
		return
	}
	first, last, ok := layerRange(o.FirstLayer, o.LastLayer, f.LayerCount())
	if !ok {
		return
	}

	if o.ShowObjectBounds {
		for _, name := range f.ObjectNames() {
			if obj, ok := f.GetObject(name); ok {
				r.drawObjectBoundary(dst, cam, obj, o)
			}
		}
	}

	depth := newDepthRange(cam, f.Bounds)
	zMin, zSpan := f.Bounds.Min.Z, f.Bounds.Size().Z
	if zSpan < 0.001 {
		zSpan = 1
	}
	brightness := max(0.5, min(2, o.Brightness))
	opacity := max(0, min(1, o.Opacity))
	step := o.LOD.step()
	w, h := dst.Size()

	for li := first; li <= last; li++ {
		segs := f.Layers[li].Segments
		for i := 0; i < len(segs); i += step {
			seg := &segs[i]
			if !o.visible(seg) {
				r.culled++
				continue
			}
			x0, y0, d0, ok0 := cam.Project(seg.Start)
			x1, y1, d1, ok1 := cam.Project(seg.End)
			if !ok0 || !ok1 || (offscreen(x0, y0, w, h) && offscreen(x1, y1, w, h)) {
				r.culled++
				continue
			}

			c, width, alpha := r.lineStyle(seg, o, (seg.Start.Z+seg.End.Z)/2, zMin, zSpan)
			nd := depth.normalize((d0 + d1) / 2)
			depthAlpha := alphaFar + (alphaFull-alphaFar)*(1-nd*nd)
			c = style.Scale(c, brightness)
			c.A = uint8(float64(alpha) * depthAlpha / 255 * opacity)

			dst.DrawThickLine(raster.PixelCoord(x0), raster.PixelCoord(y0), raster.PixelCoord(x1), raster.PixelCoord(y1), width, c)
			r.rendered++
		}
	}
	r.logger.Debug("[LineRenderer] Rendered", "segments", r.rendered, "culled", r.culled)
}

// offscreen reports whether a point lies more than a viewport away from
// the visible area
func offscreen(x, y float64, w, h int) bool {
	fw, fh := float64(w), float64(h)
	return x < -fw || x > 2*fw || y < -fh || y > 2*fh
}

// lineStyle returns color, width and base alpha. Excluded objects win
// over highlighted ones; everything else follows the height gradient.
func (r *LineRenderer) lineStyle(seg *gcode.Segment, o LineOptions, z, zMin, zSpan float64) (color.NRGBA, int, int) {
	named := seg.Object != ""
	switch {
	case named && o.Excluded[seg.Object]:
		return r.palette.Excluded, widthThin, alphaFaint
	case named && o.Highlighted[seg.Object]:
		return r.palette.Highlight, widthHighlight, alphaFull
	case seg.Extrusion:
		return rainbow((z - zMin) / zSpan), widthExtrusion, alphaStrong
	default:
		return r.palette.Travel, widthThin, alphaFaint
	}
}

// rainbow maps t in [0, 1] from blue through cyan, green and yellow to red
func rainbow(t float64) color.NRGBA {
	t = max(0, min(1, t))
	ramp := func(v float64) uint8 { return uint8(255 * v) }
	switch {
	case t < 0.25:
		return color.NRGBA{G: ramp(t / 0.25), B: 255, A: 255}
	case t < 0.5:
		return color.NRGBA{G: 255, B: ramp(1 - (t-0.25)/0.25), A: 255}
	case t < 0.75:
		return color.NRGBA{R: ramp((t - 0.5) / 0.25), G: 255, A: 255}
	default:
		return color.NRGBA{R: 255, G: ramp(1 - (t-0.75)/0.25), A: 255}
	}
}

// drawObjectBoundary outlines the object's defined polygon on the bed
func (r *LineRenderer) drawObjectBoundary(dst *raster.Buffer, cam *camera.Camera, obj *gcode.Object, o LineOptions) {
	if obj == nil || len(obj.Polygon) < 2 {
		return
	}
	c := r.palette.Travel
	if o.Highlighted[obj.Name] {
		c = r.palette.Highlight
	}
	c.A = alphaStrong
	for i, p := range obj.Polygon {
		q := obj.Polygon[(i+1)%len(obj.Polygon)]
		x0, y0, _, ok0 := cam.Project(gcode.Vec3{X: p.X, Y: p.Y})
		x1, y1, _, ok1 := cam.Project(gcode.Vec3{X: q.X, Y: q.Y})
		if ok0 && ok1 {
			dst.BlendLine(raster.PixelCoord(x0), raster.PixelCoord(y0), raster.PixelCoord(x1), raster.PixelCoord(y1), c)
		}
	}
}
