package layer

import (
	"image/color"
	"strings"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

const (
	// ghostBrightness scales ghost colors
	ghostBrightness = 0.4
	// travelAlpha is the alpha of travel lines in the flat views
	travelAlpha = 128

	extrusionLineWidth = 2
)

// isSupport reports whether a segment belongs to support material. Slicers
// only expose this through the object name.
func isSupport(seg *gcode.Segment) bool {
	return seg.Object != "" && strings.Contains(strings.ToLower(seg.Object), "support")
}

// filter holds the visibility toggles
type filter struct {
	travels    bool
	extrusions bool
	supports   bool
}

func (f filter) visible(seg *gcode.Segment) bool {
	if !seg.Extrusion {
		return f.travels
	}
	if isSupport(seg) {
		return f.supports
	}
	return f.extrusions
}

// shader resolves segment colors, optionally darkening by depth
type shader struct {
	palette style.Palette
	bounds  gcode.AABB
	depth   bool
}

// base returns the undimmed color of a segment
func (s shader) base(seg *gcode.Segment) color.NRGBA {
	switch {
	case !seg.Extrusion:
		return s.palette.Travel
	case isSupport(seg):
		return s.palette.Support
	default:
		return s.palette.Extrusion
	}
}

// shade applies depth shading: higher layers are brighter and points
// farther back in Y fade slightly
func (s shader) shade(c color.NRGBA, z, y float64) color.NRGBA {
	if !s.depth || s.bounds.IsEmpty() {
		return c
	}
	size := s.bounds.Size()

	brightness := 1.0
	if size.Z > minRange {
		normZ := clamp01((z - s.bounds.Min.Z) / size.Z)
		brightness = 0.4 + 0.6*normZ
	}
	if size.Y > minRange {
		normY := clamp01((y - s.bounds.Min.Y) / size.Y)
		brightness *= 0.85 + 0.15*(1-normY)
	}
	return style.Scale(c, brightness)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// drawSolid paints the extrusions of one layer at full alpha
func drawSolid(buf *raster.Buffer, l *gcode.Layer, p projection, f filter, s shader) {
	for i := range l.Segments {
		seg := &l.Segments[i]
		if !seg.Extrusion || !f.visible(seg) {
			continue
		}
		x0, y0 := p.project(seg.Start.X, seg.Start.Y, seg.Start.Z)
		x1, y1 := p.project(seg.End.X, seg.End.Y, seg.End.Z)
		mid := seg.Start.Add(seg.End).Scale(0.5)
		buf.DrawLine(x0, y0, x1, y1, s.shade(s.base(seg), mid.Z, mid.Y))
	}
}

// drawGhost paints the extrusions of one layer in the dimmed ghost colors
func drawGhost(buf *raster.Buffer, l *gcode.Layer, p projection, f filter, s shader) {
	for i := range l.Segments {
		seg := &l.Segments[i]
		if !seg.Extrusion || !f.visible(seg) {
			continue
		}
		c := style.Scale(s.base(seg), ghostBrightness)
		c.A = 255
		x0, y0 := p.project(seg.Start.X, seg.Start.Y, seg.Start.Z)
		x1, y1 := p.project(seg.End.X, seg.End.Y, seg.End.Z)
		buf.DrawLine(x0, y0, x1, y1, c)
	}
}

// drawFlat paints one layer for the top-down and isometric views:
// extrusions two pixels wide, travels one pixel at half opacity
func drawFlat(buf *raster.Buffer, l *gcode.Layer, p projection, f filter, s shader) {
	for i := range l.Segments {
		seg := &l.Segments[i]
		if !f.visible(seg) {
			continue
		}
		x0, y0 := p.project(seg.Start.X, seg.Start.Y, seg.Start.Z)
		x1, y1 := p.project(seg.End.X, seg.End.Y, seg.End.Z)
		c := s.base(seg)
		if seg.Extrusion {
			c.A = 255
			buf.DrawThickLine(x0, y0, x1, y1, extrusionLineWidth, c)
			continue
		}
		c.A = travelAlpha
		buf.BlendLine(x0, y0, x1, y1, c)
	}
}
