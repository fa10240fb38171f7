package geometry

import (
	"image/color"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

const highlightBoost = 1.8

// fallbackToolColor is used for tool palette entries that do not parse
var fallbackToolColor = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 255}

// colorizer resolves the color of one segment
type colorizer struct {
	filament    color.NRGBA
	gradient    bool
	zMin, zMax  float64
	toolPalette []string
	highlighted map[string]bool
}

// segmentColor picks the tool palette entry when the segment's tool has
// one, else the Z gradient when enabled, else the filament color.
// Highlighted objects are brightened.
func (c *colorizer) segmentColor(seg gcode.Segment) color.NRGBA {
	var out color.NRGBA
	switch {
	case seg.Tool >= 0 && seg.Tool < len(c.toolPalette) && c.toolPalette[seg.Tool] != "":
		parsed, err := style.ParseHex(c.toolPalette[seg.Tool])
		if err != nil {
			parsed = fallbackToolColor
		}
		out = parsed
	case c.gradient:
		out = c.heightColor((seg.Start.Z + seg.End.Z) * 0.5)
	default:
		out = c.filament
	}
	out.A = 255

	if seg.Object != "" && c.highlighted[seg.Object] {
		out = style.Scale(out, highlightBoost)
	}
	return out
}

// heightColor maps z onto a blue (bottom) to red (top) hue ramp
func (c *colorizer) heightColor(z float64) color.NRGBA {
	t := 0.0
	if span := c.zMax - c.zMin; span > 1e-6 {
		t = max(0, min(1, (z-c.zMin)/span))
	}
	return style.FromHSV((1-t)*240, 1, 1)
}
