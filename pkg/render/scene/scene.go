// Package scene renders parsed toolpaths in 3D through an orbit camera:
// a software rasterizer for the ribbon mesh and a lightweight line
// renderer that works directly on segments.
package scene

import (
	"image"
	"image/color"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/camera"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode/geometry"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

// Renderer draws ribbon geometry. Implementations own the geometry set on
// them and are used from one goroutine.
type Renderer interface {
	SetGeometry(g *geometry.RibbonGeometry)
	Render(cam *camera.Camera, opts Options) *image.RGBA
}

// Options controls one mesh render
type Options struct {
	// FirstLayer and LastLayer bound the rendered layers, inclusive. A
	// negative LastLayer means the last layer.
	FirstLayer int
	LastLayer  int

	Background color.NRGBA
	// Ambient is the light reaching faces turned away from the light
	Ambient  float64
	LightDir gcode.Vec3
}

// DefaultOptions renders every layer lit from the upper front left
func DefaultOptions() Options {
	return Options{
		LastLayer:  -1,
		Background: style.DefaultPalette().Background,
		Ambient:    0.3,
		LightDir:   gcode.Vec3{X: -0.4, Y: -0.6, Z: 1},
	}
}

// layerRange clamps first..last to count layers. ok is false when the
// range is empty.
func layerRange(first, last, count int) (int, int, bool) {
	if count == 0 {
		return 0, 0, false
	}
	if last < 0 || last >= count {
		last = count - 1
	}
	first = max(first, 0)
	return first, last, first <= last
}
