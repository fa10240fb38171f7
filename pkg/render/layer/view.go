package layer

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
)

// ViewMode selects the 2D mapping from world to screen
type ViewMode int

const (
	// ViewFront is an oblique front view: the XY plane rotated by 45° and
	// tilted by 30°, with Z up
	ViewFront ViewMode = iota
	// ViewTopDown maps X/Y directly
	ViewTopDown
	// ViewIsometric is a flat isometric projection of the XY plane
	ViewIsometric
)

var viewModeNames = map[ViewMode]string{
	ViewFront:     "front",
	ViewTopDown:   "top",
	ViewIsometric: "isometric",
}

// String returns the mode name
func (m ViewMode) String() string {
	if name, ok := viewModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseViewMode looks a mode up by name
func ParseViewMode(name string) (ViewMode, bool) {
	for m, n := range viewModeNames {
		if n == name {
			return m, true
		}
	}
	return ViewFront, false
}

const (
	cos45 = 0.7071
	sin30 = 0.5
	cos30 = 0.866

	minRange   = 0.001
	fitPadding = 1.1
)

// projection is a self-contained copy of the view parameters. Background
// builds take a copy so they never read renderer state.
type projection struct {
	mode          ViewMode
	width, height int
	scale         float64
	offX, offY    float64
	offZ          float64
	contentOffset float64 // fraction of the height, [-1, 1]
}

// project maps a world point to pixel coordinates
func (p projection) project(x, y, z float64) (int, int) {
	sx, sy := p.projectF(x, y, z)
	return raster.PixelCoord(sx), raster.PixelCoord(sy)
}

// projectF maps a world point to fractional pixel coordinates
func (p projection) projectF(x, y, z float64) (float64, float64) {
	var sx, sy float64
	w, h := float64(p.width), float64(p.height)

	switch p.mode {
	case ViewFront:
		dx := -(y - p.offY)
		dy := x - p.offX
		dz := z - p.offZ
		rx := dx*cos45 - dy*(-cos45)
		ry := dx*(-cos45) + dy*cos45
		sx = rx*p.scale + w/2
		sy = h/2 - (dz*cos30+ry*sin30)*p.scale
	case ViewIsometric:
		dx := x - p.offX
		dy := y - p.offY
		isoX := (dx - dy) * cos45
		isoY := (dx + dy) * cos45 * 0.5
		sx = isoX*p.scale + w/2
		sy = h/2 - isoY*p.scale
	default:
		sx = (x-p.offX)*p.scale + w/2
		sy = h/2 - (y-p.offY)*p.scale
	}
	return sx, sy + p.contentOffset*h
}

// fit sets scale and offsets so b fills the canvas with 10% padding.
// Empty boxes reset to unit scale.
func (p *projection) fit(b gcode.AABB) {
	if b.IsEmpty() {
		p.scale = 1
		p.offX, p.offY, p.offZ = 0, 0, 0
		return
	}
	c := b.Center()
	p.offX, p.offY, p.offZ = c.X, c.Y, c.Z

	// Measure the projected extent of the box at unit scale
	unit := *p
	unit.scale = 1
	unit.contentOffset = 0
	unit.width, unit.height = 0, 0
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range b.Corners() {
		x, y := unit.projectF(corner.X, corner.Y, corner.Z)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	rx, ry := maxX-minX, maxY-minY
	if rx < minRange {
		rx = 1
	}
	if ry < minRange {
		ry = 1
	}
	rx *= fitPadding
	ry *= fitPadding
	p.scale = min(math.Min(float64(p.width)/rx, float64(p.height)/ry), MaxScale)
}
