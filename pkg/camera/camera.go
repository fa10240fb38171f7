// Package camera implements the orbit camera used by the 3D views: view
// and projection matrices, fit-to-bounds and picking rays.
package camera

import (
	"math"

	"goki.dev/mat32/v2"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

// Projection selects the projection model
type Projection int

const (
	// Orthographic is the default and fully supported projection
	Orthographic Projection = iota
	Perspective
)

// String returns the projection name
func (p Projection) String() string {
	if p == Perspective {
		return "perspective"
	}
	return "orthographic"
}

const (
	MinElevation = -89.0
	MaxElevation = 89.0
	MinZoom      = 0.1
	MaxZoom      = 100.0

	// FitMargin is the fraction of the viewport left free on each side by
	// FitToBounds
	FitMargin = 0.05

	defaultAzimuth   = 45.0
	defaultElevation = 35.264 // true isometric
	defaultDistance  = 200.0
	defaultFovY      = 45.0
	defaultWidth     = 800
	defaultHeight    = 600
)

var worldUp = gcode.Vec3{Z: 1}

// Camera is an orbit camera around a target point. It is a plain value
// holder and not safe for concurrent mutation.
type Camera struct {
	azimuth    float64 // degrees, [0, 360)
	elevation  float64 // degrees, [MinElevation, MaxElevation]
	target     gcode.Vec3
	distance   float64
	zoom       float64
	projection Projection
	width      int
	height     int

	dirty    bool
	view     mat32.Mat4
	proj     mat32.Mat4
	viewProj mat32.Mat4
}

// New creates a camera in the isometric default view
func New() *Camera {
	c := &Camera{width: defaultWidth, height: defaultHeight}
	c.Reset()
	return c
}

// Reset restores orientation, target, distance, zoom and projection. The
// viewport size is kept.
func (c *Camera) Reset() {
	c.azimuth = defaultAzimuth
	c.elevation = defaultElevation
	c.target = gcode.Vec3{}
	c.distance = defaultDistance
	c.zoom = 1
	c.projection = Orthographic
	c.dirty = true
}

// Azimuth returns the azimuth in degrees
func (c *Camera) Azimuth() float64 { return c.azimuth }

// Elevation returns the elevation in degrees
func (c *Camera) Elevation() float64 { return c.elevation }

// Target returns the orbit center
func (c *Camera) Target() gcode.Vec3 { return c.target }

// Distance returns the eye distance from the target
func (c *Camera) Distance() float64 { return c.distance }

// ZoomLevel returns the zoom factor
func (c *Camera) ZoomLevel() float64 { return c.zoom }

// Projection returns the projection model
func (c *Camera) Projection() Projection { return c.projection }

// ViewportSize returns the viewport in pixels
func (c *Camera) ViewportSize() (int, int) { return c.width, c.height }

// SetAzimuth sets the azimuth, wrapping into [0, 360)
func (c *Camera) SetAzimuth(deg float64) {
	c.azimuth = wrapDegrees(deg)
	c.dirty = true
}

// SetElevation sets the elevation, clamped away from the poles
func (c *Camera) SetElevation(deg float64) {
	c.elevation = clamp(deg, MinElevation, MaxElevation)
	c.dirty = true
}

// SetTarget sets the orbit center
func (c *Camera) SetTarget(t gcode.Vec3) {
	c.target = t
	c.dirty = true
}

// SetDistance sets the eye distance; non-positive values are ignored
func (c *Camera) SetDistance(d float64) {
	if d > 0 {
		c.distance = d
		c.dirty = true
	}
}

// SetZoom sets the zoom factor, clamped to [MinZoom, MaxZoom]
func (c *Camera) SetZoom(z float64) {
	c.zoom = clamp(z, MinZoom, MaxZoom)
	c.dirty = true
}

// SetProjection selects the projection model
func (c *Camera) SetProjection(p Projection) {
	c.projection = p
	c.dirty = true
}

// SetViewportSize sets the viewport in pixels, at least 1x1
func (c *Camera) SetViewportSize(w, h int) {
	c.width = max(w, 1)
	c.height = max(h, 1)
	c.dirty = true
}

// Rotate orbits by the given deltas in degrees
func (c *Camera) Rotate(dAzimuth, dElevation float64) {
	c.SetAzimuth(c.azimuth + dAzimuth)
	c.SetElevation(c.elevation + dElevation)
}

// Zoom multiplies the zoom factor; non-positive factors are ignored
func (c *Camera) Zoom(factor float64) {
	if factor > 0 {
		c.SetZoom(c.zoom * factor)
	}
}

// Pan moves the target by a screen-space delta in pixels. Dragging right
// moves the scene right.
func (c *Camera) Pan(dx, dy float64) {
	right, up, _ := c.basis()
	perPixel := 2 * c.halfHeight() / float64(c.height)
	c.target = c.target.
		Sub(right.Scale(dx * perPixel)).
		Add(up.Scale(dy * perPixel))
	c.dirty = true
}

// SetIsometricView looks down the diagonal from the front right
func (c *Camera) SetIsometricView() { c.setOrientation(defaultAzimuth, defaultElevation) }

// SetTopView looks straight down with +Y up on screen
func (c *Camera) SetTopView() { c.setOrientation(-90, MaxElevation) }

// SetFrontView looks along +Y
func (c *Camera) SetFrontView() { c.setOrientation(-90, 0) }

// SetSideView looks along -X
func (c *Camera) SetSideView() { c.setOrientation(0, 0) }

func (c *Camera) setOrientation(az, el float64) {
	c.SetAzimuth(az)
	c.SetElevation(el)
}

// Eye returns the camera position in world space
func (c *Camera) Eye() gcode.Vec3 {
	return c.target.Add(c.direction().Scale(c.eyeDistance()))
}

// direction points from the target towards the eye
func (c *Camera) direction() gcode.Vec3 {
	az := c.azimuth * math.Pi / 180
	el := c.elevation * math.Pi / 180
	return gcode.Vec3{
		X: math.Cos(el) * math.Cos(az),
		Y: math.Cos(el) * math.Sin(az),
		Z: math.Sin(el),
	}
}

// eyeDistance is the effective distance; zoom moves a perspective eye
// closer instead of narrowing the view volume
func (c *Camera) eyeDistance() float64 {
	if c.projection == Perspective {
		return c.distance / c.zoom
	}
	return c.distance
}

// basis returns the camera right, up and forward vectors
func (c *Camera) basis() (right, up, forward gcode.Vec3) {
	forward = c.direction().Scale(-1)
	right = normalize(forward.Cross(worldUp))
	up = right.Cross(forward)
	return right, up, forward
}

func (c *Camera) aspect() float64 {
	return float64(c.width) / float64(c.height)
}

// halfHeight is the half height of the orthographic view volume
func (c *Camera) halfHeight() float64 {
	if c.projection == Perspective {
		return c.eyeDistance() * math.Tan(defaultFovY*math.Pi/360)
	}
	return c.distance * 0.5 / c.zoom
}

func (c *Camera) update() {
	if !c.dirty {
		return
	}
	eye := toMat32(c.Eye())
	var look mat32.Quat
	look.SetFromRotationMatrix(mat32.NewLookAt(eye, toMat32(c.target), toMat32(worldUp)))
	var pose mat32.Mat4
	pose.SetTransform(eye, look, mat32.V3(1, 1, 1))
	view, _ := pose.Inverse()
	c.view = *view

	depth := c.distance*4 + 1000
	if c.projection == Perspective {
		near := math.Max(c.eyeDistance()*0.001, 0.01)
		c.proj.SetPerspective(defaultFovY, float32(c.aspect()), float32(near), float32(c.eyeDistance()+depth))
	} else {
		hh := c.halfHeight()
		c.proj.SetOrthographic(float32(2*hh*c.aspect()), float32(2*hh), float32(-depth), float32(depth))
	}
	c.viewProj.MulMatrices(&c.proj, &c.view)
	c.dirty = false
}

// ViewMatrix returns the world-to-view matrix
func (c *Camera) ViewMatrix() mat32.Mat4 {
	c.update()
	return c.view
}

// ProjectionMatrix returns the view-to-clip matrix
func (c *Camera) ProjectionMatrix() mat32.Mat4 {
	c.update()
	return c.proj
}

// ViewProjectionMatrix returns the world-to-clip matrix
func (c *Camera) ViewProjectionMatrix() mat32.Mat4 {
	c.update()
	return c.viewProj
}

// Project maps a world point to screen pixels (origin top left) and its
// normalized depth. ok is false for points behind a perspective eye.
func (c *Camera) Project(p gcode.Vec3) (x, y, depth float64, ok bool) {
	vp := c.ViewProjectionMatrix()
	clip := toClip(&vp, toMat32(p))
	if clip.W <= 0 {
		return 0, 0, 0, false
	}
	nx := float64(clip.X / clip.W)
	ny := float64(clip.Y / clip.W)
	x = (nx + 1) * 0.5 * float64(c.width)
	y = (1 - ny) * 0.5 * float64(c.height)
	return x, y, float64(clip.Z / clip.W), true
}

// ScreenToWorldRay returns the ray through pixel (x, y)
func (c *Camera) ScreenToWorldRay(x, y float64) Ray {
	vp := c.ViewProjectionMatrix()
	inv, err := vp.Inverse()
	if err != nil {
		return Ray{Origin: c.Eye(), Dir: c.direction().Scale(-1)}
	}
	nx := float32(2*x/float64(c.width) - 1)
	ny := float32(1 - 2*y/float64(c.height))
	near := unproject(inv, mat32.V3(nx, ny, -1))
	far := unproject(inv, mat32.V3(nx, ny, 1))
	return Ray{Origin: near, Dir: normalize(far.Sub(near))}
}

// FitToBounds frames b: the target moves to the box center, the distance
// follows the longest side and the zoom is solved from the projected
// corners so the box fills the viewport minus FitMargin on each side.
// Empty boxes are ignored.
func (c *Camera) FitToBounds(b gcode.AABB) {
	if b.IsEmpty() {
		return
	}
	c.target = b.Center()
	c.distance = math.Max(b.MaxExtent()*2, 1)
	c.dirty = true

	right, up, forward := c.basis()
	minX, minY, minZ := math.Inf(1), math.Inf(1), math.Inf(1)
	maxX, maxY, maxZ := math.Inf(-1), math.Inf(-1), math.Inf(-1)
	for _, p := range b.Corners() {
		d := p.Sub(c.target)
		x, y, z := d.Dot(right), d.Dot(up), d.Dot(forward)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		minZ, maxZ = math.Min(minZ, z), math.Max(maxZ, z)
	}

	// Center the projected extent, not the raw 3D center
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	c.target = c.target.Add(right.Scale(cx)).Add(up.Scale(cy))

	usable := 1 - 2*FitMargin
	needHalfH := math.Max((maxY-minY)/2, (maxX-minX)/2/c.aspect()) / usable
	needHalfH = math.Max(needHalfH, 1e-3)

	if c.projection == Perspective {
		c.zoom = 1
		c.distance = needHalfH/math.Tan(defaultFovY*math.Pi/360) + (maxZ-minZ)/2
		return
	}
	c.zoom = clamp(c.distance*0.5/needHalfH, MinZoom, MaxZoom)
}

func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func normalize(v gcode.Vec3) gcode.Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}
