package scene

import (
	"cmp"
	"image"
	"image/color"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/camera"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode/geometry"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

var _ Renderer = (*Software)(nil)

// Option configures the renderers of this package
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// face is a projected, shaded triangle waiting to be painted
type face struct {
	x, y  [3]float32
	depth float64
	color color.NRGBA
}

// Software is a painter's algorithm rasterizer for ribbon geometry
type Software struct {
	logger *slog.Logger
	geom   *geometry.RibbonGeometry

	ras   vector.Rasterizer
	faces []face

	culled int
}

// NewSoftware creates a renderer with no geometry
func NewSoftware(opts ...Option) *Software {
	c := newConfig(opts)
	return &Software{logger: c.logger}
}

// SetGeometry replaces the mesh. nil clears it.
func (s *Software) SetGeometry(g *geometry.RibbonGeometry) {
	s.geom = g
	s.faces = s.faces[:0]
}

// Culled returns the back faces skipped by the last Render
func (s *Software) Culled() int { return s.culled }

// Render draws the mesh into a new image of the camera viewport size
func (s *Software) Render(cam *camera.Camera, opts Options) *image.RGBA {
	w, h := cam.ViewportSize()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	g := s.geom
	s.culled = 0
	if g.IsEmpty() {
		return img
	}
	first, last, ok := layerRange(opts.FirstLayer, opts.LastLayer, g.LayerCount())
	if !ok {
		return img
	}

	light := toFloat32(opts.LightDir).Normal()
	ambient := float32(max(0, min(1, opts.Ambient)))
	eye := toFloat32(cam.Eye())
	ortho := cam.Projection() == camera.Orthographic
	viewDir := eye.Sub(toFloat32(cam.Target())).Normal()

	s.faces = s.faces[:0]
	for li := first; li <= last; li++ {
		r := g.LayerStrips[li]
		for _, strip := range g.Strips[r.First : r.First+r.Count] {
			for _, t := range strip.Triangles() {
				if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
					continue
				}
				p := [3]geometry.Vec3{g.Position(t[0]), g.Position(t[1]), g.Position(t[2])}
				n := g.VertexNormal(t[0]).Add(g.VertexNormal(t[1])).Add(g.VertexNormal(t[2])).Normal()

				toEye := viewDir
				if !ortho {
					toEye = eye.Sub(p[0].Add(p[1]).Add(p[2]).MulScalar(1.0 / 3)).Normal()
				}
				if n.Dot(toEye) <= 0 {
					s.culled++
					continue
				}

				f, visible := project(cam, p)
				if !visible {
					continue
				}
				intensity := ambient + (1-ambient)*max(0, n.Dot(light))
				f.color = style.Scale(g.VertexColor(t[0]), float64(intensity))
				f.color.A = 0xFF
				s.faces = append(s.faces, f)
			}
		}
	}

	// Farthest first
	slices.SortFunc(s.faces, func(a, b face) int { return cmp.Compare(b.depth, a.depth) })
	for i := range s.faces {
		s.fill(img, &s.faces[i])
	}

	s.logger.Debug("[Scene] Rendered mesh",
		"faces", len(s.faces), "culled", s.culled, "layers", last-first+1)
	return img
}

// project maps the triangle to pixels. visible is false when a vertex is
// behind the eye.
func project(cam *camera.Camera, p [3]geometry.Vec3) (face, bool) {
	var f face
	for i, v := range p {
		x, y, d, ok := cam.Project(gcode.Vec3{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)})
		if !ok {
			return f, false
		}
		f.x[i], f.y[i] = float32(x), float32(y)
		f.depth += d
	}
	f.depth /= 3
	return f, true
}

// fill rasterizes one face. The rasterizer is sized to the face's pixel
// bounds so small faces stay cheap.
func (s *Software) fill(img *image.RGBA, f *face) {
	minX := min(f.x[0], f.x[1], f.x[2])
	maxX := max(f.x[0], f.x[1], f.x[2])
	minY := min(f.y[0], f.y[1], f.y[2])
	maxY := max(f.y[0], f.y[1], f.y[2])
	r := image.Rect(
		raster.PixelCoord(math.Floor(float64(minX))), raster.PixelCoord(math.Floor(float64(minY))),
		raster.PixelCoord(math.Ceil(float64(maxX))), raster.PixelCoord(math.Ceil(float64(maxY))),
	).Intersect(img.Bounds())
	if r.Empty() {
		return
	}

	ox, oy := float32(r.Min.X), float32(r.Min.Y)
	s.ras.Reset(r.Dx(), r.Dy())
	s.ras.MoveTo(f.x[0]-ox, f.y[0]-oy)
	s.ras.LineTo(f.x[1]-ox, f.y[1]-oy)
	s.ras.LineTo(f.x[2]-ox, f.y[2]-oy)
	s.ras.ClosePath()
	s.ras.Draw(img, r, image.NewUniform(f.color), image.Point{})
}

func toFloat32(v gcode.Vec3) geometry.Vec3 {
	return geometry.Vec3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}
