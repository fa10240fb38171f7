package thumbnail

import (
	"context"
	"image/color"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/task"
)

const (
	// CancelCheckLayers is the number of layers rendered between
	// cancellation checks
	CancelCheckLayers = 4

	cos45      = 0.7071
	sin30      = 0.5
	cos30      = 0.866
	minRange   = 0.001
	fitPadding = 1.1
)

// Option configures a Renderer
type Option func(*Renderer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Renderer produces per-object thumbnails. At most one asynchronous
// render runs at a time.
type Renderer struct {
	logger *slog.Logger
	task   task.Task

	// mu serializes delivery against Cancel; gen identifies the render
	// allowed to deliver
	mu  sync.Mutex
	gen uint64
}

// NewRenderer creates an idle renderer
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderAsync cancels any running render and starts a new one in the
// background. done runs on the worker goroutine with the finished set;
// callers that own a UI thread must marshal it themselves. Once Cancel or
// the next RenderAsync returns, the previous render never calls done.
//
// done must not call back into the Renderer: Cancel waits for a running
// done, so re-entering deadlocks.
//
// file must stay valid and unmodified until the render finishes or
// Cancel returns.
func (r *Renderer) RenderAsync(file *gcode.File, width, height int, c color.NRGBA, done func(*Set)) {
	gen := r.nextGen()
	r.task.Start(func(ctx context.Context) {
		set := r.render(ctx, file, width, height, c)
		if set == nil || !r.deliver(ctx, gen, set, done) {
			r.logger.Debug("[Thumbnails] Render cancelled")
		}
	})
}

// nextGen invalidates every earlier render
func (r *Renderer) nextGen() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.gen
}

// deliver calls done unless the render was superseded or cancelled. The
// check and the call happen under mu so a concurrent Cancel either waits
// for done or prevents it.
func (r *Renderer) deliver(ctx context.Context, gen uint64, set *Set, done func(*Set)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || ctx.Err() != nil {
		return false
	}
	if done != nil {
		done(set)
	}
	return true
}

// RenderSync renders on the calling goroutine
func (r *Renderer) RenderSync(file *gcode.File, width, height int, c color.NRGBA) *Set {
	return r.render(context.Background(), file, width, height, c)
}

// Cancel stops a running render and waits for it to exit. It is safe to
// call when nothing is running.
func (r *Renderer) Cancel() {
	r.nextGen()
	r.task.Cancel()
}

// IsRendering reports whether an asynchronous render is in progress
func (r *Renderer) IsRendering() bool {
	return r.task.IsRunning()
}

// Close cancels and joins any running render
func (r *Renderer) Close() {
	r.nextGen()
	r.task.Close()
}

// render does one pass over all segments, dispatching each to the buffer
// of its owning object. It returns nil when ctx is cancelled.
func (r *Renderer) render(ctx context.Context, file *gcode.File, width, height int, c color.NRGBA) *Set {
	start := time.Now()
	set := &Set{}
	if file == nil || len(file.Objects) == 0 {
		return set
	}

	names := lo.Filter(lo.Keys(file.Objects), func(name string, _ int) bool {
		_, ok := objectBounds(file.Objects[name])
		return ok
	})
	slices.Sort(names)

	targets := make(map[string]*target, len(names))
	for _, name := range names {
		b, _ := objectBounds(file.Objects[name])
		targets[name] = newTarget(b, width, height)
	}

	for i := range file.Layers {
		if i%CancelCheckLayers == 0 && ctx.Err() != nil {
			return nil
		}
		segs := file.Layers[i].Segments
		for j := range segs {
			seg := &segs[j]
			if !seg.Extrusion || seg.Object == "" {
				continue
			}
			if t, ok := targets[seg.Object]; ok {
				t.draw(seg, c)
			}
		}
	}
	if ctx.Err() != nil {
		return nil
	}

	set.Thumbnails = make([]Thumbnail, 0, len(names))
	for _, name := range names {
		set.Thumbnails = append(set.Thumbnails, fromBuffer(name, targets[name].buf))
	}
	r.logger.Debug("[Thumbnails] Rendered",
		"objects", len(names), "size", width, "elapsed", time.Since(start))
	return set
}

// objectBounds returns the box a thumbnail is fitted to. Objects whose
// toolpath bounds are unknown fall back to their defined polygon.
func objectBounds(o *gcode.Object) (gcode.AABB, bool) {
	if o == nil {
		return gcode.AABB{}, false
	}
	if !o.Bounds.IsEmpty() {
		return o.Bounds, true
	}
	if len(o.Polygon) == 0 {
		return gcode.AABB{}, false
	}
	b := gcode.NewAABB()
	for _, p := range o.Polygon {
		b.Expand(gcode.Vec3{X: p.X, Y: p.Y})
	}
	return b, true
}

// target is the buffer and projection of one object
type target struct {
	buf    *raster.Buffer
	bounds gcode.AABB
	center gcode.Vec3
	scale  float64
	// shift recenters the projected box on the canvas
	shiftX, shiftY float64
}

func newTarget(b gcode.AABB, width, height int) *target {
	t := &target{
		buf:    raster.New(width, height),
		bounds: b,
		center: b.Center(),
		scale:  1,
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range b.Corners() {
		x, y := t.oblique(p)
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
	t.scale = math.Min(float64(t.buf.Width)/(rx*fitPadding), float64(t.buf.Height)/(ry*fitPadding))
	t.shiftX = -(minX + maxX) / 2
	t.shiftY = -(minY + maxY) / 2
	return t
}

// oblique maps p relative to the object center onto the front view plane
// at unit scale, Y pointing down
func (t *target) oblique(p gcode.Vec3) (float64, float64) {
	dx := -(p.Y - t.center.Y)
	dy := p.X - t.center.X
	dz := p.Z - t.center.Z
	rx := dx*cos45 + dy*cos45
	ry := -dx*cos45 + dy*cos45
	return rx, -(dz*cos30 + ry*sin30)
}

func (t *target) project(p gcode.Vec3) (int, int) {
	x, y := t.oblique(p)
	sx := (x+t.shiftX)*t.scale + float64(t.buf.Width)/2
	sy := (y+t.shiftY)*t.scale + float64(t.buf.Height)/2
	return int(sx), int(sy)
}

func (t *target) draw(seg *gcode.Segment, c color.NRGBA) {
	x0, y0 := t.project(seg.Start)
	x1, y1 := t.project(seg.End)
	mid := seg.Start.Add(seg.End).Scale(0.5)
	t.buf.DrawLine(x0, y0, x1, y1, t.shade(c, mid))
}

// shade darkens lower and farther points. Alpha is always opaque.
func (t *target) shade(c color.NRGBA, p gcode.Vec3) color.NRGBA {
	size := t.bounds.Size()
	brightness := 1.0
	if size.Z > minRange {
		brightness = 0.5 + 0.5*clamp01((p.Z-t.bounds.Min.Z)/size.Z)
	}
	if size.Y > minRange {
		brightness *= 0.85 + 0.15*(1-clamp01((p.Y-t.bounds.Min.Y)/size.Y))
	}
	out := style.Scale(c, brightness)
	out.A = 0xFF
	return out
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
