// Package layer renders G-code layers into 2D pixel buffers. The front
// view keeps an incrementally painted cache of the finished layers and a
// faded "ghost" of the whole model built on a background goroutine.
package layer

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/raster"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/task"
)

const (
	// LayersPerFrame is the initial number of layers painted into the
	// solid cache per Render call
	LayersPerFrame = 15
	// GhostLayersPerFrame is the initial number of layers the ghost build
	// paints between cancellation checks
	GhostLayersPerFrame = 10
	// GhostOpacity is the opacity the ghost cache is composited with
	GhostOpacity = 0.4

	minScale = 0.001
	// MaxScale bounds pixels per millimeter
	MaxScale = 10000.0
)

// Option configures a Renderer
type Option func(*Renderer)

// WithLogger sets the logger used for cache diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithViewMode sets the initial view mode
func WithViewMode(mode ViewMode) Option {
	return func(r *Renderer) { r.view.mode = mode }
}

// WithFrameBudget sets the time a batch of layers aims to take. Zero
// keeps the batch sizes fixed at LayersPerFrame and GhostLayersPerFrame.
func WithFrameBudget(d time.Duration) Option {
	return func(r *Renderer) {
		r.solidBatch.budget = d
		r.ghostBudget = d
	}
}

// WithCanvasSize sets the initial canvas size
func WithCanvasSize(w, h int) Option {
	return func(r *Renderer) {
		r.view.width = max(w, 1)
		r.view.height = max(h, 1)
	}
}

// Renderer draws the layers of one parsed file. It is used from a single
// goroutine; only the ghost build runs in the background, on a private
// copy of the view parameters.
//
// The file passed to SetGCode is borrowed: it must stay valid and
// unmodified until another file is set or Clear is called.
type Renderer struct {
	logger  *slog.Logger
	palette style.Palette

	file    *gcode.File
	current int

	view        projection
	boundsValid bool
	filter      filter
	depth       bool
	ghostMode   bool

	// solid holds layers 0..cachedUpTo
	solid      *raster.Buffer
	cachedUpTo int

	// ghost is the presentable copy of the last completed ghost build
	ghost      *raster.Buffer
	ghostValid bool

	ghostTask     task.Task
	ghostResult   task.Handoff[*raster.Buffer]
	ghostProgress atomic.Int64 // layers painted by the current build

	solidBatch  batchSizer
	ghostBudget time.Duration
	ghostBatch  atomic.Int64 // adapted batch size, carried to the next build

	// frame is reused by the flat views
	frame *raster.Buffer
}

// New creates a renderer drawing with palette
func New(palette style.Palette, opts ...Option) *Renderer {
	r := &Renderer{
		logger:  slog.Default(),
		palette: palette,
		view: projection{
			mode:   ViewFront,
			width:  1,
			height: 1,
			scale:  1,
		},
		filter:     filter{travels: false, extrusions: true, supports: true},
		depth:      true,
		ghostMode:  true,
		cachedUpTo: -1,
		solidBatch:  newBatchSizer(LayersPerFrame, DefaultFrameBudget),
		ghostBudget: DefaultFrameBudget,
	}
	r.ghostBatch.Store(GhostLayersPerFrame)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetGCode sets the file to render and resets the current layer. A nil
// file clears the renderer.
func (r *Renderer) SetGCode(file *gcode.File) {
	r.file = file
	r.current = 0
	r.boundsValid = false
	r.InvalidateCache()
	if file != nil {
		r.logger.Debug("[LayerRenderer] File set", "file", file.Filename, "layers", file.LayerCount())
	}
}

// Clear drops the file reference and all caches
func (r *Renderer) Clear() {
	r.SetGCode(nil)
}

// SetPalette changes the colors and repaints
func (r *Renderer) SetPalette(p style.Palette) {
	r.palette = p
	r.InvalidateCache()
}

// LayerCount returns the number of layers of the current file
func (r *Renderer) LayerCount() int {
	return r.file.LayerCount()
}

// SetCurrentLayer selects the topmost visible layer, clamped to the file
func (r *Renderer) SetCurrentLayer(idx int) {
	n := r.LayerCount()
	if n == 0 {
		r.current = 0
		return
	}
	r.current = max(0, min(idx, n-1))
}

// CurrentLayer returns the topmost visible layer
func (r *Renderer) CurrentLayer() int { return r.current }

// SetCanvasSize sets the output size, at least 1x1. A size change drops
// the caches and refits on the next render.
func (r *Renderer) SetCanvasSize(w, h int) {
	w, h = max(w, 1), max(h, 1)
	if w == r.view.width && h == r.view.height {
		return
	}
	r.view.width, r.view.height = w, h
	r.boundsValid = false
	r.InvalidateCache()
}

// CanvasSize returns the output size
func (r *Renderer) CanvasSize() (int, int) { return r.view.width, r.view.height }

// SetViewMode changes the projection and refits on the next render
func (r *Renderer) SetViewMode(mode ViewMode) {
	if mode == r.view.mode {
		return
	}
	r.view.mode = mode
	r.boundsValid = false
	r.InvalidateCache()
}

// ViewMode returns the projection mode
func (r *Renderer) ViewMode() ViewMode { return r.view.mode }

// SetShowTravels toggles travel moves
func (r *Renderer) SetShowTravels(show bool) {
	r.setFilter(filter{show, r.filter.extrusions, r.filter.supports})
}

// SetShowExtrusions toggles model extrusions
func (r *Renderer) SetShowExtrusions(show bool) {
	r.setFilter(filter{r.filter.travels, show, r.filter.supports})
}

// SetShowSupports toggles support extrusions
func (r *Renderer) SetShowSupports(show bool) {
	r.setFilter(filter{r.filter.travels, r.filter.extrusions, show})
}

func (r *Renderer) setFilter(f filter) {
	if f != r.filter {
		r.filter = f
		r.InvalidateCache()
	}
}

// SetDepthShading toggles depth shading in the front view
func (r *Renderer) SetDepthShading(enabled bool) {
	if enabled != r.depth {
		r.depth = enabled
		r.InvalidateCache()
	}
}

// SetGhostMode toggles the faded preview of the remaining layers
func (r *Renderer) SetGhostMode(enabled bool) {
	if enabled == r.ghostMode {
		return
	}
	r.ghostMode = enabled
	if !enabled {
		r.cancelGhost()
	}
}

// GhostMode reports whether the ghost preview is enabled
func (r *Renderer) GhostMode() bool { return r.ghostMode }

// SetContentOffsetY shifts the drawing vertically by a fraction of the
// canvas height, clamped to [-1, 1]
func (r *Renderer) SetContentOffsetY(fraction float64) {
	fraction = max(-1, min(1, fraction))
	if fraction != r.view.contentOffset {
		r.view.contentOffset = fraction
		r.InvalidateCache()
	}
}

// SetScale sets pixels per millimeter, clamped to [0.001, MaxScale]
func (r *Renderer) SetScale(scale float64) {
	if math.IsNaN(scale) {
		scale = 1
	}
	r.view.scale = min(max(scale, minScale), MaxScale)
	r.boundsValid = true
	r.InvalidateCache()
}

// Scale returns pixels per millimeter
func (r *Renderer) Scale() float64 { return r.view.scale }

// AutoFit fits the whole model into the canvas
func (r *Renderer) AutoFit() {
	b := gcode.NewAABB()
	if r.file != nil {
		b = r.file.Bounds
	}
	r.view.fit(b)
	r.boundsValid = true
	r.InvalidateCache()
}

// FitLayer fits the current layer into the canvas
func (r *Renderer) FitLayer() {
	b := gcode.NewAABB()
	if l := r.file.Layer(r.current); l != nil {
		b = l.Bounds
	}
	r.view.fit(b)
	r.boundsValid = true
	r.InvalidateCache()
}

// WorldToScreen maps a world point to canvas pixels with the current view
func (r *Renderer) WorldToScreen(x, y, z float64) (int, int) {
	return r.view.project(x, y, z)
}

// InvalidateCache cancels any ghost build and drops both caches
func (r *Renderer) InvalidateCache() {
	r.cancelGhost()
	r.ghostValid = false
	r.cachedUpTo = -1
	if r.solid != nil {
		r.solid.Clear()
	}
}

func (r *Renderer) cancelGhost() {
	r.ghostTask.Cancel()
	r.ghostResult.Reset()
	r.ghostProgress.Store(0)
}

// NeedsMoreFrames reports whether another Render call would change the
// output: the solid cache lags behind the current layer or a ghost build
// is still pending. Only the front view is progressive.
func (r *Renderer) NeedsMoreFrames() bool {
	if r.view.mode != ViewFront || r.LayerCount() == 0 {
		return false
	}
	if r.cachedUpTo < r.current {
		return true
	}
	return r.ghostMode && !r.ghostValid && (r.ghostTask.IsRunning() || r.ghostResult.Ready())
}

// GhostProgress returns the completed fraction of the ghost build
func (r *Renderer) GhostProgress() float64 {
	if r.ghostValid {
		return 1
	}
	n := r.LayerCount()
	if n == 0 {
		return 0
	}
	return float64(r.ghostProgress.Load()) / float64(n)
}

// IsGhostBuildRunning reports whether a ghost build is in progress
func (r *Renderer) IsGhostBuildRunning() bool { return r.ghostTask.IsRunning() }

// IsGhostBuildComplete reports whether the ghost cache is ready to use
func (r *Renderer) IsGhostBuildComplete() bool { return r.ghostValid }

// Render draws the current state onto dst. In the front view it advances
// the caches by at most one step; check NeedsMoreFrames afterwards.
func (r *Renderer) Render(dst raster.Surface) {
	if r.LayerCount() == 0 || dst == nil {
		return
	}
	if !r.boundsValid {
		r.AutoFit()
	}

	if r.view.mode != ViewFront {
		r.renderFlat(dst)
		return
	}

	r.ensureBuffers()
	if r.ghostMode {
		r.updateGhost()
	}
	r.updateSolid()

	if r.ghostMode && r.ghostValid {
		dst.Blit(r.ghost, 0, 0, GhostOpacity)
	}
	dst.Blit(r.solid, 0, 0, 1)
}

func (r *Renderer) shader() shader {
	return shader{palette: r.palette, bounds: r.file.Bounds, depth: r.depth}
}

func (r *Renderer) ensureBuffers() {
	w, h := r.view.width, r.view.height
	if r.solid == nil || r.solid.Width != w || r.solid.Height != h {
		r.solid = raster.New(w, h)
		r.cachedUpTo = -1
	}
	if r.ghost == nil || r.ghost.Width != w || r.ghost.Height != h {
		r.ghost = raster.New(w, h)
		r.ghostValid = false
	}
}

// updateSolid paints the next batch of layers into the solid cache. The
// cache restarts from layer 0 only when the target moves backwards.
func (r *Renderer) updateSolid() {
	target := r.current
	if target == r.cachedUpTo {
		return
	}

	from := r.cachedUpTo + 1
	if target < r.cachedUpTo {
		r.solid.Clear()
		from = 0
	}
	to := min(from+r.solidBatch.size-1, target)

	start := time.Now()
	s := r.shader()
	for i := from; i <= to; i++ {
		drawSolid(r.solid, &r.file.Layers[i], r.view, r.filter, s)
	}
	r.cachedUpTo = to
	r.solidBatch.adapt(time.Since(start))
}

// SolidBatchSize returns the number of layers the next Render call paints
// into the solid cache
func (r *Renderer) SolidBatchSize() int { return r.solidBatch.size }

// updateGhost adopts a finished ghost build or starts a new one
func (r *Renderer) updateGhost() {
	if r.ghostValid {
		return
	}
	if buf, ok := r.ghostResult.Take(); ok {
		if err := r.ghost.CopyFrom(buf); err != nil {
			r.logger.Warn("[Ghost] Discarding stale build", "error", err)
			return
		}
		r.ghostValid = true
		r.logger.Debug("[Ghost] Cache ready", "layers", r.LayerCount())
		return
	}
	if !r.ghostTask.IsRunning() {
		r.startGhost()
	}
}

// startGhost launches the background build. The build reads only the
// borrowed file and a copy of the view parameters.
func (r *Renderer) startGhost() {
	file := r.file
	view := r.view
	f := r.filter
	s := r.shader()
	progress := &r.ghostProgress
	result := &r.ghostResult
	batchSize := &r.ghostBatch
	batch := newBatchSizer(int(batchSize.Load()), r.ghostBudget)
	logger := r.logger

	progress.Store(0)
	r.ghostTask.Start(func(ctx context.Context) {
		buf := raster.New(view.width, view.height)
		for i := 0; i < len(file.Layers); {
			if ctx.Err() != nil {
				logger.Debug("[Ghost] Build cancelled", "layer", i)
				return
			}
			start := time.Now()
			end := min(i+batch.size, len(file.Layers))
			for ; i < end; i++ {
				drawGhost(buf, &file.Layers[i], view, f, s)
			}
			progress.Store(int64(i))
			batch.adapt(time.Since(start))
		}
		batchSize.Store(int64(batch.size))
		if ctx.Err() != nil {
			return
		}
		result.Publish(buf)
	})
}

// renderFlat draws only the current layer, centered on that layer
func (r *Renderer) renderFlat(dst raster.Surface) {
	w, h := r.view.width, r.view.height
	if r.frame == nil || r.frame.Width != w || r.frame.Height != h {
		r.frame = raster.New(w, h)
	} else {
		r.frame.Clear()
	}

	l := &r.file.Layers[r.current]
	view := r.view
	if !l.Bounds.IsEmpty() {
		c := l.Bounds.Center()
		view.offX, view.offY = c.X, c.Y
	}
	drawFlat(r.frame, l, view, r.filter, r.shader())
	dst.Blit(r.frame, 0, 0, 1)
}

// Close cancels and joins any background build. The renderer must not be
// used afterwards.
func (r *Renderer) Close() {
	r.cancelGhost()
	r.file = nil
}
