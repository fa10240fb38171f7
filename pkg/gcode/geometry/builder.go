// Package geometry converts parsed toolpaths into quantized tube meshes
// ("ribbons") for shaded rendering.
package geometry

import (
	"errors"
	"image/color"
	"log/slog"

	"github.com/chewxy/math32"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
)

// ErrEmptyGeometry is returned when an export has nothing to write
var ErrEmptyGeometry = errors.New("geometry has no triangles")

const (
	defaultTubeSides      = 16
	defaultExtrusionWidth = 0.45
	defaultTravelWidth    = 0.1
	defaultLayerHeight    = 0.2

	// tubeWidthFactor widens tubes slightly so neighbors overlap
	tubeWidthFactor = 1.1
	// boundsMarginFactor pads the quantization bounds by the tube radius
	boundsMarginFactor = 1.5
	// shareGapFactor is the max gap, in line widths, for a connected chain
	shareGapFactor = 1.5
)

// Stats describes the last build
type Stats struct {
	InputSegments       int
	OutputSegments      int
	SimplificationRatio float64
	Vertices            int
	Triangles           int
	MemoryBytes         int
}

// Option configures a Builder
type Option func(*Builder)

// WithTubeSides sets the tube cross section resolution. Only 4, 8 and 16
// are supported; any other value selects 16.
func WithTubeSides(n int) Option {
	return func(b *Builder) { b.tubeSides = n }
}

// WithExtrusionWidth sets the width used for segments without one
func WithExtrusionWidth(mm float64) Option {
	return func(b *Builder) { b.extrusionWidth = mm }
}

// WithTravelWidth sets the width used for travel moves
func WithTravelWidth(mm float64) Option {
	return func(b *Builder) { b.travelWidth = mm }
}

// WithLayerHeight sets the tube height, overriding the file's metadata
func WithLayerHeight(mm float64) Option {
	return func(b *Builder) { b.layerHeight = mm }
}

// WithFilamentColor sets a solid color and disables the height gradient
func WithFilamentColor(c color.NRGBA) Option {
	return func(b *Builder) {
		b.filament = c
		b.gradient = false
	}
}

// WithHeightGradient colors segments by Z from blue to red
func WithHeightGradient(enabled bool) Option {
	return func(b *Builder) { b.gradient = enabled }
}

// WithToolPalette sets per-tool "#RRGGBB" colors, overriding the file's
// metadata
func WithToolPalette(colors []string) Option {
	return func(b *Builder) { b.toolPalette = colors }
}

// WithHighlightedObjects brightens segments of the named objects
func WithHighlightedObjects(names ...string) Option {
	return func(b *Builder) {
		for _, name := range names {
			b.highlighted[name] = true
		}
	}
}

// WithLogger sets the logger used for build diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Builder turns segments into ribbon geometry. Each build returns a fresh
// geometry; a Builder is not safe for concurrent use.
type Builder struct {
	tubeSides      int
	extrusionWidth float64
	travelWidth    float64
	layerHeight    float64
	filament       color.NRGBA
	gradient       bool
	toolPalette    []string
	highlighted    map[string]bool
	logger         *slog.Logger

	stats Stats

	// per build state
	geom     *RibbonGeometry
	colors   colorizer
	height   float32
	haveCap  bool
	prevEnd  Vec3
	prevRing uint32
}

// NewBuilder creates a builder with default tube settings
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		tubeSides:      defaultTubeSides,
		extrusionWidth: defaultExtrusionWidth,
		travelWidth:    defaultTravelWidth,
		filament:       style.DefaultPalette().Extrusion,
		highlighted:    make(map[string]bool),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	switch b.tubeSides {
	case 4, 8, 16:
	default:
		b.tubeSides = defaultTubeSides
	}
	return b
}

// TubeSides returns the effective cross section resolution
func (b *Builder) TubeSides() int { return b.tubeSides }

// Stats returns statistics of the last build
func (b *Builder) Stats() Stats { return b.stats }

// Build converts every layer of file into ribbon geometry
func (b *Builder) Build(file *gcode.File, opts SimplifyOptions) *RibbonGeometry {
	return b.BuildRange(file, 0, file.LayerCount()-1, opts)
}

// BuildRange converts layers first..last (inclusive) of file. Layer
// indices in the result stay those of the file. Quantization always uses
// the whole file bounds so partial builds line up with full ones.
func (b *Builder) BuildRange(file *gcode.File, first, last int, opts SimplifyOptions) *RibbonGeometry {
	if file == nil || len(file.Layers) == 0 {
		b.stats = Stats{}
		return NewRibbonGeometry()
	}
	first = max(first, 0)
	last = min(last, len(file.Layers)-1)

	palette := b.toolPalette
	if palette == nil {
		palette = file.Metadata.ToolColors
	}
	height := b.layerHeight
	if height <= 0 {
		height = file.Metadata.LayerHeightMM
	}
	return b.build(file.Layers, first, last, file.Bounds, palette, height, opts)
}

// BuildSegments converts a flat segment list, treated as a single layer
func (b *Builder) BuildSegments(segs []gcode.Segment, opts SimplifyOptions) *RibbonGeometry {
	layer := gcode.Layer{Segments: segs, Bounds: gcode.NewAABB()}
	for _, s := range segs {
		layer.Bounds.Expand(s.Start)
		layer.Bounds.Expand(s.End)
	}
	if len(segs) > 0 {
		layer.Z = segs[0].Start.Z
	}
	return b.build([]gcode.Layer{layer}, 0, 0, layer.Bounds, b.toolPalette, b.layerHeight, opts)
}

func (b *Builder) build(layers []gcode.Layer, first, last int, bounds gcode.AABB, palette []string, height float64, opts SimplifyOptions) *RibbonGeometry {
	opts.Validate()
	if height <= 0 {
		height = defaultLayerHeight
	}

	margin := max(b.extrusionWidth, b.travelWidth) * boundsMarginFactor
	g := NewRibbonGeometry()
	g.Quant = NewQuantization(bounds.Inflate(margin))
	g.LayerBounds = make([]gcode.AABB, len(layers))
	g.LayerStrips = make([]StripRange, len(layers))
	for i := range g.LayerBounds {
		g.LayerBounds[i] = gcode.NewAABB()
	}

	b.geom = g
	b.height = float32(height)
	b.colors = colorizer{
		filament:    b.filament,
		gradient:    b.gradient,
		zMin:        bounds.Min.Z,
		zMax:        bounds.Max.Z,
		toolPalette: palette,
		highlighted: b.highlighted,
	}
	defer func() { b.geom = nil }()

	var stats Stats
	for li := first; li <= last; li++ {
		segs := layers[li].Segments
		stats.InputSegments += len(segs)

		simplified := Simplify(DropDegenerate(segs, opts.MinSegmentLengthMM), opts)
		stats.OutputSegments += len(simplified)

		g.LayerStrips[li].First = len(g.Strips)
		b.haveCap = false
		for _, seg := range simplified {
			b.addSegment(seg, li)
		}
		g.LayerStrips[li].Count = len(g.Strips) - g.LayerStrips[li].First
	}

	if stats.InputSegments > 0 {
		stats.SimplificationRatio = 1 - float64(stats.OutputSegments)/float64(stats.InputSegments)
	}
	stats.Vertices = len(g.Vertices)
	stats.Triangles = len(g.Strips) * 2
	stats.MemoryBytes = g.MemoryUsage()
	b.stats = stats

	b.logger.Debug("[Geometry] Built ribbons",
		"segments_in", stats.InputSegments,
		"segments_out", stats.OutputSegments,
		"vertices", stats.Vertices,
		"strips", len(g.Strips),
		"resolution_mm", g.Quant.Resolution(),
		"memory", stats.MemoryBytes)
	return g
}

// tubeWidth returns the tube width for seg
func (b *Builder) tubeWidth(seg gcode.Segment) float32 {
	w := b.travelWidth
	if seg.Extrusion {
		w = b.extrusionWidth
		if seg.Width >= 0.1 && seg.Width <= 2.0 {
			w = seg.Width
		}
	}
	return float32(w) * tubeWidthFactor
}

// addSegment appends the tube of one segment. Travels produce no geometry
// and break the current chain.
func (b *Builder) addSegment(seg gcode.Segment, layer int) {
	g := b.geom
	if !seg.Extrusion {
		b.haveCap = false
		return
	}

	start, end := vec3From(seg.Start), vec3From(seg.End)
	width := b.tubeWidth(seg)
	share := b.haveCap && start.Sub(b.prevEnd).Length() < width*shareGapFactor

	lb := &g.LayerBounds[layer]
	lb.Expand(seg.Start)
	lb.Expand(seg.End)

	col := g.addColor(b.colors.segmentColor(seg))
	n := b.tubeSides
	halfW := width * 0.5
	halfH := b.height * 0.5

	dir := end.Sub(start).Normal()
	right := dir.Cross(Vec3{0, 0, 1})
	if right.LengthSq() < 1e-6 {
		right = Vec3{1, 0, 0}
	} else {
		right = right.Normal()
	}
	up := right.Cross(dir).Normal()

	// Tubes hang below the nozzle path so the top sits at the layer Z
	drop := up.MulScalar(halfH)
	prevCenter := start.Sub(drop)
	currCenter := end.Sub(drop)

	step := 2 * math32.Pi / float32(n)
	offset := func(i int) Vec3 {
		a := float32(i) * step
		return right.MulScalar(halfW * math32.Cos(a)).Add(up.MulScalar(halfH * math32.Sin(a)))
	}
	faceNormal := func(i int) Vec3 {
		a := (float32(i) + 0.5) * step
		return right.MulScalar(math32.Cos(a)).Add(up.MulScalar(math32.Sin(a))).Normal()
	}

	emit := func(p, normal Vec3) uint32 {
		g.Vertices = append(g.Vertices, Vertex{
			Pos:    g.Quant.QuantizeVec(p),
			Normal: g.addNormal(normal),
			Color:  col,
		})
		return uint32(len(g.Vertices) - 1)
	}
	strip := func(s Strip) {
		g.Strips = append(g.Strips, s)
		g.StripLayer = append(g.StripLayer, uint16(min(layer, 0xFFFF)))
	}
	ring := func(center Vec3) uint32 {
		base := uint32(len(g.Vertices))
		for i := 0; i < n; i++ {
			fn := faceNormal(i)
			emit(center.Add(offset((i+1)%n)), fn)
			emit(center.Add(offset(i)), fn)
		}
		return base
	}

	var prevRing uint32
	if share {
		prevRing = b.prevRing
	} else {
		back := dir.MulScalar(-1)
		capBase := uint32(len(g.Vertices))
		for i := 0; i < n; i++ {
			emit(prevCenter.Add(offset(i)), back)
		}
		for i := 1; i < n-1; i++ {
			k := uint32(i)
			strip(Strip{capBase, capBase + k, capBase + k + 1, capBase + k + 1})
		}
		g.ExtrusionTriangles += n - 2
		prevRing = ring(prevCenter)
	}
	currRing := ring(currCenter)

	for i := 0; i < n; i++ {
		k := uint32(2 * i)
		strip(Strip{prevRing + k, prevRing + k + 1, currRing + k, currRing + k + 1})
	}
	g.ExtrusionTriangles += 2 * n

	endBase := uint32(len(g.Vertices))
	for i := 0; i < n; i++ {
		g.Vertices = append(g.Vertices, Vertex{
			Pos:    g.Vertices[currRing+uint32(2*i)].Pos,
			Normal: g.addNormal(dir),
			Color:  col,
		})
	}
	for i := 1; i < n-1; i++ {
		k := uint32(n - i)
		strip(Strip{endBase, endBase + k, endBase + k - 1, endBase + k - 1})
	}
	g.ExtrusionTriangles += n - 2

	b.haveCap = true
	b.prevEnd = end
	b.prevRing = currRing
}
