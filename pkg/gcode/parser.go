package gcode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	// layerZEpsilon is the smallest Z change that starts a new layer
	layerZEpsilon = 0.001
	// extrusionEpsilon is the smallest E delta counted as extrusion
	extrusionEpsilon = 0.00001
	// zMatchEpsilon is the tolerance for an exact FindLayerAtZ match
	zMatchEpsilon = 0.0001

	minLineWidth = 0.1
	maxLineWidth = 2.0
)

// LayerMode selects how the parser detects layer boundaries
type LayerMode int

const (
	// LayerByZ starts a new layer on every Z change
	LayerByZ LayerMode = iota
	// LayerByMarker starts a new layer on a Z change only after a
	// ;LAYER_CHANGE or ;LAYER:n comment
	LayerByMarker
	// LayerAuto behaves like LayerByZ until the first layer marker is seen
	// and like LayerByMarker afterwards
	LayerAuto
)

// Option configures a Parser
type Option func(*Parser)

// WithLayerMode sets the layer detection mode
func WithLayerMode(mode LayerMode) Option {
	return func(p *Parser) { p.layerMode = mode }
}

// WithLogger sets the logger used for parse diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser is a streaming G-code parser. Lines are fed one at a time with
// ParseLine and the result is collected with Finalize. A Parser is not safe
// for concurrent use.
type Parser struct {
	layerMode LayerMode
	logger    *slog.Logger

	position      Vec3
	e             float64
	absolutePos   bool
	absoluteE     bool
	currentObject string
	currentTool   int
	inWipeTower   bool
	markersSeen   bool
	pendingMarker bool
	linesParsed   int
	segmentCount  int
	invalidWidths int
	layers        []Layer
	objects       map[string]*Object
	bounds        AABB
	metadata      Metadata
}

// NewParser creates a parser ready to accept lines
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		layerMode: LayerByZ,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Reset()
	return p
}

// Reset clears all accumulated state so the parser can be reused
func (p *Parser) Reset() {
	p.position = Vec3{}
	p.e = 0
	p.absolutePos = true
	p.absoluteE = true
	p.currentObject = ""
	p.currentTool = 0
	p.inWipeTower = false
	p.markersSeen = false
	p.pendingMarker = false
	p.linesParsed = 0
	p.segmentCount = 0
	p.invalidWidths = 0
	p.layers = nil
	p.objects = make(map[string]*Object)
	p.bounds = NewAABB()
	p.metadata = DefaultMetadata()
}

// LinesParsed returns the number of lines fed since the last reset
func (p *Parser) LinesParsed() int { return p.linesParsed }

// CurrentZ returns the current nozzle Z position
func (p *Parser) CurrentZ() float64 { return p.position.Z }

// CurrentLayer returns the index of the layer being filled, -1 before the
// first layer exists
func (p *Parser) CurrentLayer() int { return len(p.layers) - 1 }

// ToolColorPalette returns the per-tool colors seen so far
func (p *Parser) ToolColorPalette() []string { return p.metadata.ToolColors }

// ParseLine processes one physical line. Malformed content is ignored.
func (p *Parser) ParseLine(line string) {
	p.linesParsed++

	code := line
	if i := strings.IndexByte(line, ';'); i >= 0 {
		p.handleComment(line[i:])
		code = line[:i]
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return
	}

	fields := strings.Fields(code)
	cmd := strings.ToUpper(fields[0])

	switch {
	case strings.HasPrefix(cmd, "EXCLUDE_OBJECT"):
		p.handleExcludeObject(cmd, code)
		return
	case cmd[0] == 'T':
		p.handleToolChange(cmd, len(fields))
		return
	}

	switch cmd {
	case "G90":
		p.absolutePos = true
	case "G91":
		p.absolutePos = false
	case "M82":
		p.absoluteE = true
	case "M83":
		p.absoluteE = false
	case "G92":
		p.handleSetPosition(fields[1:])
	case "G0", "G00":
		p.handleMove(fields[1:], false)
	case "G1", "G01":
		p.handleMove(fields[1:], true)
	}
}

// Finalize hands over the accumulated file and resets the parser
func (p *Parser) Finalize(filename string) *File {
	f := &File{
		Filename:          filename,
		Layers:            p.layers,
		Objects:           p.objects,
		Bounds:            p.bounds,
		TotalSegments:     p.segmentCount,
		Metadata:          p.metadata,
		InvalidWidthCount: p.invalidWidths,
	}

	p.logger.Info("[Parser] Parsed G-code",
		"file", filename,
		"layers", len(f.Layers),
		"segments", f.TotalSegments,
		"objects", len(f.Objects))
	if p.invalidWidths > 0 {
		p.logger.Debug("[Parser] Segments with out-of-range width used the default", "count", p.invalidWidths)
	}

	p.Reset()
	return f
}

// cancelCheckLines is how many lines ParseContext reads between context
// checks
const cancelCheckLines = 8192

// Parse reads all lines from r and returns the finalized file. Only read
// errors are reported; content problems are skipped.
func (p *Parser) Parse(r io.Reader, filename string) (*File, error) {
	return p.ParseContext(context.Background(), r, filename)
}

// ParseContext is Parse with cancellation. A cancelled parse resets the
// parser and returns the context error.
func (p *Parser) ParseContext(ctx context.Context, r io.Reader, filename string) (*File, error) {
	p.Reset()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 0; scanner.Scan(); n++ {
		if n%cancelCheckLines == 0 && ctx.Err() != nil {
			p.Reset()
			return nil, ctx.Err()
		}
		p.ParseLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		p.Reset()
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return p.Finalize(filename), nil
}

// ParseFile parses the G-code file at path
func (p *Parser) ParseFile(path string) (*File, error) {
	return p.ParseFileContext(context.Background(), path)
}

// ParseFileContext parses the G-code file at path until ctx is cancelled
func (p *Parser) ParseFileContext(ctx context.Context, path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.ParseContext(ctx, file, path)
}

// ParseFile parses a G-code file with a default parser
func ParseFile(path string, opts ...Option) (*File, error) {
	return NewParser(opts...).ParseFile(path)
}

// ParseFileContext parses a G-code file with a default parser until ctx
// is cancelled
func ParseFileContext(ctx context.Context, path string, opts ...Option) (*File, error) {
	return NewParser(opts...).ParseFileContext(ctx, path)
}

// Parse parses G-code from r with a default parser
func Parse(r io.Reader, filename string, opts ...Option) (*File, error) {
	return NewParser(opts...).Parse(r, filename)
}

func (p *Parser) handleComment(comment string) {
	upper := strings.ToUpper(comment)
	switch {
	case strings.Contains(upper, "WIPE_TOWER_START") || strings.Contains(upper, "WIPE_TOWER_BRIM_START"):
		p.inWipeTower = true
	case strings.Contains(upper, "WIPE_TOWER_END") || strings.Contains(upper, "WIPE_TOWER_BRIM_END"):
		p.inWipeTower = false
	}

	if isLayerMarker(comment) {
		p.markersSeen = true
		p.pendingMarker = true
		return
	}
	applyMetadataComment(&p.metadata, comment)
}

// handleToolChange accepts a standalone "T<n>" word
func (p *Parser) handleToolChange(cmd string, fieldCount int) {
	if fieldCount != 1 || len(cmd) < 2 {
		return
	}
	tool, err := strconv.Atoi(cmd[1:])
	if err != nil || tool < 0 {
		return
	}
	p.currentTool = tool
}

// moveParams holds the axis words found on a line
type moveParams struct {
	x, y, z, e             float64
	hasX, hasY, hasZ, hasE bool
}

// parseMoveParams extracts X/Y/Z/E words. Tokens that are not a letter
// followed by a valid number are skipped.
func parseMoveParams(words []string) moveParams {
	var mp moveParams
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(w[1:], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		switch w[0] {
		case 'X', 'x':
			mp.x, mp.hasX = v, true
		case 'Y', 'y':
			mp.y, mp.hasY = v, true
		case 'Z', 'z':
			mp.z, mp.hasZ = v, true
		case 'E', 'e':
			mp.e, mp.hasE = v, true
		}
	}
	return mp
}

// handleSetPosition applies G92. Only the given axes are redefined.
func (p *Parser) handleSetPosition(words []string) {
	mp := parseMoveParams(words)
	if len(words) == 0 {
		p.position = Vec3{}
		p.e = 0
		return
	}
	if mp.hasX {
		p.position.X = mp.x
	}
	if mp.hasY {
		p.position.Y = mp.y
	}
	if mp.hasZ {
		p.position.Z = mp.z
	}
	if mp.hasE {
		p.e = mp.e
	}
}

func (p *Parser) handleMove(words []string, canExtrude bool) {
	mp := parseMoveParams(words)

	next := p.position
	if mp.hasX {
		next.X = p.axis(p.position.X, mp.x)
	}
	if mp.hasY {
		next.Y = p.axis(p.position.Y, mp.y)
	}
	if mp.hasZ {
		next.Z = p.axis(p.position.Z, mp.z)
		if math.Abs(next.Z-p.position.Z) > layerZEpsilon {
			p.onZChange(next.Z)
		}
	}

	nextE := p.e
	if mp.hasE {
		if p.absoluteE {
			nextE = mp.e
		} else {
			nextE = p.e + mp.e
		}
	}
	eDelta := nextE - p.e

	xyMoved := next.X != p.position.X || next.Y != p.position.Y
	moved := xyMoved || next.Z != p.position.Z

	// A Z-only move before any segment exists positions the nozzle from the
	// implicit origin and is not part of the toolpath.
	if moved && (xyMoved || p.segmentCount > 0) {
		extruding := canExtrude && eDelta > extrusionEpsilon
		p.addSegment(p.position, next, extruding, eDelta)
	}

	p.position = next
	p.e = nextE
}

func (p *Parser) axis(current, value float64) float64 {
	if p.absolutePos {
		return value
	}
	return current + value
}

func (p *Parser) onZChange(z float64) {
	useMarkers := p.layerMode == LayerByMarker || (p.layerMode == LayerAuto && p.markersSeen)
	if !useMarkers {
		p.startLayer(z)
		return
	}
	if p.pendingMarker {
		p.startLayer(z)
		p.pendingMarker = false
	}
}

// startLayer appends a layer unless the last one already sits at z. Layers
// are never merged with earlier entries, so a file that revisits a Z height
// gets a second layer at that height.
func (p *Parser) startLayer(z float64) {
	if n := len(p.layers); n > 0 && math.Abs(p.layers[n-1].Z-z) < layerZEpsilon {
		return
	}
	p.layers = append(p.layers, Layer{Z: z, Bounds: NewAABB()})
}

func (p *Parser) addSegment(start, end Vec3, extruding bool, eDelta float64) {
	if len(p.layers) == 0 {
		p.startLayer(start.Z)
	}

	seg := Segment{
		Start:     start,
		End:       end,
		Extrusion: extruding,
		Object:    p.currentObject,
		EDelta:    eDelta,
		Tool:      p.currentTool,
	}
	if p.inWipeTower {
		seg.Object = WipeTowerObject
	}
	if extruding {
		seg.Width = p.lineWidth(start, end, eDelta)
	}

	layer := &p.layers[len(p.layers)-1]
	layer.Segments = append(layer.Segments, seg)

	// The very first start point is the implicit origin and stays out of
	// the print bounds.
	if p.segmentCount > 0 {
		layer.Bounds.Expand(start)
		p.bounds.Expand(start)
	}
	layer.Bounds.Expand(end)
	p.bounds.Expand(end)
	p.segmentCount++

	if extruding {
		layer.ExtrusionCount++
	} else {
		layer.TravelCount++
	}

	if extruding && p.currentObject != "" {
		if obj, ok := p.objects[p.currentObject]; ok {
			obj.Bounds.Expand(start)
			obj.Bounds.Expand(end)
		}
	}
}

// lineWidth derives the extruded line width from the filament volume using
// the Slic3r oval cross-section: A = (w - h)*h + pi*(h/2)^2. Out of range
// results return 0 so renderers fall back to their default width.
func (p *Parser) lineWidth(start, end Vec3, eDelta float64) float64 {
	dx := end.X - start.X
	dy := end.Y - start.Y
	dist := math.Hypot(dx, dy)
	if dist <= extrusionEpsilon || eDelta <= extrusionEpsilon {
		return 0
	}

	r := p.metadata.FilamentDiameterMM / 2
	volume := eDelta * math.Pi * r * r
	h := p.metadata.LayerHeightMM
	area := volume / dist
	w := (area-math.Pi*(h/2)*(h/2))/h + h

	if w < minLineWidth || w > maxLineWidth {
		p.invalidWidths++
		return 0
	}
	return w
}
