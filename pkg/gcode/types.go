// Package gcode provides a streaming G-code parser and the layer-indexed
// toolpath model it produces.
package gcode

import (
	"math"
	"sort"
)

// WipeTowerObject is the object name given to segments printed inside a
// wipe tower block
const WipeTowerObject = "__WIPE_TOWER__"

// Vec2 is a 2D point in millimeters
type Vec2 struct {
	X, Y float64
}

// Vec3 is a 3D point in millimeters
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the euclidean length
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Distance returns the distance between two points
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// Segment is a single straight toolpath move. Segments are immutable once
// created by the parser.
type Segment struct {
	Start     Vec3
	End       Vec3
	Extrusion bool    // true when filament was pushed during the move
	Object    string  // owning object name, empty when unassigned
	EDelta    float64 // signed extruder delta, negative for retractions
	Width     float64 // computed line width in mm, 0 means use the default
	Tool      int     // active tool index
}

// Length returns the 3D length of the segment
func (s Segment) Length() float64 {
	return s.Start.Distance(s.End)
}

// Layer holds all segments sharing one Z height in execution order
type Layer struct {
	Z              float64
	Segments       []Segment
	Bounds         AABB
	ExtrusionCount int
	TravelCount    int
}

// SegmentCount returns the number of segments recorded for the layer. It
// stays valid after ClearSegments.
func (l *Layer) SegmentCount() int {
	return l.ExtrusionCount + l.TravelCount
}

// Object is a named print region defined by EXCLUDE_OBJECT_DEFINE
type Object struct {
	Name    string
	Center  Vec2
	Polygon []Vec2
	Bounds  AABB

	// Excluded is owned by the UI. The parser never sets or resets it.
	Excluded bool
}

// Metadata holds slicer information extracted from comments
type Metadata struct {
	SlicerName       string
	FilamentType     string
	FilamentColorHex string
	PrinterModel     string

	NozzleDiameterMM   float64
	FilamentDiameterMM float64
	LayerHeightMM      float64
	FilamentLengthMM   float64
	FilamentWeightG    float64
	FilamentCost       float64

	EstimatedPrintTimeMinutes float64
	TotalLayerCount           int

	ExtrusionWidthMM           float64
	PerimeterExtrusionWidthMM  float64
	InfillExtrusionWidthMM     float64
	FirstLayerExtrusionWidthMM float64

	// ToolColors holds one "#RRGGBB" entry per tool. Invalid entries are
	// kept as empty strings so indices keep matching tool numbers.
	ToolColors []string
}

// DefaultMetadata returns metadata with the slicer-independent defaults
func DefaultMetadata() Metadata {
	return Metadata{
		FilamentDiameterMM: 1.75,
		LayerHeightMM:      0.2,
	}
}

// File is the finalized result of parsing. It is not mutated after
// Finalize and may be shared read-only between goroutines.
type File struct {
	Filename      string
	Layers        []Layer
	Objects       map[string]*Object
	Bounds        AABB
	TotalSegments int
	Metadata      Metadata

	// InvalidWidthCount counts extrusion segments whose computed width was
	// out of range and fell back to the default
	InvalidWidthCount int
}

// Layer returns the layer at idx, or nil when idx is out of range
func (f *File) Layer(idx int) *Layer {
	if f == nil || idx < 0 || idx >= len(f.Layers) {
		return nil
	}
	return &f.Layers[idx]
}

// LayerCount returns the number of layers
func (f *File) LayerCount() int {
	if f == nil {
		return 0
	}
	return len(f.Layers)
}

// FindLayerAtZ returns the index of the layer whose Z is closest to z, or
// -1 when there are no layers. Ties resolve to the layer with the lower Z.
// Layers keep print order, so the search does not assume sorted heights.
func (f *File) FindLayerAtZ(z float64) int {
	if f == nil || len(f.Layers) == 0 {
		return -1
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range f.Layers {
		lz := f.Layers[i].Z
		d := math.Abs(lz - z)
		if d < zMatchEpsilon {
			return i
		}
		if d < bestDist || (d == bestDist && lz < f.Layers[best].Z) {
			best = i
			bestDist = d
		}
	}
	return best
}

// ClearSegments drops segment storage while keeping per-layer Z, bounds
// and counts. Callers use it once geometry has been built and raw segments
// are no longer needed.
func (f *File) ClearSegments() {
	for i := range f.Layers {
		f.Layers[i].Segments = nil
	}
}

// ObjectNames returns the defined object names in sorted order
func (f *File) ObjectNames() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Objects))
	for name := range f.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetObject looks up an object by name
func (f *File) GetObject(name string) (*Object, bool) {
	if f == nil {
		return nil, false
	}
	obj, ok := f.Objects[name]
	return obj, ok
}
