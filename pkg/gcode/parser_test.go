package gcode

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func parseString(t *testing.T, src string, opts ...Option) *File {
	t.Helper()
	f, err := Parse(strings.NewReader(src), "test.gcode", opts...)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	return f
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseTwoLayerScenario(t *testing.T) {
	src := `G1 X0 Y0 Z0.2 E1
G1 X10 Y0 E2
G1 Z0.4
G1 X10 Y10 E3
`
	f := parseString(t, src)

	if f.LayerCount() != 2 {
		t.Fatalf("LayerCount() = %d, want 2", f.LayerCount())
	}
	if f.TotalSegments != 3 {
		t.Fatalf("TotalSegments = %d, want 3", f.TotalSegments)
	}
	if !almostEqual(f.Layers[0].Z, 0.2) || !almostEqual(f.Layers[1].Z, 0.4) {
		t.Errorf("Expected layer Z 0.2 and 0.4, got %v and %v", f.Layers[0].Z, f.Layers[1].Z)
	}

	l0 := f.Layers[0].Segments
	if len(l0) != 1 || !l0[0].Extrusion {
		t.Fatalf("Expected one extrusion segment on layer 0, got %+v", l0)
	}

	l1 := f.Layers[1].Segments
	if len(l1) != 2 {
		t.Fatalf("Expected two segments on layer 1, got %d", len(l1))
	}
	if l1[0].Extrusion {
		t.Errorf("Expected Z-only move to be travel")
	}
	if l1[0].Start != (Vec3{10, 0, 0.2}) || l1[0].End != (Vec3{10, 0, 0.4}) {
		t.Errorf("Unexpected Z-only segment %+v", l1[0])
	}
	if !l1[1].Extrusion {
		t.Errorf("Expected last segment to extrude")
	}

	if f.Layers[1].TravelCount != 1 || f.Layers[1].ExtrusionCount != 1 {
		t.Errorf("Layer 1 counts = %d travel / %d extrusion, want 1/1",
			f.Layers[1].TravelCount, f.Layers[1].ExtrusionCount)
	}
	if f.Bounds.Max != (Vec3{10, 10, 0.4}) {
		t.Errorf("Bounds.Max = %+v, want {10 10 0.4}", f.Bounds.Max)
	}
}

func TestParseMoveClassification(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantExtr  bool
		wantDelta float64
	}{
		{"G0 never extrudes", "G1 X1 E1\nG0 X5 E2\n", false, 1},
		{"G1 with E extrudes", "G1 X1 E1\nG1 X5 E2\n", true, 1},
		{"retraction is travel", "G1 X1 E1\nG1 X5 E0.5\n", false, -0.5},
		{"tiny E delta is travel", "G1 X1 E1\nG1 X5 E1.000001\n", false, 0.000001},
		{"relative extrusion", "M83\nG1 X1 E1\nG1 X5 E0.4\n", true, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseString(t, tt.src)
			segs := f.Layers[len(f.Layers)-1].Segments
			last := segs[len(segs)-1]
			if last.Extrusion != tt.wantExtr {
				t.Errorf("Extrusion = %v, want %v", last.Extrusion, tt.wantExtr)
			}
			if math.Abs(last.EDelta-tt.wantDelta) > 1e-9 {
				t.Errorf("EDelta = %v, want %v", last.EDelta, tt.wantDelta)
			}
		})
	}
}

func TestParseRelativePositioning(t *testing.T) {
	src := `G1 X10 Y10 Z0.2 E1
G91
G1 X5 Y-2 E1
G90
G1 X0 Y0
`
	f := parseString(t, src)
	segs := f.Layers[0].Segments
	if len(segs) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(segs))
	}
	if segs[1].End != (Vec3{15, 8, 0.2}) {
		t.Errorf("Relative move ended at %+v, want {15 8 0.2}", segs[1].End)
	}
	if segs[2].End != (Vec3{0, 0, 0.2}) {
		t.Errorf("Absolute move ended at %+v, want {0 0 0.2}", segs[2].End)
	}
}

func TestParseSetPosition(t *testing.T) {
	src := `G1 X10 E5
G92 E0
G1 X20 E1
`
	f := parseString(t, src)
	segs := f.Layers[0].Segments
	last := segs[len(segs)-1]
	if !last.Extrusion || !almostEqual(last.EDelta, 1) {
		t.Errorf("Expected extrusion with delta 1 after G92 E0, got %+v", last)
	}
}

func TestParseSkipsMalformedInput(t *testing.T) {
	src := `; just a comment

G1 Xabc Y10
G1 X5 Ynan
M104 S200
FOO BAR
G1 X1 Y1 E1
`
	f := parseString(t, src)
	if f.TotalSegments != 3 {
		t.Errorf("TotalSegments = %d, want 3", f.TotalSegments)
	}
}

func TestParserResetIsIdempotent(t *testing.T) {
	src := `G1 Z0.2
G1 X10 Y0 E1
G1 Z0.4
G1 X0 Y10 E2
G1 Z0.6
G1 X5 Y5 E3
`
	p := NewParser()
	first, err := p.Parse(strings.NewReader(src), "a")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	p.Reset()
	second, err := p.Parse(strings.NewReader(src), "a")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if first.LayerCount() != second.LayerCount() {
		t.Fatalf("Layer count changed: %d vs %d", first.LayerCount(), second.LayerCount())
	}
	for i := range first.Layers {
		a, b := first.Layers[i], second.Layers[i]
		if a.Z != b.Z || len(a.Segments) != len(b.Segments) {
			t.Errorf("Layer %d differs: z %v/%v segments %d/%d", i, a.Z, b.Z, len(a.Segments), len(b.Segments))
		}
	}
	if p.LinesParsed() != 0 {
		t.Errorf("LinesParsed after Finalize = %d, want 0", p.LinesParsed())
	}
}

func TestParserStreamingAccessors(t *testing.T) {
	p := NewParser()
	if p.CurrentLayer() != -1 {
		t.Errorf("CurrentLayer() = %d, want -1", p.CurrentLayer())
	}
	p.ParseLine("; extruder_colour = #FF0000;#00FF00")
	p.ParseLine("G1 Z0.3")
	p.ParseLine("G1 X1 Y1 E1")

	if p.LinesParsed() != 3 {
		t.Errorf("LinesParsed() = %d, want 3", p.LinesParsed())
	}
	if !almostEqual(p.CurrentZ(), 0.3) {
		t.Errorf("CurrentZ() = %v, want 0.3", p.CurrentZ())
	}
	if p.CurrentLayer() != 0 {
		t.Errorf("CurrentLayer() = %d, want 0", p.CurrentLayer())
	}
	if got := p.ToolColorPalette(); len(got) != 2 || got[1] != "#00FF00" {
		t.Errorf("ToolColorPalette() = %v", got)
	}
}

func TestNonMonotonicZAppendsLayers(t *testing.T) {
	src := `G1 Z0.2
G1 X1 E1
G1 Z0.4
G1 X2 E2
G1 Z0.2
G1 X3 E3
`
	f := parseString(t, src)
	if f.LayerCount() != 3 {
		t.Fatalf("LayerCount() = %d, want 3", f.LayerCount())
	}
	if !almostEqual(f.Layers[2].Z, 0.2) {
		t.Errorf("Layer 2 Z = %v, want 0.2", f.Layers[2].Z)
	}
}

func TestFindLayerAtZ(t *testing.T) {
	f := &File{Layers: []Layer{{Z: 0.2}, {Z: 0.4}, {Z: 0.6}}}

	tests := []struct {
		z    float64
		want int
	}{
		{0.2, 0},
		{0.4, 1},
		{0.41, 1},
		{0.3, 0}, // tie resolves to the lower layer
		{0.55, 2},
		{-5, 0},
		{100, 2},
	}
	for _, tt := range tests {
		if got := f.FindLayerAtZ(tt.z); got != tt.want {
			t.Errorf("FindLayerAtZ(%v) = %d, want %d", tt.z, got, tt.want)
		}
	}

	empty := &File{}
	if got := empty.FindLayerAtZ(1); got != -1 {
		t.Errorf("FindLayerAtZ on empty file = %d, want -1", got)
	}
}

func TestFileLayerOutOfRange(t *testing.T) {
	f := &File{Layers: []Layer{{Z: 0.2}}}
	if f.Layer(-1) != nil || f.Layer(1) != nil {
		t.Errorf("Expected nil for out of range layers")
	}
	if f.Layer(0) == nil {
		t.Errorf("Expected layer 0")
	}
}

func TestClearSegmentsKeepsCounts(t *testing.T) {
	f := parseString(t, "G1 Z0.2\nG1 X1 E1\nG1 X2\n")
	count := f.Layers[0].SegmentCount()
	f.ClearSegments()
	if f.Layers[0].Segments != nil {
		t.Errorf("Expected segments to be released")
	}
	if f.Layers[0].SegmentCount() != count {
		t.Errorf("SegmentCount() = %d, want %d", f.Layers[0].SegmentCount(), count)
	}
}

func TestBoundsUnionOfLayers(t *testing.T) {
	f := parseString(t, `G1 X5 Y5 Z0.2
G1 X20 Y5 E1
G1 Z0.4
G1 X20 Y30 E2
G0 X-3 Y7
`)
	union := NewAABB()
	for _, l := range f.Layers {
		union.ExpandBox(l.Bounds)
	}
	if union != f.Bounds {
		t.Errorf("Union of layer bounds %+v != file bounds %+v", union, f.Bounds)
	}
	if f.Bounds.Min.X != -3 || f.Bounds.Max.Y != 30 {
		t.Errorf("Unexpected bounds %+v", f.Bounds)
	}
}

func TestLayerMarkerMode(t *testing.T) {
	src := `;LAYER_CHANGE
G1 Z0.2
G1 X10 E1
G1 Z0.6
G1 X20
G1 Z0.2
;LAYER:1
G1 Z0.4
G1 X0 E2
`
	tests := []struct {
		name string
		mode LayerMode
		want int
	}{
		{"by Z", LayerByZ, 4},
		{"by marker", LayerByMarker, 2},
		{"auto", LayerAuto, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseString(t, src, WithLayerMode(tt.mode))
			if f.LayerCount() != tt.want {
				t.Errorf("LayerCount() = %d, want %d", f.LayerCount(), tt.want)
			}
		})
	}
}

func TestExcludeObjects(t *testing.T) {
	src := `EXCLUDE_OBJECT_DEFINE NAME=part_a CENTER=10,10 POLYGON=[[5,5],[15,5],[15,15]]
EXCLUDE_OBJECT_DEFINE NAME=part_b CENTER=40,40
EXCLUDE_OBJECT_DEFINE NAME=part_a CENTER=99,99
G1 Z0.2
EXCLUDE_OBJECT_START NAME=part_a
G1 X5 Y5
G1 X15 Y5 E1
EXCLUDE_OBJECT_END NAME=part_a
G0 X40 Y40
EXCLUDE_OBJECT_START NAME=part_b
G1 X45 Y40 E2
EXCLUDE_OBJECT_END
G1 X50 Y50 E3
`
	f := parseString(t, src)

	if got := f.ObjectNames(); len(got) != 2 || got[0] != "part_a" || got[1] != "part_b" {
		t.Fatalf("ObjectNames() = %v", got)
	}
	a, ok := f.GetObject("part_a")
	if !ok {
		t.Fatalf("part_a not found")
	}
	if a.Center != (Vec2{10, 10}) {
		t.Errorf("Redefinition changed center to %+v", a.Center)
	}
	if len(a.Polygon) != 3 {
		t.Errorf("Polygon has %d points, want 3", len(a.Polygon))
	}
	if a.Bounds.Min.X != 5 || a.Bounds.Max.X != 15 {
		t.Errorf("part_a bounds = %+v", a.Bounds)
	}
	if a.Excluded {
		t.Errorf("Parser must not set Excluded")
	}

	var owners []string
	for _, s := range f.Layers[0].Segments {
		owners = append(owners, s.Object)
	}
	want := []string{"part_a", "part_a", "", "part_b", ""}
	if strings.Join(owners, ",") != strings.Join(want, ",") {
		t.Errorf("Segment owners = %v, want %v", owners, want)
	}

	b, _ := f.GetObject("part_b")
	if b.Bounds.Min.X != 40 || b.Bounds.Max.X != 45 {
		t.Errorf("part_b bounds = %+v", b.Bounds)
	}
}

func TestWipeTowerTagging(t *testing.T) {
	src := `G1 Z0.2
EXCLUDE_OBJECT_START NAME=cube
G1 X1 E1
; WIPE_TOWER_START
G1 X2 E2
; WIPE_TOWER_END
G1 X3 E3
`
	f := parseString(t, src)
	segs := f.Layers[0].Segments
	if segs[1].Object != WipeTowerObject {
		t.Errorf("Expected wipe tower owner, got %q", segs[1].Object)
	}
	if segs[2].Object != "cube" {
		t.Errorf("Expected owner cube after tower end, got %q", segs[2].Object)
	}
}

func TestToolChange(t *testing.T) {
	f := parseString(t, "G1 X1 E1\nT1\nG1 X2 E2\nT2 S1\nG1 X3 E3\n")
	segs := f.Layers[0].Segments
	if segs[0].Tool != 0 || segs[1].Tool != 1 || segs[2].Tool != 1 {
		t.Errorf("Tools = %d %d %d, want 0 1 1", segs[0].Tool, segs[1].Tool, segs[2].Tool)
	}
}

func TestLineWidth(t *testing.T) {
	// 0.45 mm line at 0.2 mm layer height over 10 mm
	h := 0.2
	w := 0.45
	area := (w-h)*h + math.Pi*(h/2)*(h/2)
	r := 1.75 / 2
	e := area * 10 / (math.Pi * r * r)

	f := parseString(t, "G1 X10 E"+strconv.FormatFloat(e, 'f', -1, 64)+"\nG1 X10.1 E100\n")
	segs := f.Layers[0].Segments
	if math.Abs(segs[0].Width-w) > 1e-6 {
		t.Errorf("Width = %v, want %v", segs[0].Width, w)
	}
	if segs[1].Width != 0 {
		t.Errorf("Out of range width = %v, want 0", segs[1].Width)
	}
	if f.InvalidWidthCount != 1 {
		t.Errorf("InvalidWidthCount = %d, want 1", f.InvalidWidthCount)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.gcode")
	if err := os.WriteFile(path, []byte("G1 Z0.2\nG1 X1 E1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	f, err := ParseFile(path)
	if err != nil {
		t.Fatalf("Failed to parse file: %v", err)
	}
	if f.Filename != path || f.TotalSegments != 1 {
		t.Errorf("Unexpected result %q with %d segments", f.Filename, f.TotalSegments)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.gcode")); err == nil {
		t.Errorf("Expected error for missing file")
	}
}

func TestParseContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParser()
	f, err := p.ParseContext(ctx, strings.NewReader("G1 Z0.2\nG1 X1 E1\n"), "test.gcode")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ParseContext() error = %v, want context.Canceled", err)
	}
	if f != nil {
		t.Errorf("ParseContext() returned a file after cancellation")
	}
	if p.LinesParsed() != 0 {
		t.Errorf("LinesParsed() = %d, want 0 after reset", p.LinesParsed())
	}

	path := filepath.Join(t.TempDir(), "cube.gcode")
	if err := os.WriteFile(path, []byte("G1 Z0.2\nG1 X1 E1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	f, err = ParseFileContext(context.Background(), path)
	if err != nil || f.TotalSegments != 1 {
		t.Errorf("ParseFileContext() = %v, %v; want 1 segment", f, err)
	}
}
