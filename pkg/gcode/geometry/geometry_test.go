package geometry

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

func parse(t *testing.T, src string) *gcode.File {
	t.Helper()
	f, err := gcode.Parse(strings.NewReader(src), "test.gcode")
	require.NoError(t, err)
	return f
}

func box(minX, minY, minZ, maxX, maxY, maxZ float64) gcode.AABB {
	return gcode.AABB{
		Min: gcode.Vec3{X: minX, Y: minY, Z: minZ},
		Max: gcode.Vec3{X: maxX, Y: maxY, Z: maxZ},
	}
}

func ext(x0, y0, x1, y1 float64) gcode.Segment {
	return gcode.Segment{
		Start:     gcode.Vec3{X: x0, Y: y0, Z: 0.2},
		End:       gcode.Vec3{X: x1, Y: y1, Z: 0.2},
		Extrusion: true,
		EDelta:    0.1,
	}
}

func TestQuantizationScale(t *testing.T) {
	q := NewQuantization(box(-100, -100, 0, 100, 100, 100))
	assert.InDelta(t, -100, q.Min.X, 1e-6)
	assert.InDelta(t, 100, q.Max.Z, 1e-6)
	assert.InDelta(t, 32767*0.9/200, q.Scale, 1e-3)
	// sub-hundredth of a millimeter across a 200mm volume
	assert.InDelta(t, 200/(32767*0.9), q.Resolution(), 1e-6)
	assert.Less(t, q.Resolution(), float32(0.01))

	degenerate := NewQuantization(box(5, 5, 5, 5, 5, 5))
	assert.Equal(t, float32(1000), degenerate.Scale)
}

func TestQuantizationRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		bounds gcode.AABB
		point  Vec3
		margin float32
	}{
		{"inside", box(-100, -100, 0, 100, 100, 100), Vec3{12.345, -67.89, 42.1}, 0.01},
		{"min corner", box(-100, -100, 0, 100, 100, 100), Vec3{-100, -100, 0}, 0.01},
		{"max corner", box(-100, -100, 0, 100, 100, 100), Vec3{100, 100, 100}, 0.01},
		{"large volume", box(0, 0, 0, 350, 350, 400), Vec3{349.9, 0.1, 399.5}, 0.02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuantization(tt.bounds)
			got := q.DequantizeVec(q.QuantizeVec(tt.point))
			assert.InDelta(t, tt.point.X, got.X, float64(tt.margin))
			assert.InDelta(t, tt.point.Y, got.Y, float64(tt.margin))
			assert.InDelta(t, tt.point.Z, got.Z, float64(tt.margin))
		})
	}
}

func TestQuantizeClamps(t *testing.T) {
	q := NewQuantization(box(0, 0, 0, 1, 1, 1))
	assert.Equal(t, int16(32767), q.Quantize(1e6, 0))
	assert.Equal(t, int16(-32768), q.Quantize(-1e6, 0))
}

func TestSimplifyOptionsValidate(t *testing.T) {
	tests := []struct {
		name          string
		in            SimplifyOptions
		wantTolerance float64
		wantMinLength float64
	}{
		{"tolerance too small", SimplifyOptions{ToleranceMM: 0.001}, 0.01, 0.0001},
		{"tolerance too large", SimplifyOptions{ToleranceMM: 10}, 5.0, 0.0001},
		{"valid", SimplifyOptions{ToleranceMM: 0.15, MinSegmentLengthMM: 0.5}, 0.15, 0.5},
		{"min length too small", SimplifyOptions{ToleranceMM: 0.15, MinSegmentLengthMM: 1e-7}, 0.15, 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.in
			opts.Validate()
			assert.InDelta(t, tt.wantTolerance, opts.ToleranceMM, 1e-9)
			assert.InDelta(t, tt.wantMinLength, opts.MinSegmentLengthMM, 1e-12)
		})
	}
}

func TestSimplify(t *testing.T) {
	opts := DefaultSimplifyOptions()

	t.Run("collinear merge", func(t *testing.T) {
		out := Simplify([]gcode.Segment{ext(0, 0, 1, 0), ext(1, 0, 2, 0), ext(2, 0, 3, 0)}, opts)
		require.Len(t, out, 1)
		assert.Equal(t, 3.0, out[0].End.X)
		assert.InDelta(t, 0.3, out[0].EDelta, 1e-9)
	})

	t.Run("corner preserved", func(t *testing.T) {
		out := Simplify([]gcode.Segment{ext(0, 0, 10, 0), ext(10, 0, 10, 10)}, opts)
		assert.Len(t, out, 2)
	})

	t.Run("reversal preserved", func(t *testing.T) {
		out := Simplify([]gcode.Segment{ext(0, 0, 10, 0), ext(10, 0, 5, 0)}, opts)
		assert.Len(t, out, 2)
	})

	t.Run("different object preserved", func(t *testing.T) {
		a, b := ext(0, 0, 1, 0), ext(1, 0, 2, 0)
		b.Object = "part_2"
		assert.Len(t, Simplify([]gcode.Segment{a, b}, opts), 2)
	})

	t.Run("gap preserved", func(t *testing.T) {
		out := Simplify([]gcode.Segment{ext(0, 0, 1, 0), ext(1.5, 0, 2, 0)}, opts)
		assert.Len(t, out, 2)
	})

	t.Run("disabled", func(t *testing.T) {
		off := opts
		off.EnableMerging = false
		in := []gcode.Segment{ext(0, 0, 1, 0), ext(1, 0, 2, 0)}
		out := Simplify(in, off)
		assert.Equal(t, in, out)
	})
}

func TestDropDegenerate(t *testing.T) {
	out := DropDegenerate([]gcode.Segment{ext(0, 0, 0, 0), ext(0, 0, 1, 0)}, minSegmentLength)
	assert.Len(t, out, 1)
}

const singleSegment = "G1 X0 Y0 Z0.2 F1200\nG1 X10 Y0 E1\n"

func TestBuildSingleSegment(t *testing.T) {
	b := NewBuilder()
	f := parse(t, singleSegment)
	g := b.Build(f, DefaultSimplifyOptions())

	// start cap, two rings of 2N, end cap
	assert.Len(t, g.Vertices, 16+32+32+16)
	// start fan, sides, end fan
	assert.Len(t, g.Strips, 14+16+14)
	assert.Equal(t, 14+32+14, g.ExtrusionTriangles)
	assert.Zero(t, g.TravelTriangles)
	assert.NotEmpty(t, g.NormalPalette)
	assert.Len(t, g.ColorPalette, 1)

	stats := b.Stats()
	assert.Equal(t, 1, stats.InputSegments)
	assert.Equal(t, 1, stats.OutputSegments)
	assert.Equal(t, len(g.Vertices), stats.Vertices)
	assert.Equal(t, len(g.Strips)*2, stats.Triangles)
	assert.Equal(t, g.MemoryUsage(), stats.MemoryBytes)

	// the tube is as wide as the width derived from the extrusion
	half := float64(b.tubeWidth(f.Layers[0].Segments[0]))/2 + 0.01
	for i := range g.Vertices {
		p := g.Position(uint32(i))
		assert.InDelta(t, 5, p.X, 5+half, "vertex %d", i)
		assert.InDelta(t, 0, p.Y, half, "vertex %d", i)
		assert.LessOrEqual(t, p.Z, float32(0.21), "tube must hang below the nozzle path")
	}
}

func TestBuildExplicitWidthForZeroWidthSegment(t *testing.T) {
	// no derived width, so the configured extrusion width applies
	g := NewBuilder(WithExtrusionWidth(0.45)).BuildSegments([]gcode.Segment{ext(0, 0, 10, 0)}, DefaultSimplifyOptions())
	require.NotEmpty(t, g.Vertices)

	maxY := float32(0)
	for i := range g.Vertices {
		maxY = max(maxY, g.Position(uint32(i)).Y)
	}
	assert.InDelta(t, 0.45*float64(tubeWidthFactor)/2, float64(maxY), 0.01)
}

func TestBuildSharesConnectedRings(t *testing.T) {
	g := NewBuilder().Build(parse(t, singleSegment+"G1 X10 Y10 E2\n"), DefaultSimplifyOptions())

	// second segment reuses the first end ring: one new ring and an end cap
	assert.Len(t, g.Vertices, 96+32+16)
	assert.Len(t, g.Strips, 44+16+14)
}

func TestBuildBreaksChainOnTravel(t *testing.T) {
	src := singleSegment + "G0 X20 Y0\nG1 X30 Y0 E2\n"
	b := NewBuilder()
	g := b.Build(parse(t, src), DefaultSimplifyOptions())

	assert.Equal(t, 3, b.Stats().InputSegments)
	assert.Len(t, g.Vertices, 2*96)
	assert.Zero(t, g.TravelTriangles)
	assert.Positive(t, g.ExtrusionTriangles)
}

func TestBuildEmpty(t *testing.T) {
	b := NewBuilder()
	g := b.Build(parse(t, ""), DefaultSimplifyOptions())
	assert.Empty(t, g.Vertices)
	assert.Empty(t, g.Strips)
	assert.True(t, g.IsEmpty())
	assert.Zero(t, g.MemoryUsage())

	assert.True(t, NewBuilder().Build(nil, DefaultSimplifyOptions()).IsEmpty())
}

func TestBuildLayerIndex(t *testing.T) {
	src := `G1 X0 Y0 Z0.2
G1 X10 Y0 E1
G1 Z0.4
G1 X10 Y10 E2
G1 Z0.6
G1 X0 Y10 E3
`
	b := NewBuilder(WithTubeSides(4))
	g := b.Build(parse(t, src), DefaultSimplifyOptions())

	require.Equal(t, 3, g.LayerCount())
	assert.Len(t, g.StripLayer, len(g.Strips))
	next := 0
	for li, r := range g.LayerStrips {
		assert.Equal(t, next, r.First, "layer %d", li)
		assert.Positive(t, r.Count, "layer %d", li)
		for s := r.First; s < r.First+r.Count; s++ {
			assert.Equal(t, uint16(li), g.StripLayer[s])
		}
		next = r.First + r.Count
		assert.False(t, g.LayerBounds[li].IsEmpty())
	}
	assert.Equal(t, len(g.Strips), next)
}

func TestBuildRangeKeepsLayerIndices(t *testing.T) {
	src := "G1 X0 Y0 Z0.2\nG1 X10 Y0 E1\nG1 Z0.4\nG1 X10 Y10 E2\n"
	f := parse(t, src)
	full := NewBuilder().Build(f, DefaultSimplifyOptions())
	part := NewBuilder().BuildRange(f, 1, 1, DefaultSimplifyOptions())

	assert.Zero(t, part.LayerStrips[0].Count)
	assert.Equal(t, full.LayerStrips[1].Count, part.LayerStrips[1].Count)
	assert.Equal(t, full.Quant, part.Quant)
}

func TestTubeSides(t *testing.T) {
	tests := []struct {
		sides     int
		want      int
		wantVerts int
	}{
		{4, 4, 4 + 8 + 8 + 4},
		{8, 8, 8 + 16 + 16 + 8},
		{16, 16, 96},
		{5, 16, 96},
		{0, 16, 96},
	}
	for _, tt := range tests {
		b := NewBuilder(WithTubeSides(tt.sides))
		if b.TubeSides() != tt.want {
			t.Errorf("TubeSides(%d) = %d, want %d", tt.sides, b.TubeSides(), tt.want)
		}
		g := b.Build(parse(t, singleSegment), DefaultSimplifyOptions())
		if len(g.Vertices) != tt.wantVerts {
			t.Errorf("sides %d: vertices = %d, want %d", tt.sides, len(g.Vertices), tt.wantVerts)
		}
	}
}

func TestNormalsAreUnitLength(t *testing.T) {
	g := NewBuilder().Build(parse(t, singleSegment+"G1 X0 Y10 Z0.2 E2\n"), DefaultSimplifyOptions())
	for i, n := range g.NormalPalette {
		assert.InDelta(t, 1, n.Length(), 1e-3, "normal %d", i)
	}
	assert.Less(t, len(g.NormalPalette), len(g.Vertices))
}

func TestSegmentColors(t *testing.T) {
	layered := "G1 X0 Y0 Z0.2\nG1 X10 Y0 E1\nG1 Z10\nG1 X10 Y10 E2\n"
	red := color.NRGBA{R: 255, A: 255}

	t.Run("solid filament", func(t *testing.T) {
		g := NewBuilder(WithFilamentColor(red)).Build(parse(t, layered), DefaultSimplifyOptions())
		assert.Equal(t, []color.NRGBA{red}, g.ColorPalette)
	})

	t.Run("height gradient", func(t *testing.T) {
		g := NewBuilder(WithHeightGradient(true)).Build(parse(t, layered), DefaultSimplifyOptions())
		require.Len(t, g.ColorPalette, 2)
		assert.Equal(t, uint8(255), g.ColorPalette[0].B, "bottom layer is blue")
		assert.Equal(t, uint8(255), g.ColorPalette[1].R, "top layer is red")
	})

	t.Run("tool palette", func(t *testing.T) {
		g := NewBuilder(WithToolPalette([]string{"#00FF00"})).Build(parse(t, singleSegment), DefaultSimplifyOptions())
		assert.Equal(t, []color.NRGBA{{G: 255, A: 255}}, g.ColorPalette)
	})

	t.Run("invalid tool color", func(t *testing.T) {
		g := NewBuilder(WithToolPalette([]string{"#nothex"})).Build(parse(t, singleSegment), DefaultSimplifyOptions())
		assert.Equal(t, []color.NRGBA{fallbackToolColor}, g.ColorPalette)
	})

	t.Run("highlight", func(t *testing.T) {
		c := colorizer{filament: color.NRGBA{R: 100, G: 50, B: 200, A: 255}, highlighted: map[string]bool{"a": true}}
		seg := ext(0, 0, 1, 0)
		seg.Object = "a"
		assert.Equal(t, color.NRGBA{R: 180, G: 90, B: 255, A: 255}, c.segmentColor(seg))
	})
}

func TestColorPaletteLimit(t *testing.T) {
	g := NewRibbonGeometry()
	for i := 0; i < maxColors+10; i++ {
		g.addColor(color.NRGBA{R: uint8(i), G: uint8(i >> 8), A: 255})
	}
	assert.Len(t, g.ColorPalette, maxColors)
	assert.Equal(t, uint8(maxColors-1), g.addColor(color.NRGBA{B: 1}))
}

func TestMemoryUsageAndClear(t *testing.T) {
	g := NewBuilder().Build(parse(t, singleSegment), DefaultSimplifyOptions())
	assert.Greater(t, g.MemoryUsage(), 0)

	g.Clear()
	assert.Empty(t, g.Vertices)
	assert.Empty(t, g.NormalPalette)
	assert.Empty(t, g.ColorPalette)
	assert.Zero(t, g.ExtrusionTriangles)
	assert.Zero(t, g.MemoryUsage())
	assert.Equal(t, uint8(0), g.addColor(color.NRGBA{A: 255}), "palettes usable after Clear")
}

func TestWriteSTL(t *testing.T) {
	g := NewBuilder(WithTubeSides(4)).Build(parse(t, singleSegment), DefaultSimplifyOptions())
	path := filepath.Join(t.TempDir(), "out.stl")

	require.NoError(t, WriteSTL(path, g))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(84))

	// degenerate fan triangles are dropped
	assert.Len(t, g.Triangles(), 2+8+2)

	err = WriteSTL(filepath.Join(t.TempDir(), "empty.stl"), NewRibbonGeometry())
	assert.ErrorIs(t, err, ErrEmptyGeometry)
}
