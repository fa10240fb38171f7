package geometry

import (
	"image/color"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

// Vertex is a quantized mesh vertex with palette indices
type Vertex struct {
	Pos    [3]int16
	Normal uint16 // index into NormalPalette
	Color  uint8  // index into ColorPalette
}

// Strip is a four index triangle strip: triangles (0,1,2) and (1,3,2).
// Cap fans repeat the last index, which makes the second triangle
// degenerate.
type Strip [4]uint32

// Triangles returns the two triangles of the strip
func (s Strip) Triangles() [2][3]uint32 {
	return [2][3]uint32{
		{s[0], s[1], s[2]},
		{s[1], s[3], s[2]},
	}
}

// degenerate reports whether a triangle repeats an index
func degenerate(t [3]uint32) bool {
	return t[0] == t[1] || t[1] == t[2] || t[0] == t[2]
}

// StripRange is a contiguous run of strips belonging to one layer
type StripRange struct {
	First int
	Count int
}

// RibbonGeometry is the tube mesh built from a parsed file. It is owned
// by the renderer that built it and is never modified after the build.
type RibbonGeometry struct {
	Vertices      []Vertex
	Strips        []Strip
	NormalPalette []Vec3
	ColorPalette  []color.NRGBA
	Quant         Quantization

	// LayerBounds holds the bounds of the geometry built for each layer
	LayerBounds []gcode.AABB
	// StripLayer maps each strip to its source layer index
	StripLayer []uint16
	// LayerStrips maps each layer index to its strips
	LayerStrips []StripRange

	ExtrusionTriangles int
	TravelTriangles    int

	normalIndex map[normalKey]uint16
	colorIndex  map[color.NRGBA]uint8
}

// NewRibbonGeometry returns an empty geometry ready to receive vertices
func NewRibbonGeometry() *RibbonGeometry {
	return &RibbonGeometry{
		normalIndex: make(map[normalKey]uint16),
		colorIndex:  make(map[color.NRGBA]uint8),
	}
}

// Clear drops all mesh data and palettes
func (g *RibbonGeometry) Clear() {
	*g = *NewRibbonGeometry()
}

// IsEmpty reports whether the geometry has no strips
func (g *RibbonGeometry) IsEmpty() bool {
	return g == nil || len(g.Strips) == 0
}

// LayerCount returns the number of layers the geometry indexes
func (g *RibbonGeometry) LayerCount() int {
	if g == nil {
		return 0
	}
	return len(g.LayerStrips)
}

// Position returns the dequantized position of vertex i
func (g *RibbonGeometry) Position(i uint32) Vec3 {
	return g.Quant.DequantizeVec(g.Vertices[i].Pos)
}

// VertexNormal returns the palette normal of vertex i
func (g *RibbonGeometry) VertexNormal(i uint32) Vec3 {
	return g.NormalPalette[g.Vertices[i].Normal]
}

// VertexColor returns the palette color of vertex i
func (g *RibbonGeometry) VertexColor(i uint32) color.NRGBA {
	return g.ColorPalette[g.Vertices[i].Color]
}

// Sizes used for memory accounting
const (
	vertexBytes     = 10
	stripBytes      = 16
	normalBytes     = 12
	colorBytes      = 4
	layerBoundBytes = 48
	stripLayerBytes = 2
	rangeBytes      = 16
)

// MemoryUsage estimates the bytes held by the mesh and its indexes
func (g *RibbonGeometry) MemoryUsage() int {
	if g == nil {
		return 0
	}
	return len(g.Vertices)*vertexBytes +
		len(g.Strips)*stripBytes +
		len(g.NormalPalette)*normalBytes +
		len(g.ColorPalette)*colorBytes +
		len(g.LayerBounds)*layerBoundBytes +
		len(g.StripLayer)*stripLayerBytes +
		len(g.LayerStrips)*rangeBytes
}

// Triangle is a dequantized mesh triangle
type Triangle [3]Vec3

// Triangles expands every strip into non-degenerate triangles
func (g *RibbonGeometry) Triangles() []Triangle {
	if g.IsEmpty() {
		return nil
	}
	out := make([]Triangle, 0, len(g.Strips)*2)
	for _, s := range g.Strips {
		for _, t := range s.Triangles() {
			if degenerate(t) {
				continue
			}
			out = append(out, Triangle{g.Position(t[0]), g.Position(t[1]), g.Position(t[2])})
		}
	}
	return out
}
