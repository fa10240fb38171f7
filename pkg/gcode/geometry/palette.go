package geometry

import (
	"image/color"

	"github.com/chewxy/math32"
)

const (
	maxNormals = 65536
	maxColors  = 256

	// normalPrecision is the rounding step used to dedupe normals
	normalPrecision = 0.01
)

type normalKey [3]int32

// addNormal returns the palette index of n, appending it when unseen.
// Normals are rounded to normalPrecision before lookup. A full palette
// returns the last index.
func (g *RibbonGeometry) addNormal(n Vec3) uint16 {
	q := Vec3{
		math32.Round(n.X/normalPrecision) * normalPrecision,
		math32.Round(n.Y/normalPrecision) * normalPrecision,
		math32.Round(n.Z/normalPrecision) * normalPrecision,
	}
	if q.Length() > 1e-4 {
		q = q.Normal()
	} else {
		q = n
	}

	key := normalKey{
		int32(math32.Round(q.X / normalPrecision)),
		int32(math32.Round(q.Y / normalPrecision)),
		int32(math32.Round(q.Z / normalPrecision)),
	}
	if idx, ok := g.normalIndex[key]; ok {
		return idx
	}
	if len(g.NormalPalette) >= maxNormals {
		return maxNormals - 1
	}
	idx := uint16(len(g.NormalPalette))
	g.NormalPalette = append(g.NormalPalette, q)
	g.normalIndex[key] = idx
	return idx
}

// addColor returns the palette index of c, appending it when unseen. A
// full palette returns the last index.
func (g *RibbonGeometry) addColor(c color.NRGBA) uint8 {
	if idx, ok := g.colorIndex[c]; ok {
		return idx
	}
	if len(g.ColorPalette) >= maxColors {
		return maxColors - 1
	}
	idx := uint8(len(g.ColorPalette))
	g.ColorPalette = append(g.ColorPalette, c)
	g.colorIndex[c] = idx
	return idx
}
