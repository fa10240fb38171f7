package raster

import (
	"image/color"
	"math"
)

// DrawLine draws a 1px Bresenham line, overwriting pixels. Endpoints are
// inclusive and pixels outside the buffer are clipped.
func (b *Buffer) DrawLine(x0, y0, x1, y1 int, c color.NRGBA) {
	b.walkLine(x0, y0, x1, y1, func(x, y int) { b.Set(x, y, c) })
}

// BlendLine draws a 1px Bresenham line composited with the color's alpha
func (b *Buffer) BlendLine(x0, y0, x1, y1 int, c color.NRGBA) {
	b.walkLine(x0, y0, x1, y1, func(x, y int) { b.Blend(x, y, c) })
}

// DrawThickLine draws a line width pixels wide by stamping a square brush
// along the Bresenham path
func (b *Buffer) DrawThickLine(x0, y0, x1, y1, width int, c color.NRGBA) {
	if width <= 1 {
		b.BlendLine(x0, y0, x1, y1, c)
		return
	}
	lo := -(width - 1) / 2
	hi := lo + width - 1
	b.walkLineMargin(x0, y0, x1, y1, width, func(x, y int) {
		for dy := lo; dy <= hi; dy++ {
			for dx := lo; dx <= hi; dx++ {
				b.Blend(x+dx, y+dy, c)
			}
		}
	})
}

func (b *Buffer) walkLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	b.walkLineMargin(x0, y0, x1, y1, 0, plot)
}

// walkLineMargin clips the line to the buffer grown by margin pixels on
// each side before stepping, so the walk never leaves that window
func (b *Buffer) walkLineMargin(x0, y0, x1, y1, margin int, plot func(x, y int)) {
	var ok bool
	x0, y0, x1, y1, ok = clipLine(x0, y0, x1, y1,
		-margin, -margin, b.Width-1+margin, b.Height-1+margin)
	if !ok {
		return
	}

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// clipLine is Liang-Barsky against the inclusive window [minX, maxX] x
// [minY, maxY]. ok is false when no part of the segment is inside.
func clipLine(x0, y0, x1, y1, minX, minY, maxX, maxY int) (int, int, int, int, bool) {
	if maxX < minX || maxY < minY {
		return 0, 0, 0, 0, false
	}
	inside := func(x, y int) bool { return x >= minX && x <= maxX && y >= minY && y <= maxY }
	if inside(x0, y0) && inside(x1, y1) {
		return x0, y0, x1, y1, true
	}

	fx0, fy0 := float64(x0), float64(y0)
	dx, dy := float64(x1)-fx0, float64(y1)-fy0
	t0, t1 := 0.0, 1.0
	edge := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return false
			}
			t1 = min(t1, r)
		}
		return true
	}
	if !edge(-dx, fx0-float64(minX)) || !edge(dx, float64(maxX)-fx0) ||
		!edge(-dy, fy0-float64(minY)) || !edge(dy, float64(maxY)-fy0) {
		return 0, 0, 0, 0, false
	}

	snap := func(v float64, lo, hi int) int {
		return min(max(int(math.Round(v)), lo), hi)
	}
	cx0 := snap(fx0+t0*dx, minX, maxX)
	cy0 := snap(fy0+t0*dy, minY, maxY)
	cx1 := snap(fx0+t1*dx, minX, maxX)
	cy1 := snap(fy0+t1*dy, minY, maxY)
	return cx0, cy0, cx1, cy1, true
}

// MaxCoord bounds the coordinates returned by PixelCoord
const MaxCoord = 1 << 30

// PixelCoord truncates a projected coordinate to a pixel, clamped to
// [-MaxCoord, MaxCoord]. NaN maps to 0.
func PixelCoord(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(max(-MaxCoord, min(MaxCoord, v)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
