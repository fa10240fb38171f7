package geometry

import (
	"github.com/chewxy/math32"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

const (
	// quantRange is the usable int16 range, leaving 10% headroom
	quantRange = 32767 * 0.9
	// degenerateScale is used when the bounds have no extent
	degenerateScale = 1000
)

// Quantization maps millimeter coordinates to int16 units relative to the
// minimum corner of a bounding box
type Quantization struct {
	Min   Vec3
	Max   Vec3
	Scale float32 // units per millimeter
}

// NewQuantization derives the scale from the longest axis of b
func NewQuantization(b gcode.AABB) Quantization {
	q := Quantization{Min: vec3From(b.Min), Max: vec3From(b.Max)}
	if b.IsEmpty() {
		q.Min, q.Max = Vec3{}, Vec3{}
	}

	ext := q.Max.Sub(q.Min)
	maxExtent := max(ext.X, ext.Y, ext.Z)
	if maxExtent > 0 {
		q.Scale = quantRange / maxExtent
	} else {
		q.Scale = degenerateScale
	}
	return q
}

// Resolution returns the size of one quantization step in millimeters
func (q Quantization) Resolution() float32 {
	return 1 / q.Scale
}

// Quantize converts a single coordinate, clamping to the int16 range
func (q Quantization) Quantize(v, axisMin float32) int16 {
	n := (v - axisMin) * q.Scale
	n = max(-32768, min(32767, n))
	return int16(math32.Round(n))
}

// Dequantize converts a single coordinate back to millimeters
func (q Quantization) Dequantize(v int16, axisMin float32) float32 {
	return float32(v)/q.Scale + axisMin
}

// QuantizeVec quantizes all three axes
func (q Quantization) QuantizeVec(v Vec3) [3]int16 {
	return [3]int16{
		q.Quantize(v.X, q.Min.X),
		q.Quantize(v.Y, q.Min.Y),
		q.Quantize(v.Z, q.Min.Z),
	}
}

// DequantizeVec converts a quantized position back to millimeters
func (q Quantization) DequantizeVec(p [3]int16) Vec3 {
	return Vec3{
		q.Dequantize(p[0], q.Min.X),
		q.Dequantize(p[1], q.Min.Y),
		q.Dequantize(p[2], q.Min.Z),
	}
}
