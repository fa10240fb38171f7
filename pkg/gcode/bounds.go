package gcode

import "math"

// AABB is an axis-aligned 3D bounding box
type AABB struct {
	Min Vec3
	Max Vec3
}

// NewAABB creates an empty bounding box. Min starts at +Inf and Max at
// -Inf so the first Expand sets both corners.
func NewAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether min exceeds max on any axis
func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Expand grows the box to include p
func (b *AABB) Expand(p Vec3) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Min.Z = math.Min(b.Min.Z, p.Z)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	b.Max.Z = math.Max(b.Max.Z, p.Z)
}

// ExpandBox grows the box to include another non-empty box
func (b *AABB) ExpandBox(other AABB) {
	if !other.IsEmpty() {
		b.Expand(other.Min)
		b.Expand(other.Max)
	}
}

// Inflate returns a copy grown by margin on every side
func (b AABB) Inflate(margin float64) AABB {
	if b.IsEmpty() {
		return b
	}
	m := Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Center returns the box center, the origin for an empty box
func (b AABB) Center() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return Vec3{
		(b.Min.X + b.Max.X) * 0.5,
		(b.Min.Y + b.Max.Y) * 0.5,
		(b.Min.Z + b.Max.Z) * 0.5,
	}
}

// Size returns the box extent along each axis, zero for an empty box
func (b AABB) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// MaxExtent returns the longest side, 0 for an empty box
func (b AABB) MaxExtent() float64 {
	if b.IsEmpty() {
		return 0
	}
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// Contains checks if p lies inside the box
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Corners returns the eight corners of the box
func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}
