package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyAABB(t *testing.T) {
	b := NewAABB()
	require.True(t, b.IsEmpty())
	assert.Equal(t, Vec3{}, b.Center())
	assert.Equal(t, Vec3{}, b.Size())
	assert.Zero(t, b.MaxExtent())
	assert.False(t, b.Contains(Vec3{}))
	assert.Equal(t, b, b.Inflate(5), "inflating an empty box keeps it empty")

	other := NewAABB()
	other.ExpandBox(b)
	assert.True(t, other.IsEmpty())
}

func TestAABBExpand(t *testing.T) {
	tests := []struct {
		name   string
		points []Vec3
		add    Vec3
	}{
		{"first point", nil, Vec3{1, 2, 3}},
		{"grows max", []Vec3{{0, 0, 0}, {1, 1, 1}}, Vec3{5, 0.5, 2}},
		{"grows min", []Vec3{{0, 0, 0}, {1, 1, 1}}, Vec3{-3, -4, 0.5}},
		{"negative space", []Vec3{{-10, -10, -10}}, Vec3{-20, 5, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewAABB()
			for _, p := range tt.points {
				b.Expand(p)
			}
			before := b

			b.Expand(tt.add)
			require.False(t, b.IsEmpty())
			assert.True(t, b.Contains(tt.add))
			for _, p := range tt.points {
				assert.True(t, b.Contains(p), "lost %v", p)
			}
			if !before.IsEmpty() {
				assert.LessOrEqual(t, b.Min.X, before.Min.X)
				assert.LessOrEqual(t, b.Min.Y, before.Min.Y)
				assert.LessOrEqual(t, b.Min.Z, before.Min.Z)
				assert.GreaterOrEqual(t, b.Max.X, before.Max.X)
				assert.GreaterOrEqual(t, b.Max.Y, before.Max.Y)
				assert.GreaterOrEqual(t, b.Max.Z, before.Max.Z)
			}
		})
	}
}

func TestAABBExpandInsideIsNoop(t *testing.T) {
	b := NewAABB()
	b.Expand(Vec3{0, 0, 0})
	b.Expand(Vec3{10, 20, 30})
	before := b

	for _, p := range []Vec3{{5, 5, 5}, {0, 0, 0}, {10, 20, 30}, {0, 20, 0}} {
		b.Expand(p)
		assert.Equal(t, before, b, "expanding by %v", p)
	}
}

func TestAABBMeasures(t *testing.T) {
	b := AABB{Min: Vec3{-1, 0, 2}, Max: Vec3{3, 10, 4}}
	assert.Equal(t, Vec3{1, 5, 3}, b.Center())
	assert.Equal(t, Vec3{4, 10, 2}, b.Size())
	assert.Equal(t, 10.0, b.MaxExtent())

	in := b.Inflate(1)
	assert.Equal(t, Vec3{-2, -1, 1}, in.Min)
	assert.Equal(t, Vec3{4, 11, 5}, in.Max)

	for _, c := range b.Corners() {
		assert.True(t, b.Contains(c))
	}
}
