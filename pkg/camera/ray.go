package camera

import (
	"goki.dev/mat32/v2"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

// Ray is a half line with a unit direction
type Ray struct {
	Origin gcode.Vec3
	Dir    gcode.Vec3
}

// At returns the point at parameter t
func (r Ray) At(t float64) gcode.Vec3 {
	return r.Origin.Add(r.Dir.Scale(t))
}

// IntersectAABB returns the entry distance of the ray into b. A ray
// starting inside the box reports t = 0.
func (r Ray) IntersectAABB(b gcode.AABB) (float64, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	if b.Contains(r.Origin) {
		return 0, true
	}
	ray := mat32.Ray{Origin: toMat32(r.Origin), Dir: toMat32(r.Dir)}
	hit, ok := ray.IntersectBox(mat32.Box3{Min: toMat32(b.Min), Max: toMat32(b.Max)})
	if !ok {
		return 0, false
	}
	return float64(hit.DistTo(ray.Origin)), true
}
