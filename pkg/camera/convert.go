package camera

import (
	"goki.dev/mat32/v2"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

func toMat32(v gcode.Vec3) mat32.Vec3 {
	return mat32.V3(float32(v.X), float32(v.Y), float32(v.Z))
}

func fromMat32(v mat32.Vec3) gcode.Vec3 {
	return gcode.Vec3{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// toClip multiplies p (w = 1) by the column-major matrix m and keeps w
func toClip(m *mat32.Mat4, p mat32.Vec3) mat32.Vec4 {
	return mat32.NewVec4(
		m[0]*p.X+m[4]*p.Y+m[8]*p.Z+m[12],
		m[1]*p.X+m[5]*p.Y+m[9]*p.Z+m[13],
		m[2]*p.X+m[6]*p.Y+m[10]*p.Z+m[14],
		m[3]*p.X+m[7]*p.Y+m[11]*p.Z+m[15],
	)
}

// unproject maps an NDC point back to world space
func unproject(inv *mat32.Mat4, ndc mat32.Vec3) gcode.Vec3 {
	c := toClip(inv, ndc)
	if c.W == 0 {
		return fromMat32(mat32.V3(c.X, c.Y, c.Z))
	}
	return fromMat32(mat32.V3(c.X/c.W, c.Y/c.W, c.Z/c.W))
}
