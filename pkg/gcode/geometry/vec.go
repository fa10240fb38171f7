package geometry

import (
	"goki.dev/mat32/v2"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

// Vec3 is the single precision vector used for mesh generation
type Vec3 = mat32.Vec3

func vec3From(v gcode.Vec3) Vec3 {
	return mat32.V3(float32(v.X), float32(v.Y), float32(v.Z))
}
