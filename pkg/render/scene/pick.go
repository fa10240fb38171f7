package scene

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/camera"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

const (
	// PickThreshold is the largest distance in pixels between a click and
	// a segment that still selects the segment's object
	PickThreshold = 15.0

	// objectPickMargin thickens flat object boxes so rays can hit them
	objectPickMargin = 0.5
)

// PickObject returns the object owning the visible segment closest to the
// screen point (x, y), if one lies within PickThreshold pixels. LOD is
// ignored so every segment can be picked.
func (r *LineRenderer) PickObject(cam *camera.Camera, x, y float64, o LineOptions) (string, bool) {
	f := r.file
	if f == nil {
		return "", false
	}
	first, last, ok := layerRange(o.FirstLayer, o.LastLayer, f.LayerCount())
	if !ok {
		return "", false
	}

	best := PickThreshold
	picked := ""
	for li := first; li <= last; li++ {
		segs := f.Layers[li].Segments
		for i := range segs {
			seg := &segs[i]
			if seg.Object == "" || !o.visible(seg) {
				continue
			}
			x0, y0, _, ok0 := cam.Project(seg.Start)
			x1, y1, _, ok1 := cam.Project(seg.End)
			if !ok0 || !ok1 {
				continue
			}
			if d := pointSegmentDistance(x, y, x0, y0, x1, y1); d < best {
				best = d
				picked = seg.Object
			}
		}
	}
	return picked, picked != ""
}

// pointSegmentDistance is the distance from (px, py) to the segment
// (x0, y0)-(x1, y1)
func pointSegmentDistance(px, py, x0, y0, x1, y1 float64) float64 {
	vx, vy := x1-x0, y1-y0
	wx, wy := px-x0, py-y0
	t := 0.0
	if l2 := vx*vx + vy*vy; l2 > 1e-4 {
		t = max(0, min(1, (wx*vx+wy*vy)/l2))
	}
	return math.Hypot(px-(x0+t*vx), py-(y0+t*vy))
}

// PickObjectRay casts the ray through pixel (x, y) against the bounds of
// every object and returns the nearest hit. Objects without toolpath
// bounds are not pickable.
func PickObjectRay(f *gcode.File, cam *camera.Camera, x, y float64) (string, bool) {
	if f == nil {
		return "", false
	}
	ray := cam.ScreenToWorldRay(x, y)

	best := math.Inf(1)
	picked := ""
	for _, name := range f.ObjectNames() {
		obj, ok := f.GetObject(name)
		if !ok || obj.Bounds.IsEmpty() {
			continue
		}
		if t, hit := ray.IntersectAABB(obj.Bounds.Inflate(objectPickMargin)); hit && t < best {
			best = t
			picked = name
		}
	}
	return picked, picked != ""
}
