package layer

// LayerInfo summarizes one layer for status displays
type LayerInfo struct {
	Index          int
	Z              float64
	SegmentCount   int
	ExtrusionCount int
	TravelCount    int
	HasSupports    bool
}

// LayerInfo returns the summary of layer idx, or false when out of range
func (r *Renderer) LayerInfo(idx int) (LayerInfo, bool) {
	l := r.file.Layer(idx)
	if l == nil {
		return LayerInfo{}, false
	}
	info := LayerInfo{
		Index:          idx,
		Z:              l.Z,
		SegmentCount:   l.SegmentCount(),
		ExtrusionCount: l.ExtrusionCount,
		TravelCount:    l.TravelCount,
	}
	for i := range l.Segments {
		if l.Segments[i].Extrusion && isSupport(&l.Segments[i]) {
			info.HasSupports = true
			break
		}
	}
	return info, true
}

// HasSupportDetection reports whether the file names its objects, which
// is what support detection relies on
func (r *Renderer) HasSupportDetection() bool {
	return r.file != nil && len(r.file.Objects) > 0
}
