package geometry

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
)

const (
	minTolerance     = 0.01
	maxTolerance     = 5.0
	minSegmentLength = 0.0001

	// connectEpsilon2 is the squared gap below which two segments touch
	connectEpsilon2 = 0.0001
)

// SimplifyOptions controls segment merging and degenerate segment removal
type SimplifyOptions struct {
	ToleranceMM        float64 // max deviation of a merged point from the line
	MinSegmentLengthMM float64 // shorter segments are dropped
	EnableMerging      bool
}

// DefaultSimplifyOptions returns the options used by the viewer
func DefaultSimplifyOptions() SimplifyOptions {
	return SimplifyOptions{
		ToleranceMM:        0.15,
		MinSegmentLengthMM: minSegmentLength,
		EnableMerging:      true,
	}
}

// Validate clamps the options into their supported ranges
func (o *SimplifyOptions) Validate() {
	o.ToleranceMM = max(minTolerance, min(maxTolerance, o.ToleranceMM))
	o.MinSegmentLengthMM = max(minSegmentLength, o.MinSegmentLengthMM)
}

// DropDegenerate removes segments shorter than minLength
func DropDegenerate(segs []gcode.Segment, minLength float64) []gcode.Segment {
	out := make([]gcode.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Length() >= minLength {
			out = append(out, s)
		}
	}
	return out
}

// Simplify merges runs of connected, collinear segments of the same type
// and object into single segments. Extrusion deltas of merged segments are
// summed. The input is not modified.
func Simplify(segs []gcode.Segment, opts SimplifyOptions) []gcode.Segment {
	if len(segs) == 0 {
		return nil
	}
	if !opts.EnableMerging {
		return append([]gcode.Segment(nil), segs...)
	}

	out := make([]gcode.Segment, 0, len(segs))
	current := segs[0]
	for _, next := range segs[1:] {
		if canMerge(current, next, opts.ToleranceMM) {
			current.End = next.End
			current.EDelta += next.EDelta
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

func canMerge(a, b gcode.Segment, tolerance float64) bool {
	if a.Extrusion != b.Extrusion || a.Object != b.Object || a.Tool != b.Tool {
		return false
	}
	gap := a.End.Sub(b.Start)
	if gap.Dot(gap) >= connectEpsilon2 {
		return false
	}
	// A reversal is collinear but folds the path back onto itself
	if a.End.Sub(a.Start).Dot(b.End.Sub(b.Start)) < 0 {
		return false
	}
	return collinear(a.Start, a.End, b.End, tolerance)
}

// collinear reports whether p3 lies within tolerance of the line p1-p2
func collinear(p1, p2, p3 gcode.Vec3, tolerance float64) bool {
	v1 := p2.Sub(p1)
	v2 := p3.Sub(p1)
	len1 := v1.Dot(v1)
	if len1 < 1e-8 || v2.Dot(v2) < 1e-8 {
		return true
	}
	return v1.Cross(v2).Length()/math.Sqrt(len1) <= tolerance
}
