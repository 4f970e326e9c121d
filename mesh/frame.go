package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// ParallelTolerance is the smallest |sin| between axis and reference
	// accepted when building a frame.
	ParallelTolerance = 1e-6

	// AxisTolerance is the distance from the axis below which a point has no
	// defined angle.
	AxisTolerance = 1e-9
)

// SegmentFrame is a local cylinder coordinate system for one body segment.
// phi is measured around the axis from Reference; z runs from Start (0) to
// End (1).
type SegmentFrame struct {
	Segment   SegmentID
	Start     Vertex
	End       Vertex
	Reference Vertex

	axis   r3.Vec
	length float64
}

// NewSegmentFrame validates the axis and reference and returns an immutable
// frame. The reference is normalized.
func NewSegmentFrame(seg SegmentID, start, end, reference Vertex) (SegmentFrame, error) {
	d := r3.Sub(end, start)
	length := r3.Norm(d)
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return SegmentFrame{}, &GeometryError{Segment: seg, Reason: "axis start and end coincide"}
	}
	refLen := r3.Norm(reference)
	if refLen == 0 || math.IsNaN(refLen) || math.IsInf(refLen, 0) {
		return SegmentFrame{}, &GeometryError{Segment: seg, Reason: "reference direction is zero"}
	}
	axis := r3.Scale(1/length, d)
	ref := r3.Scale(1/refLen, reference)
	if r3.Norm(r3.Cross(axis, ref)) < ParallelTolerance {
		return SegmentFrame{}, &GeometryError{Segment: seg, Reason: "reference is parallel to the axis"}
	}
	return SegmentFrame{
		Segment:   seg,
		Start:     start,
		End:       end,
		Reference: ref,
		axis:      axis,
		length:    length,
	}, nil
}

// Project returns the normalized cylinder coordinates of p. ok is false when
// p lies on the axis, where the angle is undefined.
//
// The sign of the angle comes from the Y component of reference × radial.
// That is only valid because every calibrated frame keeps its reference, its
// axis and the global vertical in one plane.
func (f SegmentFrame) Project(p Vertex) (phi, z float64, ok bool) {
	rel := r3.Sub(p, f.Start)
	zRaw := r3.Dot(rel, f.axis)
	z = zRaw / f.length

	perp := r3.Sub(rel, r3.Scale(zRaw, f.axis))
	n := r3.Norm(perp)
	if n < AxisTolerance || math.IsNaN(n) {
		return 0, z, false
	}
	radial := r3.Scale(1/n, perp)

	cosPhi := math.Max(-1, math.Min(1, r3.Dot(f.Reference, radial)))
	angle := math.Acos(cosPhi)
	if r3.Cross(f.Reference, radial).Y < 0 {
		angle = 2*math.Pi - angle
	}
	return angle / (2 * math.Pi), z, true
}

// Axis returns the unit axis direction from Start to End
func (f SegmentFrame) Axis() Vertex {
	return f.axis
}

// Length returns the distance between Start and End
func (f SegmentFrame) Length() float64 {
	return f.length
}
