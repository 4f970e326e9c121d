package mesh

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSegmentFrame_Degenerate(t *testing.T) {
	tests := []struct {
		name            string
		start, end, ref Vertex
	}{
		{"zero length axis", Vertex{X: 1, Y: 2, Z: 3}, Vertex{X: 1, Y: 2, Z: 3}, Vertex{X: 1}},
		{"zero reference", Vertex{}, Vertex{Y: 1}, Vertex{}},
		{"reference parallel to axis", Vertex{}, Vertex{Y: 10}, Vertex{Y: -3}},
		{"non-finite end", Vertex{}, Vertex{Y: math.Inf(1)}, Vertex{X: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSegmentFrame(SegmentBody, tt.start, tt.end, tt.ref)
			require.Error(t, err)
			var gerr *GeometryError
			require.True(t, errors.As(err, &gerr), "want *GeometryError, got %T", err)
			assert.Equal(t, SegmentBody, gerr.Segment)
		})
	}
}

func TestNewSegmentFrame_NormalizesReference(t *testing.T) {
	f, err := NewSegmentFrame(SegmentBody, Vertex{}, Vertex{Y: 4}, Vertex{X: 5})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.Reference.X, 1e-12)
	assert.InDelta(t, 4.0, f.Length(), 1e-12)
	assert.InDelta(t, 1.0, f.Axis().Y, 1e-12)
}

func TestSegmentFrame_ProjectAlongReference(t *testing.T) {
	// start + t*(end-start) + k*reference projects to z = t, phi = 0
	for _, seg := range FrameSegments {
		spec := DefaultGeometry().Frames[seg.String()]
		f, err := NewSegmentFrame(seg, spec.Start.Vec(), spec.End.Vec(), spec.Reference.Vec())
		require.NoError(t, err)

		for _, tt := range []float64{0, 0.25, 0.5, 1} {
			for _, k := range []float64{0.5, 3, 12} {
				p := Vertex{
					X: spec.Start[0] + tt*(spec.End[0]-spec.Start[0]) + k*f.Reference.X,
					Y: spec.Start[1] + tt*(spec.End[1]-spec.Start[1]) + k*f.Reference.Y,
					Z: spec.Start[2] + tt*(spec.End[2]-spec.Start[2]) + k*f.Reference.Z,
				}
				phi, z, ok := f.Project(p)
				require.True(t, ok, "%s t=%v k=%v", seg, tt, k)
				assert.InDelta(t, tt, z, 1e-9, "%s z", seg)
				assert.InDelta(t, 0, phi, 1e-6, "%s phi", seg)
			}
		}
	}
}

func TestSegmentFrame_ProjectOnAxis(t *testing.T) {
	f, err := NewSegmentFrame(SegmentBody, Vertex{Y: 110}, Vertex{Y: 156}, Vertex{X: 1})
	require.NoError(t, err)

	for _, y := range []float64{110, 120, 156, 200} {
		phi, _, ok := f.Project(Vertex{Y: y})
		assert.False(t, ok, "on-axis point y=%v must be unmapped", y)
		assert.Zero(t, phi)
	}
}

func TestSegmentFrame_ProjectQuadrants(t *testing.T) {
	// Body axis is +Y, reference +X. The Y-component sign rule sends +Z to
	// the far half of the circle and -Z to the near half.
	f, err := NewSegmentFrame(SegmentBody, Vertex{Y: 110}, Vertex{Y: 156}, Vertex{X: 1})
	require.NoError(t, err)

	tests := []struct {
		name string
		p    Vertex
		phi  float64
	}{
		{"along reference", Vertex{X: 10, Y: 120}, 0},
		{"minus z", Vertex{Y: 120, Z: -10}, 0.25},
		{"opposite", Vertex{X: -10, Y: 120}, 0.5},
		{"plus z", Vertex{Y: 120, Z: 10}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phi, z, ok := f.Project(tt.p)
			require.True(t, ok)
			assert.InDelta(t, tt.phi, phi, 1e-9)
			assert.InDelta(t, 10.0/46.0, z, 1e-9)
		})
	}
}

func TestSegmentFrame_ProjectRangeOutsideAxis(t *testing.T) {
	f, err := NewSegmentFrame(SegmentLeftLeg, Vertex{X: 10, Y: 15}, Vertex{X: 10, Y: 110}, Vertex{X: -1})
	require.NoError(t, err)

	_, z, ok := f.Project(Vertex{X: 5, Y: 0})
	require.True(t, ok)
	assert.Less(t, z, 0.0)

	_, z, ok = f.Project(Vertex{X: 5, Y: 120})
	require.True(t, ok)
	assert.Greater(t, z, 1.0)
}
