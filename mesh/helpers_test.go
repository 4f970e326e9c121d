package mesh

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// stepIndices returns n indices 0, step, 2*step, ...
func stepIndices(n, step int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i * step
	}
	return out
}

// testCalibrationDoc builds a valid calibration document for both modes.
// Body/arms use 10 z-buckets and 8 phi-buckets into the cloths grid, legs
// use 9 z-buckets and 7 phi-buckets into the pants grid.
func testCalibrationDoc() map[string]any {
	mode := func(s int) map[string]any {
		cloths := map[string]any{
			"horizontal": stepIndices(10, 5*s),
			"vertical":   stepIndices(8, 5*s),
		}
		pants := map[string]any{
			"horizontal": stepIndices(9, 7*s),
			"vertical":   stepIndices(7, 4*s),
		}
		return map[string]any{
			"body":      cloths,
			"left_arm":  cloths,
			"right_arm": cloths,
			"left_leg":  pants,
			"right_leg": pants,
		}
	}
	return map[string]any{
		"version":  1,
		"normal":   mode(1),
		"upsample": mode(2),
	}
}

func testCalibrationJSON(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(testCalibrationDoc())
	require.NoError(t, err)
	return data
}

func testCalibration(t *testing.T, mode Mode) *CalibrationTable {
	t.Helper()
	cal, err := ParseCalibration(testCalibrationJSON(t), mode)
	require.NoError(t, err)
	return cal
}

func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// filledGrid returns a grid where every cell holds f(row, col)
func filledGrid(rows, cols int, f func(r, c int) float64) *PressureGrid {
	g := NewPressureGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.Set(r, c, f(r, c))
		}
	}
	return g
}

// encodedGrid gives every cell a distinct value row*100 + col
func encodedGrid(rows, cols int) *PressureGrid {
	return filledGrid(rows, cols, func(r, c int) float64 { return float64(r*100 + c) })
}

func testProjector(t *testing.T) *MeshProjector {
	t.Helper()
	p, err := NewMeshProjector(DefaultGeometry())
	require.NoError(t, err)
	return p
}
