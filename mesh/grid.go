package mesh

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// PressureGrid is a dense row-major grid of sensor readings
type PressureGrid struct {
	Rows int
	Cols int
	Data []float64
}

// NewPressureGrid returns a zeroed grid
func NewPressureGrid(rows, cols int) *PressureGrid {
	return &PressureGrid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// GridFromRows copies a [][]float64 into a grid. All rows must have the same
// length.
func GridFromRows(rows [][]float64) (*PressureGrid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("grid has no rows")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("grid has no columns")
	}
	g := NewPressureGrid(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", r, len(row), cols)
		}
		copy(g.Data[r*cols:], row)
	}
	return g, nil
}

// At returns the reading at (row, col)
func (g *PressureGrid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Set stores a reading at (row, col)
func (g *PressureGrid) Set(row, col int, v float64) {
	g.Data[row*g.Cols+col] = v
}

// Clone returns a deep copy
func (g *PressureGrid) Clone() *PressureGrid {
	c := &PressureGrid{Rows: g.Rows, Cols: g.Cols, Data: make([]float64, len(g.Data))}
	copy(c.Data, g.Data)
	return c
}

// RowSlices returns the grid as nested slices
func (g *PressureGrid) RowSlices() [][]float64 {
	out := make([][]float64, g.Rows)
	for r := range out {
		out[r] = append([]float64(nil), g.Data[r*g.Cols:(r+1)*g.Cols]...)
	}
	return out
}

// CheckShape returns an error unless the grid is rows x cols
func (g *PressureGrid) CheckShape(rows, cols int) error {
	if g == nil {
		return fmt.Errorf("grid is nil")
	}
	if g.Rows != rows || g.Cols != cols || len(g.Data) != rows*cols {
		return fmt.Errorf("grid is %dx%d, want %dx%d", g.Rows, g.Cols, rows, cols)
	}
	return nil
}

// MarshalJSON encodes the grid as nested arrays
func (g *PressureGrid) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.RowSlices())
}

// UnmarshalJSON decodes nested arrays
func (g *PressureGrid) UnmarshalJSON(data []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	parsed, err := GridFromRows(rows)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}

// GridStats summarizes a grid
type GridStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Stats returns min, max and mean of the readings
func (g *PressureGrid) Stats() GridStats {
	if len(g.Data) == 0 {
		return GridStats{}
	}
	return GridStats{
		Min:  floats.Min(g.Data),
		Max:  floats.Max(g.Data),
		Mean: floats.Sum(g.Data) / float64(len(g.Data)),
	}
}

// reflect101 maps an out-of-range index back into [0, n) by mirroring
// around the edge pixels without repeating them.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// pyrKernel is the 5-tap binomial kernel of a Gaussian image pyramid
var pyrKernel = [5]float64{1, 4, 6, 4, 1}

// PyrUp doubles both grid dimensions the way an image-pyramid expansion
// does: zero-interleave, then smooth with a 5x5 binomial kernel scaled by 4.
// Borders are reflected (reflect-101).
func PyrUp(src *PressureGrid) *PressureGrid {
	rows, cols := src.Rows*2, src.Cols*2

	up := NewPressureGrid(rows, cols)
	for r := 0; r < src.Rows; r++ {
		for c := 0; c < src.Cols; c++ {
			up.Set(2*r, 2*c, src.At(r, c))
		}
	}

	// Separable pass: horizontal then vertical, each contributing a factor 2
	// so the overall gain is 4 over the zero-interleaved grid.
	tmp := NewPressureGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var acc float64
			for k, w := range pyrKernel {
				acc += w * up.At(r, reflect101(c+k-2, cols))
			}
			tmp.Set(r, c, acc*2/16)
		}
	}

	dst := NewPressureGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var acc float64
			for k, w := range pyrKernel {
				acc += w * tmp.At(reflect101(r+k-2, rows), c)
			}
			dst.Set(r, c, acc*2/16)
		}
	}
	return dst
}

// Conditioning thresholds used by the garment acquisition pipeline
const (
	// ShortCircuitLevel readings above this come from shorted stripes and are zeroed
	ShortCircuitLevel = 1024.0
	// SaturationLevel caps valid readings
	SaturationLevel = 512.0
)

// gaussian3 is the 3-tap kernel a 3x3 Gaussian blur uses when sigma is
// derived from the kernel size.
var gaussian3 = [3]float64{0.25, 0.5, 0.25}

// Condition cleans a raw grid: short-circuit readings are zeroed, the rest
// are capped at SaturationLevel, then a 3x3 Gaussian blur fills isolated
// zeros left by broken stripes. The input is not modified.
func Condition(src *PressureGrid) *PressureGrid {
	clean := src.Clone()
	for i, v := range clean.Data {
		switch {
		case v > ShortCircuitLevel:
			clean.Data[i] = 0
		case v > SaturationLevel:
			clean.Data[i] = SaturationLevel
		}
	}

	tmp := NewPressureGrid(clean.Rows, clean.Cols)
	for r := 0; r < clean.Rows; r++ {
		for c := 0; c < clean.Cols; c++ {
			var acc float64
			for k, w := range gaussian3 {
				acc += w * clean.At(r, reflect101(c+k-1, clean.Cols))
			}
			tmp.Set(r, c, acc)
		}
	}

	dst := NewPressureGrid(clean.Rows, clean.Cols)
	for r := 0; r < clean.Rows; r++ {
		for c := 0; c < clean.Cols; c++ {
			var acc float64
			for k, w := range gaussian3 {
				acc += w * tmp.At(reflect101(r+k-1, clean.Rows), c)
			}
			dst.Set(r, c, acc)
		}
	}
	return dst
}
