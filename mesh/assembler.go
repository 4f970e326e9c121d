package mesh

import (
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// assembleChunk is the number of mapping entries handed to one worker
const assembleChunk = 8192

// ScalarAssembler turns a pair of pressure grids into one scalar per mesh
// vertex. It never mutates its MappingTable or CalibrationTable, so one
// assembler can serve concurrent frames.
type ScalarAssembler struct {
	table       *MappingTable
	calibration *CalibrationTable
	condition   bool
}

// AssemblerOption configures a ScalarAssembler
type AssemblerOption func(*ScalarAssembler)

// WithConditioning enables the short-circuit/saturation/blur cleanup of raw
// grids before lookup.
func WithConditioning(enabled bool) AssemblerOption {
	return func(a *ScalarAssembler) {
		a.condition = enabled
	}
}

// NewScalarAssembler binds a projected mesh to a calibration table
func NewScalarAssembler(table *MappingTable, cal *CalibrationTable, opts ...AssemblerOption) (*ScalarAssembler, error) {
	if table == nil {
		return nil, fmt.Errorf("assembler: mapping table is nil")
	}
	if cal == nil {
		return nil, fmt.Errorf("assembler: calibration table is nil")
	}
	a := &ScalarAssembler{table: table, calibration: cal}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Mode returns the resolution mode of the calibration in use
func (a *ScalarAssembler) Mode() Mode {
	return a.calibration.Mode
}

// Prepare applies conditioning and, in upsample mode, the pyramid expansion,
// returning the grids the lookup will index into. Grids must arrive at the
// native garment shape; in upsample mode grids already at twice that shape
// are used as supplied.
func (a *ScalarAssembler) Prepare(cloths, pants *PressureGrid) (*PressureGrid, *PressureGrid, error) {
	c, err := a.prepareGrid(GridCloths, cloths)
	if err != nil {
		return nil, nil, fmt.Errorf("cloths: %w", err)
	}
	p, err := a.prepareGrid(GridPants, pants)
	if err != nil {
		return nil, nil, fmt.Errorf("pants: %w", err)
	}
	return c, p, nil
}

func (a *ScalarAssembler) prepareGrid(name GridName, g *PressureGrid) (*PressureGrid, error) {
	mode := a.calibration.Mode
	if mode == ModeUpsample {
		rows, cols := GridShape(name, ModeUpsample)
		if g.CheckShape(rows, cols) == nil {
			if a.condition {
				g = Condition(g)
			}
			return g, nil
		}
	}

	rows, cols := GridShape(name, ModeNormal)
	if err := g.CheckShape(rows, cols); err != nil {
		return nil, err
	}
	if a.condition {
		g = Condition(g)
	}
	if mode == ModeUpsample {
		g = PyrUp(g)
	}
	return g, nil
}

// Assemble returns one scalar per mesh vertex, in vertex order. Uncovered
// vertices and Body readings inside the exception band are 0; everything
// else is the sensor reading plus Bias.
func (a *ScalarAssembler) Assemble(cloths, pants *PressureGrid) ([]float64, error) {
	cloths, pants, err := a.Prepare(cloths, pants)
	if err != nil {
		return nil, err
	}

	points := a.table.Points
	out := make([]float64, len(points))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(points); lo += assembleChunk {
		hi := min(lo+assembleChunk, len(points))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				out[i] = a.scalar(points[i], cloths, pants)
			}
			return nil
		})
	}
	_ = g.Wait()

	return out, nil
}

// scalar resolves one mapping entry against the prepared grids
func (a *ScalarAssembler) scalar(pt ProjectedPoint, cloths, pants *PressureGrid) float64 {
	if !pt.Mapped() {
		return 0
	}
	io, adc, ok := a.calibration.Lookup(pt.Segment, pt.Phi, pt.Z)
	if !ok {
		return 0
	}
	if GridFor(pt.Segment) == GridPants {
		return pants.At(io, adc) + Bias
	}
	if a.calibration.InExceptionBand(pt.Segment, io, adc) {
		return 0
	}
	return cloths.At(io, adc) + Bias
}

// AssembleFrame assembles a frame and summarizes the result
func (a *ScalarAssembler) AssembleFrame(f *Frame) (*FrameResult, error) {
	scalars, err := a.Assemble(f.Cloths, f.Pants)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", f.ID, err)
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res := &FrameResult{
		FrameID:   f.ID,
		Timestamp: ts,
		Mode:      a.calibration.Mode,
		Scalars:   scalars,
		RangeMin:  DisplayMin,
		RangeMax:  DisplayMax,
	}
	var sum float64
	for _, s := range scalars {
		if s == 0 {
			continue
		}
		res.Covered++
		sum += s
		if s > res.MaxScalar {
			res.MaxScalar = s
		}
	}
	if res.Covered > 0 {
		res.MeanScalar = sum / float64(res.Covered)
	}
	return res, nil
}
