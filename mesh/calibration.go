package mesh

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
)

// DefaultCalibrationPath is where the garment layout document usually lives
const DefaultCalibrationPath = "config/config.json"

// exceptionBandKey is the per-mode key holding the Body dead zone
const exceptionBandKey = "exception_band"

// SegmentTable maps discretized z (horizontal) and phi (vertical) buckets to
// physical sensor indices.
type SegmentTable struct {
	Horizontal []int `json:"horizontal"` // z bucket -> IO (grid row)
	Vertical   []int `json:"vertical"`   // phi bucket -> ADC (grid column)
}

// ExceptionBand is a half-open rectangle [IO min, IO max) x [ADC min, ADC max)
// in sensor index space. Body readings inside it are forced to zero: the
// front torso has fewer physical stripes than the back.
type ExceptionBand struct {
	Bound orb.Bound
}

// NewExceptionBand builds a band from half-open index ranges
func NewExceptionBand(ioMin, ioMax, adcMin, adcMax int) ExceptionBand {
	return ExceptionBand{Bound: orb.Bound{
		Min: orb.Point{float64(ioMin), float64(adcMin)},
		Max: orb.Point{float64(ioMax), float64(adcMax)},
	}}
}

// DefaultExceptionBand returns the reference dead zone scaled for mode
func DefaultExceptionBand(mode Mode) ExceptionBand {
	s := mode.Scale()
	return NewExceptionBand(48*s, 52*s, 8*s, 16*s)
}

// Contains reports whether (io, adc) lies inside the band. The upper edges
// are exclusive.
func (b ExceptionBand) Contains(io, adc int) bool {
	x, y := float64(io), float64(adc)
	return x >= b.Bound.Left() && x < b.Bound.Right() &&
		y >= b.Bound.Bottom() && y < b.Bound.Top()
}

// bandJSON is the document form of an ExceptionBand
type bandJSON struct {
	IO  []int `json:"io"`
	ADC []int `json:"adc"`
}

// CalibrationTable is the sensor layout for one resolution mode. It is
// immutable after load and safe for concurrent reads.
type CalibrationTable struct {
	Mode     Mode
	Version  int
	Segments map[SegmentID]SegmentTable
	Band     ExceptionBand
}

// LoadCalibrationFile reads a calibration document and selects mode
func LoadCalibrationFile(path string, mode Mode) (*CalibrationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, configErrorf("calibration", "file not found: %s", path)
		}
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}
	return ParseCalibration(data, mode)
}

// ParseCalibration parses a calibration document keyed by mode, then by
// segment name. Every malformed or missing entry is a *ConfigError.
func ParseCalibration(data []byte, mode Mode) (*CalibrationTable, error) {
	if !mode.Valid() {
		return nil, configErrorf("mode", "unknown resolution mode %q", mode)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, configErrorf("calibration", "parsing JSON: %v", err)
	}

	table := &CalibrationTable{
		Mode:     mode,
		Segments: make(map[SegmentID]SegmentTable, len(FrameSegments)),
		Band:     DefaultExceptionBand(mode),
	}

	if raw, ok := doc["version"]; ok {
		if err := json.Unmarshal(raw, &table.Version); err != nil {
			return nil, configErrorf("calibration.version", "must be an integer")
		}
	}

	rawMode, ok := doc[string(mode)]
	if !ok {
		return nil, configErrorf("calibration."+string(mode), "mode section missing")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(rawMode, &entries); err != nil {
		return nil, configErrorf("calibration."+string(mode), "must be an object: %v", err)
	}

	for key, raw := range entries {
		field := fmt.Sprintf("calibration.%s.%s", mode, key)

		if key == exceptionBandKey {
			band, err := parseBand(field, raw)
			if err != nil {
				return nil, err
			}
			table.Band = band
			continue
		}

		seg, ok := ParseSegmentID(key)
		if !ok || !seg.HasFrame() {
			return nil, configErrorf(field, "unknown segment")
		}

		var st SegmentTable
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, configErrorf(field, "malformed entry: %v", err)
		}
		if err := validateSegmentTable(field, seg, st, mode); err != nil {
			return nil, err
		}
		table.Segments[seg] = st
	}

	for _, seg := range FrameSegments {
		if _, ok := table.Segments[seg]; !ok {
			return nil, configErrorf(fmt.Sprintf("calibration.%s.%s", mode, seg), "segment missing")
		}
	}

	return table, nil
}

func parseBand(field string, raw json.RawMessage) (ExceptionBand, error) {
	var b bandJSON
	if err := json.Unmarshal(raw, &b); err != nil {
		return ExceptionBand{}, configErrorf(field, "malformed band: %v", err)
	}
	if len(b.IO) != 2 || len(b.ADC) != 2 {
		return ExceptionBand{}, configErrorf(field, "io and adc must be [min, max) pairs")
	}
	if b.IO[0] >= b.IO[1] || b.ADC[0] >= b.ADC[1] {
		return ExceptionBand{}, configErrorf(field, "band minimum must be below maximum")
	}
	return NewExceptionBand(b.IO[0], b.IO[1], b.ADC[0], b.ADC[1]), nil
}

func validateSegmentTable(field string, seg SegmentID, st SegmentTable, mode Mode) error {
	rows, cols := GridShape(GridFor(seg), mode)

	if len(st.Horizontal) == 0 {
		return configErrorf(field+".horizontal", "must not be empty")
	}
	if len(st.Vertical) == 0 {
		return configErrorf(field+".vertical", "must not be empty")
	}
	for i, io := range st.Horizontal {
		if io < 0 || io >= rows {
			return configErrorf(fmt.Sprintf("%s.horizontal[%d]", field, i), "IO %d outside grid rows [0,%d)", io, rows)
		}
	}
	for i, adc := range st.Vertical {
		if adc < 0 || adc >= cols {
			return configErrorf(fmt.Sprintf("%s.vertical[%d]", field, i), "ADC %d outside grid columns [0,%d)", adc, cols)
		}
	}
	return nil
}

// GridFor returns the grid a segment always reads from: legs read the pants,
// torso and arms read the cloths.
func GridFor(seg SegmentID) GridName {
	if seg.IsLeg() {
		return GridPants
	}
	return GridCloths
}

// BucketIndex discretizes a ratio in [0,1] into n buckets. A ratio of
// exactly 1 falls into the last bucket; anything out of range is clamped.
func BucketIndex(ratio float64, n int) int {
	if n <= 0 {
		return 0
	}
	idx := int(math.Floor(ratio * float64(n)))
	if idx >= n {
		return n - 1
	}
	if idx < 0 || math.IsNaN(ratio) {
		return 0
	}
	return idx
}

// Lookup returns the physical sensor indices for a projected point. ok is
// false for segments without a calibration entry.
func (c *CalibrationTable) Lookup(seg SegmentID, phi, z float64) (io, adc int, ok bool) {
	st, ok := c.Segments[seg]
	if !ok {
		return 0, 0, false
	}
	io = st.Horizontal[BucketIndex(z, len(st.Horizontal))]
	adc = st.Vertical[BucketIndex(phi, len(st.Vertical))]
	return io, adc, true
}

// InExceptionBand reports whether a reading must be forced to zero. Only the
// Body segment has a dead zone.
func (c *CalibrationTable) InExceptionBand(seg SegmentID, io, adc int) bool {
	return seg == SegmentBody && c.Band.Contains(io, adc)
}
