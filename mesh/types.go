package mesh

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vertex is a mesh vertex in the body mesh's native coordinate system
// (centimeter-like units, origin near the pelvis, +Y up).
type Vertex = r3.Vec

// SegmentID identifies the anatomical region a vertex belongs to
type SegmentID int

const (
	SegmentNone SegmentID = iota
	SegmentHead
	SegmentBody
	SegmentLeftArm
	SegmentRightArm
	SegmentLeftLeg
	SegmentRightLeg
)

// segmentNames are the keys used in calibration documents and JSON output
var segmentNames = map[SegmentID]string{
	SegmentNone:     "none",
	SegmentHead:     "head",
	SegmentBody:     "body",
	SegmentLeftArm:  "left_arm",
	SegmentRightArm: "right_arm",
	SegmentLeftLeg:  "left_leg",
	SegmentRightLeg: "right_leg",
}

// FrameSegments lists the segments that carry a local cylinder frame and a
// calibration entry, in a stable order.
var FrameSegments = []SegmentID{
	SegmentBody,
	SegmentLeftArm,
	SegmentRightArm,
	SegmentLeftLeg,
	SegmentRightLeg,
}

func (s SegmentID) String() string {
	if name, ok := segmentNames[s]; ok {
		return name
	}
	return fmt.Sprintf("segment(%d)", int(s))
}

// ParseSegmentID converts a calibration key such as "left_arm" to a SegmentID
func ParseSegmentID(name string) (SegmentID, bool) {
	for id, n := range segmentNames {
		if n == name {
			return id, true
		}
	}
	return SegmentNone, false
}

// MarshalText implements encoding.TextMarshaler
func (s SegmentID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SegmentID) UnmarshalText(text []byte) error {
	id, ok := ParseSegmentID(string(text))
	if !ok {
		return fmt.Errorf("unknown segment %q", string(text))
	}
	*s = id
	return nil
}

// IsLeg reports whether the segment is covered by the pants grid
func (s SegmentID) IsLeg() bool {
	return s == SegmentLeftLeg || s == SegmentRightLeg
}

// HasFrame reports whether the segment is projected through a SegmentFrame
func (s SegmentID) HasFrame() bool {
	switch s {
	case SegmentBody, SegmentLeftArm, SegmentRightArm, SegmentLeftLeg, SegmentRightLeg:
		return true
	}
	return false
}

// ProjectedPoint is a vertex expressed in its segment's cylinder frame.
// Phi and Z are ratios in [0,1]; unmapped vertices carry the sentinel.
type ProjectedPoint struct {
	Segment SegmentID `json:"segment"`
	Phi     float64   `json:"phi"`
	Z       float64   `json:"z"`
}

// Unmapped is the sentinel for vertices without sensor coverage
var Unmapped = ProjectedPoint{Segment: SegmentNone, Phi: -1, Z: -1}

// Mapped reports whether the point has sensor coverage
func (p ProjectedPoint) Mapped() bool {
	return p.Segment != SegmentNone && p.Segment != SegmentHead
}

// MappingTable holds one ProjectedPoint per mesh vertex, in vertex order.
// The ordinal position is the join key with the renderer and must never be
// re-sorted.
type MappingTable struct {
	Points          []ProjectedPoint `json:"points"`
	MeshFingerprint string           `json:"meshFingerprint"`
	GeomFingerprint string           `json:"geometryFingerprint"`
	CreatedAt       int64            `json:"createdAt"`
}

// Len returns the number of vertices covered by the table
func (t *MappingTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Mode selects the sensor resolution the engine runs at
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeUpsample Mode = "upsample"
)

// Valid reports whether m is a known resolution mode
func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeUpsample
}

// Scale returns the per-dimension grid scale factor for the mode
func (m Mode) Scale() int {
	if m == ModeUpsample {
		return 2
	}
	return 1
}

// GridName identifies one of the two garment pressure grids
type GridName string

const (
	GridCloths GridName = "cloths"
	GridPants  GridName = "pants"
)

// Native grid shapes as delivered by the garment hardware
const (
	ClothsRows = 56
	ClothsCols = 40
	PantsRows  = 64
	PantsCols  = 32
)

// GridShape returns the expected rows and columns of a grid in the given mode
func GridShape(name GridName, mode Mode) (rows, cols int) {
	s := mode.Scale()
	if name == GridPants {
		return PantsRows * s, PantsCols * s
	}
	return ClothsRows * s, ClothsCols * s
}

const (
	// Bias is added to every covered reading so that "covered, zero pressure"
	// renders differently from "not covered".
	Bias = 50.0

	// NominalMax is the largest conditioned pressure reading plus Bias
	NominalMax = 512.0 + Bias

	// DisplayMin and DisplayMax are the scalar range handed to renderers
	DisplayMin = 0.0
	DisplayMax = 600.0
)

// Frame is one pair of pressure grids captured at the same instant
type Frame struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Cloths    *PressureGrid `json:"cloths"`
	Pants     *PressureGrid `json:"pants"`
}

// FrameResult is an assembled frame ready for rendering
type FrameResult struct {
	FrameID    string    `json:"frameId"`
	Timestamp  time.Time `json:"timestamp"`
	Mode       Mode      `json:"mode"`
	Scalars    []float64 `json:"scalars"`
	RangeMin   float64   `json:"rangeMin"`
	RangeMax   float64   `json:"rangeMax"`
	Covered    int       `json:"covered"`
	MaxScalar  float64   `json:"maxScalar"`
	MeanScalar float64   `json:"meanScalar"`
}

// Config represents the full configuration file
type Config struct {
	Mesh           string             `yaml:"mesh" json:"mesh"`
	Calibration    string             `yaml:"calibration,omitempty" json:"calibration,omitempty"`
	CalibrationURL string             `yaml:"calibrationUrl,omitempty" json:"calibrationUrl,omitempty"` // Optional remote calibration document
	Mode           Mode               `yaml:"mode" json:"mode"`
	MappingCache   string             `yaml:"mappingCache,omitempty" json:"mappingCache,omitempty"`
	MQTT           MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	HTTP           HTTPConfig         `yaml:"http" json:"http"`
	Conditioning   ConditioningConfig `yaml:"conditioning" json:"conditioning"`
	Geometry       *Geometry          `yaml:"geometry,omitempty" json:"geometry,omitempty"` // Optional; reference body calibration if omitted
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	FrameTopic    string `yaml:"frameTopic" json:"frameTopic"`
}

// HTTPConfig holds the HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// ConditioningConfig toggles raw grid cleanup before lookup
type ConditioningConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// EffectiveGeometry returns the configured geometry with reference defaults
// filled in
func (c *Config) EffectiveGeometry() Geometry {
	if c.Geometry == nil {
		return DefaultGeometry()
	}
	return c.Geometry.WithDefaults()
}
