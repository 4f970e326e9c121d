package mesh

import (
	"math"

	"gopkg.in/yaml.v3"
)

// Thresholds are the fixed cut planes that split the reference body mesh
// into segments. All values are in mesh units.
type Thresholds struct {
	HeadY     float64 `yaml:"headY" json:"headY"`         // above: head
	ArmXLow   float64 `yaml:"armXLow" json:"armXLow"`     // |x| beyond this below ArmSplitY: arm
	ArmXHigh  float64 `yaml:"armXHigh" json:"armXHigh"`   // |x| beyond this at or above ArmSplitY: arm
	ArmSplitY float64 `yaml:"armSplitY" json:"armSplitY"` // height where the arm x-cut changes
	BodyY     float64 `yaml:"bodyY" json:"bodyY"`         // above: torso, below: legs
	CollarY   float64 `yaml:"collarY" json:"collarY"`     // collar cutout lower bound
	CollarZ   float64 `yaml:"collarZ" json:"collarZ"`     // collar cutout front bound
}

// DefaultThresholds returns the reference mesh calibration
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeadY:     156,
		ArmXLow:   20,
		ArmXHigh:  16,
		ArmSplitY: 110,
		BodyY:     110,
		CollarY:   150,
		CollarZ:   -5,
	}
}

// UnmarshalYAML decodes onto the reference thresholds so that a partial
// thresholds block only overrides the keys it names
func (t *Thresholds) UnmarshalYAML(value *yaml.Node) error {
	type plain Thresholds
	th := plain(DefaultThresholds())
	if err := value.Decode(&th); err != nil {
		return err
	}
	*t = Thresholds(th)
	return nil
}

// Validate rejects non-finite thresholds
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"headY": t.HeadY, "armXLow": t.ArmXLow, "armXHigh": t.ArmXHigh,
		"armSplitY": t.ArmSplitY, "bodyY": t.BodyY, "collarY": t.CollarY, "collarZ": t.CollarZ,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return configErrorf("geometry.thresholds."+name, "must be finite")
		}
	}
	return nil
}

// Classify assigns a raw vertex to exactly one of head, body, arms, legs or
// none (collar cutout). It never fails.
func (t Thresholds) Classify(v Vertex) SegmentID {
	ax := math.Abs(v.X)

	switch {
	case v.Y > t.HeadY:
		return SegmentHead

	case (ax > t.ArmXLow && v.Y < t.ArmSplitY) || (ax > t.ArmXHigh && v.Y >= t.ArmSplitY):
		if v.X > 0 {
			return SegmentLeftArm
		}
		return SegmentRightArm

	case v.Y > t.BodyY:
		if v.Y > t.CollarY && v.Z > t.CollarZ {
			return SegmentNone
		}
		return SegmentBody
	}

	if v.X > 0 {
		return SegmentLeftLeg
	}
	return SegmentRightLeg
}
