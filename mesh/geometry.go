package mesh

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Point3 is a YAML/JSON friendly [x, y, z] triple
type Point3 [3]float64

// Vec converts the triple to a Vertex
func (p Point3) Vec() Vertex {
	return Vertex{X: p[0], Y: p[1], Z: p[2]}
}

// FrameSpec is the calibration data for one segment frame
type FrameSpec struct {
	Start     Point3 `yaml:"start" json:"start"`
	End       Point3 `yaml:"end" json:"end"`
	Reference Point3 `yaml:"reference" json:"reference"`
}

// Geometry holds every mesh-specific calibration constant: classifier
// thresholds and the five segment frames.
type Geometry struct {
	Thresholds Thresholds           `yaml:"thresholds" json:"thresholds"`
	Frames     map[string]FrameSpec `yaml:"frames" json:"frames"`
}

// armReference returns the in-plane normal of an arm axis, pointing away
// from the torso, as the reference mesh calibration defines it.
func armReference(start, end Point3, left bool) Point3 {
	slope := (end[1] - start[1]) / (end[0] - start[0])
	ref := Point3{1, -1 / slope, 0}
	if left {
		ref = Point3{-1, 1 / slope, 0}
	}
	n := math.Hypot(ref[0], ref[1])
	return Point3{ref[0] / n, ref[1] / n, 0}
}

// DefaultGeometry returns the calibration of the reference body mesh
func DefaultGeometry() Geometry {
	leftArmStart, leftArmEnd := Point3{30, 100, 0}, Point3{19, 148, 0}
	rightArmStart, rightArmEnd := Point3{-30, 100, 0}, Point3{-19, 148, 0}

	return Geometry{
		Thresholds: DefaultThresholds(),
		Frames: map[string]FrameSpec{
			SegmentLeftArm.String(): {
				Start:     leftArmStart,
				End:       leftArmEnd,
				Reference: armReference(leftArmStart, leftArmEnd, true),
			},
			SegmentRightArm.String(): {
				Start:     rightArmStart,
				End:       rightArmEnd,
				Reference: armReference(rightArmStart, rightArmEnd, false),
			},
			SegmentLeftLeg.String(): {
				Start:     Point3{10, 15, 0},
				End:       Point3{10, 110, 0},
				Reference: Point3{-1, 0, 0},
			},
			SegmentRightLeg.String(): {
				Start:     Point3{-10, 15, 0},
				End:       Point3{-10, 110, 0},
				Reference: Point3{1, 0, 0},
			},
			SegmentBody.String(): {
				Start:     Point3{0, 110, 0},
				End:       Point3{0, 156, 0},
				Reference: Point3{1, 0, 0},
			},
		},
	}
}

// WithDefaults fills in any frame the caller left out with the reference
// calibration. A zero Thresholds value (no thresholds block) is replaced by
// the defaults; partial blocks are merged key by key when decoded.
func (g Geometry) WithDefaults() Geometry {
	def := DefaultGeometry()
	out := Geometry{Thresholds: g.Thresholds, Frames: make(map[string]FrameSpec, len(def.Frames))}
	if g.Thresholds == (Thresholds{}) {
		out.Thresholds = def.Thresholds
	}
	for k, v := range def.Frames {
		out.Frames[k] = v
	}
	for k, v := range g.Frames {
		out.Frames[k] = v
	}
	return out
}

// Validate checks thresholds and frame keys. Degenerate frames are reported
// later by NewSegmentFrame as *GeometryError.
func (g Geometry) Validate() error {
	if err := g.Thresholds.Validate(); err != nil {
		return err
	}
	for key, spec := range g.Frames {
		seg, ok := ParseSegmentID(key)
		if !ok || !seg.HasFrame() {
			return configErrorf("geometry.frames."+key, "unknown segment")
		}
		for _, p := range []Point3{spec.Start, spec.End, spec.Reference} {
			for _, c := range p {
				if math.IsNaN(c) || math.IsInf(c, 0) {
					return configErrorf("geometry.frames."+key, "non-finite coordinate")
				}
			}
		}
	}
	for _, seg := range FrameSegments {
		if _, ok := g.Frames[seg.String()]; !ok {
			return configErrorf("geometry.frames", "missing frame for %s", seg)
		}
	}
	return nil
}

// Fingerprint returns a stable hash of the geometry used to key caches
func (g Geometry) Fingerprint() string {
	keys := make([]string, 0, len(g.Frames))
	for k := range g.Frames {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	th, _ := json.Marshal(g.Thresholds)
	h.Write(th)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s:%v", k, g.Frames[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
