package mesh

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// projectChunk is the number of vertices handed to one worker at a time
const projectChunk = 4096

// ProjectionStats counts how the vertices of a mesh were mapped
type ProjectionStats struct {
	Total      int               `json:"total"`
	Mapped     int               `json:"mapped"`
	Segments   map[SegmentID]int `json:"segments"`
	Degenerate int               `json:"degenerate"` // on a segment axis
	OutOfRange int               `json:"outOfRange"` // phi or z outside [0,1]
}

// MeshProjector classifies and projects mesh vertices into their segment
// frames. It is immutable after construction and safe for concurrent use.
type MeshProjector struct {
	thresholds  Thresholds
	frames      map[SegmentID]SegmentFrame
	fingerprint string
}

// NewMeshProjector builds the five segment frames from geometry. A
// degenerate frame is returned as *GeometryError.
func NewMeshProjector(geom Geometry) (*MeshProjector, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	p := &MeshProjector{
		thresholds:  geom.Thresholds,
		frames:      make(map[SegmentID]SegmentFrame, len(FrameSegments)),
		fingerprint: geom.Fingerprint(),
	}
	for _, seg := range FrameSegments {
		spec := geom.Frames[seg.String()]
		f, err := NewSegmentFrame(seg, spec.Start.Vec(), spec.End.Vec(), spec.Reference.Vec())
		if err != nil {
			return nil, err
		}
		p.frames[seg] = f
	}
	return p, nil
}

// Frame returns the frame used for seg
func (p *MeshProjector) Frame(seg SegmentID) (SegmentFrame, bool) {
	f, ok := p.frames[seg]
	return f, ok
}

// GeometryFingerprint identifies the calibration this projector was built from
func (p *MeshProjector) GeometryFingerprint() string {
	return p.fingerprint
}

// projectOne maps a single vertex. outcome is 0 for mapped/no-frame, 1 for
// on-axis and 2 for out of range.
func (p *MeshProjector) projectOne(v Vertex) (ProjectedPoint, int) {
	seg := p.thresholds.Classify(v)
	if !seg.HasFrame() {
		return Unmapped, 0
	}
	phi, z, ok := p.frames[seg].Project(v)
	if !ok {
		return Unmapped, 1
	}
	if !inUnitRange(phi) || !inUnitRange(z) {
		return Unmapped, 2
	}
	return ProjectedPoint{Segment: seg, Phi: phi, Z: z}, 0
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// ProjectVertex maps one vertex the same way Project does
func (p *MeshProjector) ProjectVertex(v Vertex) ProjectedPoint {
	pt, _ := p.projectOne(v)
	return pt
}

// Project builds the MappingTable for a mesh. Output order matches input
// order exactly. Unmappable vertices degrade to Unmapped and are only
// counted in the returned stats.
func (p *MeshProjector) Project(vertices []Vertex) (*MappingTable, ProjectionStats) {
	start := time.Now()
	points := make([]ProjectedPoint, len(vertices))
	var degenerate, outOfRange atomic.Int64

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(vertices); lo += projectChunk {
		hi := min(lo+projectChunk, len(vertices))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				pt, outcome := p.projectOne(vertices[i])
				points[i] = pt
				switch outcome {
				case 1:
					degenerate.Add(1)
				case 2:
					outOfRange.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := ProjectionStats{
		Total:      len(vertices),
		Segments:   make(map[SegmentID]int),
		Degenerate: int(degenerate.Load()),
		OutOfRange: int(outOfRange.Load()),
	}
	for _, pt := range points {
		stats.Segments[pt.Segment]++
		if pt.Mapped() {
			stats.Mapped++
		}
	}

	log.Printf("[PROJECT] %d vertices in %v: mapped=%d degenerate=%d outOfRange=%d",
		stats.Total, time.Since(start).Round(time.Millisecond), stats.Mapped, stats.Degenerate, stats.OutOfRange)

	return &MappingTable{
		Points:          points,
		MeshFingerprint: MeshFingerprint(vertices),
		GeomFingerprint: p.fingerprint,
		CreatedAt:       time.Now().Unix(),
	}, stats
}

// MeshFingerprint hashes the vertex coordinates in order
func MeshFingerprint(vertices []Vertex) string {
	h := sha256.New()
	var buf [24]byte
	for _, v := range vertices {
		binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(v.X))
		binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(v.Y))
		binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(v.Z))
		h.Write(buf[:])
	}
	fmt.Fprintf(h, "|%d", len(vertices))
	return hex.EncodeToString(h.Sum(nil))
}
