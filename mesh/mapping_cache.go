package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// DefaultMappingCachePath is the default location of the projected mapping cache
const DefaultMappingCachePath = ".mapping-cache.json"

// LoadMappingTable reads a cached MappingTable. A missing file returns
// (nil, nil).
func LoadMappingTable(path string) (*MappingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mapping cache: %w", err)
	}

	var table MappingTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing mapping cache: %w", err)
	}
	return &table, nil
}

// SaveMappingTable writes the table as JSON, creating the directory if needed
func SaveMappingTable(path string, table *MappingTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mapping cache directory: %w", err)
	}

	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshaling mapping table: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing mapping cache: %w", err)
	}
	return nil
}

// Matches reports whether a cached table was built from these vertices with
// this projector's geometry.
func (t *MappingTable) Matches(vertices []Vertex, p *MeshProjector) bool {
	if t == nil || len(t.Points) != len(vertices) {
		return false
	}
	return t.GeomFingerprint == p.GeometryFingerprint() && t.MeshFingerprint == MeshFingerprint(vertices)
}

// SegmentStats recounts per-segment coverage of a table. Degenerate and
// out-of-range counts are not recoverable from the table and stay zero.
func (t *MappingTable) SegmentStats() ProjectionStats {
	stats := ProjectionStats{Total: t.Len(), Segments: make(map[SegmentID]int)}
	if t == nil {
		return stats
	}
	for _, pt := range t.Points {
		stats.Segments[pt.Segment]++
		if pt.Mapped() {
			stats.Mapped++
		}
	}
	return stats
}

// LoadOrProject returns the cached mapping for vertices when it is still
// valid, otherwise projects the mesh and refreshes the cache. An empty
// cachePath disables caching. Cache failures are logged, never fatal.
func (p *MeshProjector) LoadOrProject(cachePath string, vertices []Vertex) (*MappingTable, ProjectionStats, bool) {
	if cachePath != "" {
		cached, err := LoadMappingTable(cachePath)
		switch {
		case err != nil:
			log.Printf("[PROJECT] warning: ignoring mapping cache %s: %v", cachePath, err)
		case cached.Matches(vertices, p):
			log.Printf("[PROJECT] reusing mapping cache %s (%d vertices)", cachePath, cached.Len())
			return cached, cached.SegmentStats(), true
		case cached != nil:
			log.Printf("[PROJECT] mapping cache %s is stale, reprojecting", cachePath)
		}
	}

	table, stats := p.Project(vertices)

	if cachePath != "" {
		if err := SaveMappingTable(cachePath, table); err != nil {
			log.Printf("[PROJECT] warning: failed to save mapping cache: %v", err)
		}
	}
	return table, stats, false
}
