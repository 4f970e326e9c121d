package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// VertexSource supplies the ordered vertex list of the body mesh
type VertexSource interface {
	Vertices() ([]Vertex, error)
}

// OBJFile reads vertices from a Wavefront OBJ file on disk
type OBJFile string

// Vertices implements VertexSource
func (f OBJFile) Vertices() ([]Vertex, error) {
	return ParseOBJFile(string(f))
}

// ParseOBJFile reads the vertex positions of an OBJ mesh
func ParseOBJFile(path string) ([]Vertex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mesh: %w", err)
	}
	defer file.Close()
	return ParseOBJ(file)
}

// ParseOBJ extracts "v x y z" records in file order. Every other record
// (normals, texture coordinates, faces, groups) is skipped; optional vertex
// weights and colors after z are ignored.
func ParseOBJ(r io.Reader) ([]Vertex, error) {
	var vertices []Vertex
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "v" {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: vertex needs 3 coordinates, got %d", line, len(fields)-1)
		}
		var xyz [3]float64
		for i := range xyz {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parsing coordinate %q: %w", line, fields[i+1], err)
			}
			xyz[i] = v
		}
		vertices = append(vertices, Vertex{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mesh: %w", err)
	}
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh has no vertices")
	}
	return vertices, nil
}
