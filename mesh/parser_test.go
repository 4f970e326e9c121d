package mesh

import (
	"strings"
	"testing"
)

const sampleOBJ = `# body mesh
mtllib body.mtl
o Body
v 0.0 170.0 0.0
v 5.0 130.0 10.0 1.0
vn 0 1 0
vt 0.5 0.5
v -14 60 0 0.2 0.3 0.4
g torso
f 1 2 3
`

func TestParseOBJ(t *testing.T) {
	vertices, err := ParseOBJ(strings.NewReader(sampleOBJ))
	if err != nil {
		t.Fatalf("ParseOBJ: %v", err)
	}

	want := []Vertex{
		{X: 0, Y: 170, Z: 0},
		{X: 5, Y: 130, Z: 10},
		{X: -14, Y: 60, Z: 0},
	}
	if len(vertices) != len(want) {
		t.Fatalf("got %d vertices, want %d", len(vertices), len(want))
	}
	for i := range want {
		if vertices[i] != want[i] {
			t.Errorf("vertex %d = %v, want %v", i, vertices[i], want[i])
		}
	}
}

func TestParseOBJ_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no vertices", "# empty\nf 1 2 3\n", "no vertices"},
		{"short vertex", "v 1 2\n", "line 1: vertex needs 3 coordinates"},
		{"bad coordinate", "v 1 2 3\nv 1 x 3\n", "line 2: parsing coordinate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOBJ(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestOBJFile_Vertices(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "body.obj", []byte(sampleOBJ))

	var src VertexSource = OBJFile(path)
	vertices, err := src.Vertices()
	if err != nil {
		t.Fatalf("Vertices: %v", err)
	}
	if len(vertices) != 3 {
		t.Errorf("got %d vertices, want 3", len(vertices))
	}

	if _, err := OBJFile(path + ".missing").Vertices(); err == nil {
		t.Error("expected error for missing mesh file")
	}
}
