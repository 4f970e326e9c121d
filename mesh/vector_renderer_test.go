package mesh

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
)

func vectorTestRenderer() *VectorRenderer {
	vertices := []Vertex{{X: 0, Y: 0}, {X: 10, Y: 20}, {X: 5, Y: 10, Z: 2}}
	return NewVectorRenderer(vertices, []float64{0, Bias, DisplayMax})
}

func TestNewVectorRenderer_Defaults(t *testing.T) {
	r := vectorTestRenderer()
	if r.Padding != 5 || r.Stride != 1 || r.Colormap == nil {
		t.Errorf("unexpected defaults: %+v", r)
	}
	w, h := r.size()
	if w != 20 || h != 30 {
		t.Errorf("size() = %vx%v, want 20x30", w, h)
	}
}

func TestVectorRenderer_RenderToSVG(t *testing.T) {
	var buf bytes.Buffer
	if err := vectorTestRenderer().RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") || !strings.Contains(out, "</svg>") {
		t.Fatalf("output is not an SVG document:\n%s", out)
	}
	if !strings.Contains(out, "<path") {
		t.Error("SVG should contain paths for the vertex dots")
	}
}

func TestVectorRenderer_RenderToPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := vectorTestRenderer().RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	// 20x30 mesh units at 4 dots per unit
	if dx := img.Bounds().Dx(); dx < 79 || dx > 81 {
		t.Errorf("width = %d, want ~80", dx)
	}
	if dy := img.Bounds().Dy(); dy < 119 || dy > 121 {
		t.Errorf("height = %d, want ~120", dy)
	}
}

func TestVectorRenderer_Stride(t *testing.T) {
	r := vectorTestRenderer()
	r.Stride = 0 // treated as 1

	var all bytes.Buffer
	if err := r.RenderToSVG(&all); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}

	r.Stride = 3
	var sparse bytes.Buffer
	if err := r.RenderToSVG(&sparse); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	if sparse.Len() >= all.Len() {
		t.Errorf("stride 3 output (%d bytes) should be smaller than full output (%d bytes)", sparse.Len(), all.Len())
	}
}

func TestOpaque(t *testing.T) {
	c := opaque(NoDataColor)
	if c.R != 128 || c.A != 255 {
		t.Errorf("opaque(NoDataColor) = %v", c)
	}
}
