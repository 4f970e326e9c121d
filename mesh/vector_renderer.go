package mesh

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws the front-view body preview as vector graphics.
// Canvas units are mesh units; canvas Y already points up.
type VectorRenderer struct {
	Vertices   []Vertex
	Scalars    []float64
	Colormap   *Colormap
	Padding    float64           // Padding in mesh units
	DotRadius  float64           // Vertex dot radius in mesh units
	Stride     int               // Draw every Stride-th vertex; 1 draws all
	Resolution canvas.Resolution // Resolution for PNG output
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(vertices []Vertex, scalars []float64) *VectorRenderer {
	return &VectorRenderer{
		Vertices:   vertices,
		Scalars:    scalars,
		Colormap:   DefaultColormap(),
		Padding:    5.0,
		DotRadius:  0.6,
		Stride:     1,
		Resolution: canvas.DPMM(4),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() (width, height float64) {
	b := frontBounds(r.Vertices)
	return (b.Right() - b.Left()) + 2*r.Padding, (b.Top() - b.Bottom()) + 2*r.Padding
}

// RenderToSVG writes the preview as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the preview as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws background and vertex dots (shared logic for SVG and PNG)
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	b := frontBounds(r.Vertices)
	stride := max(r.Stride, 1)

	// Group dots by colour so each colour is one path
	paths := make(map[int]*canvas.Path)
	var indices []int
	for n, i := range paintOrder(r.Vertices) {
		if n%stride != 0 {
			continue
		}
		var s float64
		if i < len(r.Scalars) {
			s = r.Scalars[i]
		}
		idx := r.Colormap.Index(s)
		p, ok := paths[idx]
		if !ok {
			p = &canvas.Path{}
			paths[idx] = p
			indices = append(indices, idx)
		}
		v := r.Vertices[i]
		dot := canvas.Circle(r.DotRadius).Translate(v.X-b.Left()+r.Padding, v.Y-b.Bottom()+r.Padding)
		p = p.Append(dot)
		paths[idx] = p
	}

	for _, idx := range indices {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: opaque(r.Colormap.At(idx))}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		renderer.RenderPath(paths[idx], style, canvas.Identity)
	}
}

// opaque converts an opaque NRGBA colour to the RGBA canvas expects
func opaque(c color.NRGBA) color.RGBA {
	return color.RGBA{c.R, c.G, c.B, 255}
}
