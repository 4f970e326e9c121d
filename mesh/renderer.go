package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	backgroundColor = color.RGBA{255, 255, 255, 255}
	textColor       = color.RGBA{0, 0, 0, 255}
)

// GridCellSize is the default on-screen size of one sensor cell in pixels
const GridCellSize = 8

// RenderGrid draws a pressure grid as a heat map, one cellSize×cellSize block
// per sensor, with a caption line above it. Readings are coloured as the
// scalars they would produce (reading + Bias).
func RenderGrid(g *PressureGrid, cellSize int, caption string) *image.RGBA {
	if cellSize < 1 {
		cellSize = GridCellSize
	}
	cmap := DefaultColormap()

	cells := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			cells.SetNRGBA(c, r, cmap.Color(g.At(r, c)+Bias))
		}
	}

	const header = 18
	width := max(g.Cols*cellSize, len(caption)*7+8)
	img := image.NewRGBA(image.Rect(0, 0, width, g.Rows*cellSize+header))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	dst := image.Rect(0, header, g.Cols*cellSize, header+g.Rows*cellSize)
	xdraw.NearestNeighbor.Scale(img, dst, cells, cells.Bounds(), xdraw.Over, nil)

	drawText(img, 4, 13, caption, textColor)
	return img
}

// PreviewRenderer draws a front orthographic view of the body mesh with each
// vertex painted by its scalar. X maps to image right, Y to image up; vertices
// nearer the viewer (larger Z) are painted last.
type PreviewRenderer struct {
	Vertices  []Vertex
	Scalars   []float64
	Colormap  *Colormap
	Scale     float64 // Pixels per mesh unit
	Padding   int     // Padding around the body in pixels
	DotRadius int
	Legend    bool
}

// NewPreviewRenderer creates a preview renderer with default settings
func NewPreviewRenderer(vertices []Vertex, scalars []float64) *PreviewRenderer {
	return &PreviewRenderer{
		Vertices:  vertices,
		Scalars:   scalars,
		Colormap:  DefaultColormap(),
		Scale:     4.0,
		Padding:   20,
		DotRadius: 1,
		Legend:    true,
	}
}

// Bounds returns the front-view extent of the mesh in mesh units
func (r *PreviewRenderer) Bounds() orb.Bound {
	return frontBounds(r.Vertices)
}

// frontBounds computes the XY bounding box of the vertices
func frontBounds(vertices []Vertex) orb.Bound {
	if len(vertices) == 0 {
		return orb.Bound{}
	}
	b := orb.Point{vertices[0].X, vertices[0].Y}.Bound()
	for _, v := range vertices[1:] {
		b = b.Extend(orb.Point{v.X, v.Y})
	}
	return b
}

// paintOrder returns vertex indices sorted back to front
func paintOrder(vertices []Vertex) []int {
	order := make([]int, len(vertices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return vertices[order[a]].Z < vertices[order[b]].Z
	})
	return order
}

// Render draws the preview image
func (r *PreviewRenderer) Render() *image.RGBA {
	bound := r.Bounds()
	legendWidth := 0
	if r.Legend {
		legendWidth = 60
	}

	width := int(math.Ceil((bound.Right()-bound.Left())*r.Scale)) + 2*r.Padding + legendWidth
	height := int(math.Ceil((bound.Top()-bound.Bottom())*r.Scale)) + 2*r.Padding
	img := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	toImage := func(v Vertex) (int, int) {
		x := (v.X-bound.Left())*r.Scale + float64(r.Padding)
		y := (bound.Top()-v.Y)*r.Scale + float64(r.Padding)
		return int(math.Round(x)), int(math.Round(y))
	}

	for _, i := range paintOrder(r.Vertices) {
		var s float64
		if i < len(r.Scalars) {
			s = r.Scalars[i]
		}
		c := r.Colormap.Color(s)
		x, y := toImage(r.Vertices[i])
		drawSquare(img, x, y, 2*r.DotRadius+1, color.RGBA{c.R, c.G, c.B, 255})
	}

	if r.Legend {
		r.drawLegend(img, width-legendWidth+10, r.Padding, height-2*r.Padding)
	}
	return img
}

// drawLegend draws a vertical colour bar with the range labelled
func (r *PreviewRenderer) drawLegend(img *image.RGBA, x, y, h int) {
	if h <= 0 {
		return
	}
	n := r.Colormap.Len()
	for dy := 0; dy < h; dy++ {
		idx := n - 1 - dy*(n-1)/max(h-1, 1)
		c := r.Colormap.At(idx)
		for dx := 0; dx < 12; dx++ {
			img.Set(x+dx, y+dy, c)
		}
	}
	drawText(img, x+16, y+10, fmt.Sprintf("%.0f", r.Colormap.Max), textColor)
	drawText(img, x+16, y+h, fmt.Sprintf("%.0f", r.Colormap.Min), textColor)
}

// WritePNG encodes the preview as PNG
func (r *PreviewRenderer) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG renders and saves the preview to a PNG file
func (r *PreviewRenderer) SavePNG(path string) error {
	return SavePNG(r.Render(), path)
}

// SavePNG writes an image to a PNG file
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	b := img.Bounds()
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
