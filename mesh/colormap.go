package mesh

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Colormap maps scalars onto a fixed-size colour table spanning [Min, Max].
// Entry 0 is reserved for "no data" and painted grey.
type Colormap struct {
	Min   float64
	Max   float64
	table []color.NRGBA
}

// NoDataColor marks vertices without sensor coverage
var NoDataColor = color.NRGBA{128, 128, 128, 255}

// NewColormap builds an n-entry table whose hue runs linearly from hueStart
// to hueEnd (fractions of the colour wheel) at full saturation and value.
func NewColormap(n int, hueStart, hueEnd, lo, hi float64) *Colormap {
	if n < 2 {
		n = 2
	}
	table := make([]color.NRGBA, n)
	for i := range table {
		t := float64(i) / float64(n-1)
		table[i] = hsvToNRGBA(hueStart+(hueEnd-hueStart)*t, 1, 1)
	}
	table[0] = NoDataColor
	return &Colormap{Min: lo, Max: hi, table: table}
}

// DefaultColormap is the blue-to-red pressure scale over the display range
func DefaultColormap() *Colormap {
	return NewColormap(256, 0.67, 0, DisplayMin, DisplayMax)
}

// Len returns the number of table entries
func (c *Colormap) Len() int {
	return len(c.table)
}

// Index returns the table entry for v; values outside [Min, Max] clamp
func (c *Colormap) Index(v float64) int {
	if math.IsNaN(v) || c.Max <= c.Min {
		return 0
	}
	i := int(math.Floor((v - c.Min) / (c.Max - c.Min) * float64(len(c.table))))
	return max(0, min(i, len(c.table)-1))
}

// Color returns the colour for v
func (c *Colormap) Color(v float64) color.NRGBA {
	return c.table[c.Index(v)]
}

// At returns table entry i
func (c *Colormap) At(i int) color.NRGBA {
	return c.table[max(0, min(i, len(c.table)-1))]
}

// hsvToNRGBA converts h, s, v in [0,1] to an opaque colour. Hue wraps.
func hsvToNRGBA(h, s, v float64) color.NRGBA {
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	r, g, b := colorful.Hsv(h*360, s, v).Clamped().RGB255()
	return color.NRGBA{r, g, b, 255}
}
