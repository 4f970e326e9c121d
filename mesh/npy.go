package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/sbinet/npyio/npy"
)

// ReadNPYGrid loads a 2-D NumPy array file as a PressureGrid
func ReadNPYGrid(path string) (*PressureGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	g, err := DecodeNPYGrid(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return g, nil
}

// DecodeNPYGrid decodes a .npy payload holding a 2-D numeric array. Leading
// dimensions of size 1 are squeezed.
func DecodeNPYGrid(data []byte) (*PressureGrid, error) {
	r, err := npy.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not a .npy payload: %w", err)
	}
	hdr := r.Header

	kind, size, err := npyKind(hdr.Descr.Type)
	if err != nil {
		return nil, err
	}

	dims := hdr.Descr.Shape
	for len(dims) > 2 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf(".npy array must be 2-D, got shape %v", hdr.Descr.Shape)
	}
	rows, cols := dims[0], dims[1]
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("bad .npy shape %v: dimensions must be positive", hdr.Descr.Shape)
	}
	if rows > math.MaxInt/cols/size {
		return nil, fmt.Errorf("bad .npy shape %v: too large", hdr.Descr.Shape)
	}
	if n := npyDataLen(data); n < rows*cols*size {
		return nil, fmt.Errorf(".npy data truncated: %d bytes for %dx%d %s", n, rows, cols, hdr.Descr.Type)
	}

	// npy reads the elements flat in file order; reshaping is ours
	values, err := readNPYValues(r, kind)
	if err != nil {
		return nil, fmt.Errorf("reading .npy data: %w", err)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf(".npy data has %d elements for %dx%d", len(values), rows, cols)
	}

	g := NewPressureGrid(rows, cols)
	if !hdr.Descr.Fortran {
		copy(g.Data, values)
		return g, nil
	}
	// column-major: element i is (i%rows, i/rows)
	for i, v := range values {
		g.Set(i%rows, i/rows, v)
	}
	return g, nil
}

// npyDataLen returns the number of bytes after the header of a payload
// whose header has already been parsed
func npyDataLen(data []byte) int {
	if data[6] == 1 {
		return len(data) - 10 - int(binary.LittleEndian.Uint16(data[8:10]))
	}
	return len(data) - 12 - int(binary.LittleEndian.Uint32(data[8:12]))
}

// npyKind strips the byte-order mark from a dtype descriptor and returns
// the element kind ("f8", "u2", ...) with its width in bytes
func npyKind(descr string) (string, int, error) {
	kind := strings.TrimLeft(descr, "<>|=")
	switch kind {
	case "f8", "i8", "u8":
		return kind, 8, nil
	case "f4", "i4", "u4":
		return kind, 4, nil
	case "i2", "u2":
		return kind, 2, nil
	case "i1", "u1":
		return kind, 1, nil
	}
	return "", 0, fmt.Errorf("unsupported .npy dtype %q", descr)
}

type npyNumber interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func readNPYValues(r *npy.Reader, kind string) ([]float64, error) {
	switch kind {
	case "f8":
		var v []float64
		err := r.Read(&v)
		return v, err
	case "f4":
		return readNPYAs[float32](r)
	case "i8":
		return readNPYAs[int64](r)
	case "i4":
		return readNPYAs[int32](r)
	case "i2":
		return readNPYAs[int16](r)
	case "i1":
		return readNPYAs[int8](r)
	case "u8":
		return readNPYAs[uint64](r)
	case "u4":
		return readNPYAs[uint32](r)
	case "u2":
		return readNPYAs[uint16](r)
	case "u1":
		return readNPYAs[uint8](r)
	}
	return nil, fmt.Errorf("unsupported .npy dtype %q", kind)
}

func readNPYAs[T npyNumber](r *npy.Reader) ([]float64, error) {
	var raw []T
	if err := r.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}
