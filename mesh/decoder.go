package mesh

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// DecodeFrame decodes a pressure frame from one of:
// - raw JSON {"id", "timestamp", "cloths": [[..]], "pants": [[..]]}
// - zlib-compressed JSON of the same shape
//
// Missing IDs are filled with a random UUID and missing timestamps with the
// receive time.
func DecodeFrame(data []byte) (*Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	jsonBytes := data
	if data[0] != '{' {
		inflated, err := inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed JSON")
		}
		jsonBytes = inflated
	}

	var f Frame
	if err := json.Unmarshal(jsonBytes, &f); err != nil {
		return nil, fmt.Errorf("parsing frame JSON: %w", err)
	}
	if f.Cloths == nil {
		return nil, fmt.Errorf("frame has no cloths grid")
	}
	if f.Pants == nil {
		return nil, fmt.Errorf("frame has no pants grid")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	return &f, nil
}

// EncodeFrame serializes a frame as JSON, optionally zlib-compressed
func EncodeFrame(f *Frame, compress bool) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling frame: %w", err)
	}
	if !compress {
		return data, nil
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressing frame: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing frame: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadNPYFrame builds a frame from a pair of .npy grid files
func LoadNPYFrame(clothsPath, pantsPath string) (*Frame, error) {
	cloths, err := ReadNPYGrid(clothsPath)
	if err != nil {
		return nil, fmt.Errorf("cloths: %w", err)
	}
	pants, err := ReadNPYGrid(pantsPath)
	if err != nil {
		return nil, fmt.Errorf("pants: %w", err)
	}
	return &Frame{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Cloths:    cloths,
		Pants:     pants,
	}, nil
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return decompressed, nil
}
