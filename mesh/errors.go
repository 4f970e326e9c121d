package mesh

import "fmt"

// ConfigError reports a missing or malformed configuration or calibration
// entry. It is fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// GeometryError reports a degenerate segment frame (zero-length axis or a
// reference direction parallel to the axis).
type GeometryError struct {
	Segment SegmentID
	Reason  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: %s frame: %s", e.Segment, e.Reason)
}
