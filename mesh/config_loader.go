package mesh

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFrameTopic is the MQTT topic pressure frames arrive on
	DefaultFrameTopic = "smart-garment/frames"

	// DefaultHTTPPort is used when http.port is unset
	DefaultHTTPPort = 8080
)

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration, applies defaults and validates it.
// Validation failures are returned as *ConfigError.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills optional fields
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeNormal
	}
	if c.Calibration == "" && c.CalibrationURL == "" {
		c.Calibration = DefaultCalibrationPath
	}
	if c.MappingCache == "" {
		c.MappingCache = DefaultMappingCachePath
	}
	if c.MQTT.FrameTopic == "" {
		c.MQTT.FrameTopic = DefaultFrameTopic
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
}

// Validate checks required fields and the geometry block
func (c *Config) Validate() error {
	if c.Mesh == "" {
		return configErrorf("mesh", "is required")
	}
	if !c.Mode.Valid() {
		return configErrorf("mode", "unknown mode %q (want normal or upsample)", c.Mode)
	}
	if c.Calibration != "" && c.CalibrationURL != "" {
		return configErrorf("calibrationUrl", "cannot be combined with calibration")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return configErrorf("http.port", "out of range: %d", c.HTTP.Port)
	}
	if c.Geometry != nil {
		if err := c.EffectiveGeometry().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// LoadCalibration resolves the calibration table the config points at,
// either a local file or a remote URL.
func (c *Config) LoadCalibration(ctx context.Context, opts ...FetchOption) (*CalibrationTable, error) {
	if c.CalibrationURL != "" {
		return FetchCalibration(ctx, c.CalibrationURL, c.Mode, opts...)
	}
	return LoadCalibrationFile(c.Calibration, c.Mode)
}
