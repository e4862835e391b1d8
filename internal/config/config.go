// Package config loads the peripheral configuration from an optional YAML
// file, with struct-tag defaults matching the stock toggle service schema.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"

	"github.com/srg/blep/internal/gatt"
)

// descriptorValue is the fixed two-byte configuration payload attached to
// the toggle characteristic.
var descriptorValue = []byte{0x00, 0x01}

// Config is the serve configuration. Zero values are filled from the
// `default` tags, so a missing or partial config file is fine.
type Config struct {
	// DeviceName is the local name used when advertising.
	DeviceName string `yaml:"device_name" default:"blep"`

	// ServiceUUID identifies the primary service.
	ServiceUUID string `yaml:"service_uuid" default:"1234"`

	// CharacteristicUUID is the toggle characteristic (read/write/notify).
	CharacteristicUUID string `yaml:"characteristic_uuid" default:"2a3d"`

	// AuxCharacteristicUUID is registered with default (empty) configuration.
	AuxCharacteristicUUID string `yaml:"aux_characteristic_uuid" default:"1209"`

	// DescriptorUUID is attached to the toggle characteristic with a fixed
	// two-byte value.
	DescriptorUUID string `yaml:"descriptor_uuid" default:"2a13"`

	// PowerPollInterval is the readiness poll period while waiting for the
	// adapter to power on.
	PowerPollInterval time.Duration `yaml:"power_poll_interval" default:"100ms"`

	// EventQueueCapacity bounds the inbound event channel.
	EventQueueCapacity int `yaml:"event_queue_capacity" default:"256"`

	// LogLevel overrides the CLI log level when set (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file and applies defaults for any omitted keys.
// An empty path returns Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	// Re-apply defaults for keys the file set to zero values.
	defaults.SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks UUIDs and numeric bounds.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name cannot be empty")
	}
	if _, err := gatt.ValidateUUID(c.ServiceUUID, c.CharacteristicUUID, c.AuxCharacteristicUUID, c.DescriptorUUID); err != nil {
		return err
	}
	if c.EventQueueCapacity <= 0 {
		return fmt.Errorf("event_queue_capacity must be positive, got %d", c.EventQueueCapacity)
	}
	if c.PowerPollInterval <= 0 {
		return fmt.Errorf("power_poll_interval must be positive, got %s", c.PowerPollInterval)
	}
	return nil
}

// Service builds the immutable GATT schema: one primary service carrying
// the toggle characteristic (read/write/notify plus its configuration
// descriptor) and one auxiliary characteristic with default configuration.
func (c *Config) Service() *gatt.Service {
	return &gatt.Service{
		UUID:    gatt.NormalizeUUID(c.ServiceUUID),
		Primary: true,
		Characteristics: []gatt.Characteristic{
			{
				UUID:        gatt.NormalizeUUID(c.CharacteristicUUID),
				Properties:  gatt.PropertyRead | gatt.PropertyWrite | gatt.PropertyNotify,
				Permissions: gatt.PermissionRead | gatt.PermissionWrite,
				Descriptors: []gatt.Descriptor{
					{
						UUID:  gatt.NormalizeUUID(c.DescriptorUUID),
						Value: append([]byte(nil), descriptorValue...),
					},
				},
			},
			{
				UUID: gatt.NormalizeUUID(c.AuxCharacteristicUUID),
			},
		},
	}
}
