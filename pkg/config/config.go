// Package config provides the YAML based configuration of the scale tools
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fako1024/de1ble/pkg/scale"
	"gopkg.in/yaml.v3"
)

const (

	// BackendGATT denotes the native HCI based bluetooth backend (Linux)
	BackendGATT = "gatt"

	// BackendTinyGo denotes the tinygo.org/x/bluetooth backend (BlueZ, CoreBluetooth, WinRT)
	BackendTinyGo = "tinygo"
)

// Config holds all application configuration
type Config struct {
	Backend  string     `yaml:"backend"`
	Scan     ScanConfig `yaml:"scan"`
	Scale    SavedScale `yaml:"scale"`
	Shot     ShotConfig `yaml:"shot"`
	API      APIConfig  `yaml:"api"`
	LogLevel string     `yaml:"log_level"`
}

// ScanConfig holds the device discovery settings
type ScanConfig struct {
	Timeout              time.Duration `yaml:"timeout"`
	RescanDelay          time.Duration `yaml:"rescan_delay"`
	AutoRescan           bool          `yaml:"auto_rescan"`
	DirectConnectTimeout time.Duration `yaml:"direct_connect_timeout"`
}

// SavedScale holds the scale connected to most recently
type SavedScale struct {
	Address string `yaml:"address,omitempty"`
	Type    string `yaml:"type,omitempty"`
}

// ShotConfig holds the stop-on-weight settings
type ShotConfig struct {
	TargetWeight float64 `yaml:"target_weight"`
}

// APIConfig holds the REST API settings
type APIConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// DefaultPath returns the default config file path
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "de1ble.yaml"
	}
	return filepath.Join(dir, "de1ble", "config.yaml")
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Backend: BackendGATT,
		Scan: ScanConfig{
			Timeout:              30 * time.Second,
			RescanDelay:          5 * time.Second,
			AutoRescan:           true,
			DirectConnectTimeout: 20 * time.Second,
		},
		Shot: ShotConfig{
			TargetWeight: 36.,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes the config to a YAML file, creating its directory if required
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the config for invalid values
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGATT, BackendTinyGo:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendGATT, BackendTinyGo, c.Backend)
	}

	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}
	if c.Scan.RescanDelay < 0 {
		return fmt.Errorf("scan.rescan_delay must be >= 0")
	}
	if c.Scan.DirectConnectTimeout <= 0 {
		return fmt.Errorf("scan.direct_connect_timeout must be > 0")
	}

	if c.Scale.Type != "" && scale.ParseType(c.Scale.Type) == scale.TypeUnknown {
		return fmt.Errorf("scale.type %q is not a known scale type", c.Scale.Type)
	}
	if (c.Scale.Type == "") != (c.Scale.Address == "") {
		return fmt.Errorf("scale.address and scale.type must be set together")
	}

	if c.Shot.TargetWeight < 0 {
		return fmt.Errorf("shot.target_weight must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// SetSavedScale records the scale connected to most recently
func (c *Config) SetSavedScale(address, typeName string) {
	c.Scale = SavedScale{
		Address: address,
		Type:    typeName,
	}
}
