// Package config loads and validates the octoctl YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/octoctl/internal/bed"
	"github.com/chaz8081/octoctl/internal/octo"
)

// Config holds all application configuration.
type Config struct {
	Listen   string      `yaml:"listen"`
	LogLevel string      `yaml:"log_level"`
	Combined bool        `yaml:"combined"` // drive all beds as one
	Beds     []BedConfig `yaml:"beds"`
}

// BedConfig holds the settings for one physical bed.
type BedConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	PIN     string `yaml:"pin"`

	// Full-travel times in seconds, refined by calibration.
	HeadFullTravelSeconds float64 `yaml:"head_full_travel_seconds"`
	FeetFullTravelSeconds float64 `yaml:"feet_full_travel_seconds"`
}

// Travel converts the per-bed travel seconds into the engine's config.
func (b BedConfig) Travel() bed.TravelConfig {
	return bed.TravelConfig{
		Head: secondsToDuration(b.HeadFullTravelSeconds),
		Feet: secondsToDuration(b.FeetFullTravelSeconds),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "octoctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. It carries no
// beds; at least one must come from the file.
func Default() *Config {
	return &Config{
		Listen:   "127.0.0.1:8733",
		LogLevel: "info",
		Combined: false,
	}
}

// Load reads and parses a YAML config file. Missing top-level fields are
// filled with defaults; missing per-bed travel times fall back to the
// factory assumption.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for i := range cfg.Beds {
		if cfg.Beds[i].HeadFullTravelSeconds == 0 {
			cfg.Beds[i].HeadFullTravelSeconds = bed.DefaultTravel.Seconds()
		}
		if cfg.Beds[i].FeetFullTravelSeconds == 0 {
			cfg.Beds[i].FeetFullTravelSeconds = bed.DefaultTravel.Seconds()
		}
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if len(c.Beds) == 0 {
		return fmt.Errorf("at least one bed must be configured")
	}
	if c.Combined && len(c.Beds) < 2 {
		return fmt.Errorf("combined mode needs at least two beds, got %d", len(c.Beds))
	}

	names := make(map[string]bool, len(c.Beds))
	for i, b := range c.Beds {
		if b.Name == "" {
			return fmt.Errorf("beds[%d].name must not be empty", i)
		}
		if names[b.Name] {
			return fmt.Errorf("beds[%d].name %q is duplicated", i, b.Name)
		}
		names[b.Name] = true

		if b.Address == "" {
			return fmt.Errorf("bed %q: address must not be empty", b.Name)
		}
		if err := octo.ValidatePIN(b.PIN); err != nil {
			return fmt.Errorf("bed %q: %w", b.Name, err)
		}
		if err := b.Travel().Validate(); err != nil {
			return fmt.Errorf("bed %q: %w", b.Name, err)
		}
	}

	return nil
}

// ParseLogLevel maps a config log level string to a slog.Level.
// Unknown values default to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteDefault writes a commented starter config to the default path if
// none exists yet. Returns the written path, or "" when a config was
// already present.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine config directory")
	}
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	content := `# octoctl configuration
# Run "octoctl scan" to discover bed addresses, then fill in the PIN
# printed on the remote (4 digits).

listen: 127.0.0.1:8733
log_level: info

# Drive all beds as one unit. Requires at least two beds.
combined: false

beds: []
#  - name: primary
#    address: "AA:BB:CC:DD:EE:FF"
#    pin: "0000"
#    head_full_travel_seconds: 30
#    feet_full_travel_seconds: 30
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}
