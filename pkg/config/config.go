package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/idlewatch/pkg/classify"
	"github.com/Veraticus/idlewatch/pkg/idle"
)

// DefaultIdleThreshold is the gap between two activity events at or above
// which the time in between is not counted as active.
const DefaultIdleThreshold = idle.DefaultThreshold

// Config holds all configuration for idlewatch
type Config struct {
	// Idle timer
	IdleThreshold time.Duration `yaml:"idle_threshold" env:"IDLEWATCH_IDLE_THRESHOLD"`
	AutoStart     bool          `yaml:"auto_start" env:"IDLEWATCH_AUTO_START"`

	// Failure classification
	PermissionMarker  string `yaml:"permission_marker" env:"IDLEWATCH_PERMISSION_MARKER"`
	NotifyDiagnostics bool   `yaml:"notify_diagnostics"`

	// Behavior flags
	Quiet      bool `yaml:"quiet" env:"IDLEWATCH_QUIET"`
	Debug      bool `yaml:"debug" env:"IDLEWATCH_DEBUG"`
	StatusLine bool `yaml:"status_line"`

	// Durable logs
	ErrorLog string `yaml:"error_log" env:"IDLEWATCH_ERROR_LOG"`
	DBPath   string `yaml:"db_path" env:"IDLEWATCH_DB_PATH"`

	// Remote UI; empty disables it
	Listen string `yaml:"listen" env:"IDLEWATCH_LISTEN"`

	Sensor SensorConfig `yaml:"sensor"`
}

// SensorConfig describes where the activity sensor lives and how it is run.
type SensorConfig struct {
	// Paths maps a GOOS value to the sensor executable for that OS family.
	// Relative paths are resolved against ResourceDir.
	Paths       map[string]string `yaml:"paths"`
	ResourceDir string            `yaml:"resource_dir" env:"IDLEWATCH_RESOURCE_DIR"`
	PTY         bool              `yaml:"pty" env:"IDLEWATCH_SENSOR_PTY"`
	StopTimeout time.Duration     `yaml:"stop_timeout"`

	// Override wins over Paths for every OS; set from the command line.
	Override string `yaml:"-"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		IdleThreshold:     DefaultIdleThreshold,
		PermissionMarker:  classify.DefaultPermissionMarker,
		NotifyDiagnostics: true,
		StatusLine:        true,
		ErrorLog:          filepath.Join(dataDir, "error.log"),
		DBPath:            filepath.Join(dataDir, "idlewatch.db"),
		Sensor: SensorConfig{
			Paths: map[string]string{
				"windows": "MouseTracker.exe",
				"darwin":  "mousemac",
				"linux":   "mousetracker",
			},
			ResourceDir: defaultResourceDir(),
			StopTimeout: 3 * time.Second,
		},
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFrom loads configuration from the given file (if it exists) and the
// environment.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SensorPath returns the absolute sensor path for the given OS family.
func (c *Config) SensorPath(goos string) (string, error) {
	p, ok := c.Sensor.Paths[goos]
	if c.Sensor.Override != "" {
		p, ok = c.Sensor.Override, true
	}
	if !ok || p == "" {
		return "", fmt.Errorf("no sensor configured for %s", goos)
	}
	if !filepath.IsAbs(p) && c.Sensor.ResourceDir != "" {
		p = filepath.Join(c.Sensor.ResourceDir, p)
	}
	return filepath.Abs(p)
}

// HostSensorPath returns the sensor path for the running OS.
func (c *Config) HostSensorPath() (string, error) {
	return c.SensorPath(runtime.GOOS)
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if path := os.Getenv("IDLEWATCH_CONFIG"); path != "" {
		return path
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "idlewatch", "config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "idlewatch", "config.yaml")
	}

	return ""
}

// defaultDataDir is where the error log and database live.
func defaultDataDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "idlewatch")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "idlewatch")
	}
	return "."
}

// defaultResourceDir mirrors a packaged layout: sensors ship in a resources
// directory next to the binary.
func defaultResourceDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "resources"
	}
	return filepath.Join(filepath.Dir(exe), "resources")
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (env var, flag or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if threshold := os.Getenv("IDLEWATCH_IDLE_THRESHOLD"); threshold != "" {
		d, err := time.ParseDuration(threshold)
		if err != nil {
			return fmt.Errorf("invalid IDLEWATCH_IDLE_THRESHOLD: %w", err)
		}
		cfg.IdleThreshold = d
	}

	if marker := os.Getenv("IDLEWATCH_PERMISSION_MARKER"); marker != "" {
		cfg.PermissionMarker = marker
	}

	if v := os.Getenv("IDLEWATCH_ERROR_LOG"); v != "" {
		cfg.ErrorLog = v
	}

	if v := os.Getenv("IDLEWATCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := os.Getenv("IDLEWATCH_LISTEN"); v != "" {
		cfg.Listen = v
	}

	if v := os.Getenv("IDLEWATCH_RESOURCE_DIR"); v != "" {
		cfg.Sensor.ResourceDir = v
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"IDLEWATCH_QUIET", &cfg.Quiet},
		{"IDLEWATCH_DEBUG", &cfg.Debug},
		{"IDLEWATCH_AUTO_START", &cfg.AutoStart},
		{"IDLEWATCH_SENSOR_PTY", &cfg.Sensor.PTY},
	}
	for _, b := range bools {
		if err := parseBoolEnv(b.name, b.dst); err != nil {
			return err
		}
	}

	return nil
}

func parseBoolEnv(name string, dst *bool) error {
	v := os.Getenv(name)
	switch v {
	case "":
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("invalid %s value: %q (use true/false)", name, v)
	}
	return nil
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.IdleThreshold <= 0 {
		return fmt.Errorf("idle_threshold must be positive")
	}

	if cfg.PermissionMarker == "" {
		return fmt.Errorf("permission_marker must not be empty")
	}

	if cfg.Sensor.StopTimeout <= 0 {
		return fmt.Errorf("sensor.stop_timeout must be positive")
	}

	if len(cfg.Sensor.Paths) == 0 {
		return fmt.Errorf("sensor.paths must name at least one OS")
	}

	return nil
}
