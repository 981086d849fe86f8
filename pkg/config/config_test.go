package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Veraticus/idlewatch/pkg/idle"
)

// clearEnv unsets every variable the loader reads for the duration of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"IDLEWATCH_IDLE_THRESHOLD",
		"IDLEWATCH_PERMISSION_MARKER",
		"IDLEWATCH_ERROR_LOG",
		"IDLEWATCH_DB_PATH",
		"IDLEWATCH_LISTEN",
		"IDLEWATCH_RESOURCE_DIR",
		"IDLEWATCH_QUIET",
		"IDLEWATCH_DEBUG",
		"IDLEWATCH_AUTO_START",
		"IDLEWATCH_SENSOR_PTY",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.IdleThreshold != time.Minute {
		t.Errorf("expected IdleThreshold to be 1m but got %v", cfg.IdleThreshold)
	}
	if cfg.PermissionMarker != "This process is not trusted" {
		t.Errorf("unexpected PermissionMarker %q", cfg.PermissionMarker)
	}
	if !cfg.NotifyDiagnostics {
		t.Error("expected NotifyDiagnostics to be true by default")
	}
	if cfg.Sensor.StopTimeout != 3*time.Second {
		t.Errorf("expected StopTimeout 3s but got %v", cfg.Sensor.StopTimeout)
	}
	for _, goos := range []string{"windows", "darwin", "linux"} {
		if cfg.Sensor.Paths[goos] == "" {
			t.Errorf("expected a default sensor for %s", goos)
		}
	}
	if cfg.Sensor.Paths["windows"] == cfg.Sensor.Paths["darwin"] {
		t.Error("expected distinct sensor paths per OS family")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		checkFunc func(*testing.T, *Config)
		wantErr   bool
	}{
		{
			name: "valid environment variables",
			envVars: map[string]string{
				"IDLEWATCH_IDLE_THRESHOLD":    "90s",
				"IDLEWATCH_PERMISSION_MARKER": "not permitted",
				"IDLEWATCH_LISTEN":            "127.0.0.1:7777",
				"IDLEWATCH_QUIET":             "true",
				"IDLEWATCH_SENSOR_PTY":        "1",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.IdleThreshold != 90*time.Second {
					t.Errorf("expected threshold 90s but got %v", cfg.IdleThreshold)
				}
				if cfg.PermissionMarker != "not permitted" {
					t.Errorf("unexpected marker %q", cfg.PermissionMarker)
				}
				if cfg.Listen != "127.0.0.1:7777" {
					t.Errorf("unexpected listen %q", cfg.Listen)
				}
				if !cfg.Quiet {
					t.Error("expected Quiet to be true")
				}
				if !cfg.Sensor.PTY {
					t.Error("expected Sensor.PTY to be true")
				}
			},
		},
		{
			name:    "invalid threshold",
			envVars: map[string]string{"IDLEWATCH_IDLE_THRESHOLD": "soon"},
			wantErr: true,
		},
		{
			name:    "invalid bool",
			envVars: map[string]string{"IDLEWATCH_DEBUG": "maybe"},
			wantErr: true,
		},
		{
			name:    "bool false",
			envVars: map[string]string{"IDLEWATCH_AUTO_START": "no"},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.AutoStart {
					t.Error("expected AutoStart to be false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := DefaultConfig()
			err := loadFromEnv(cfg)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, cfg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `idle_threshold: 45s
permission_marker: "denied by policy"
notify_diagnostics: false
sensor:
  resource_dir: /opt/idlewatch
  pty: true
  stop_timeout: 5s
  paths:
    linux: bin/tracker
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.IdleThreshold != 45*time.Second {
		t.Errorf("expected threshold 45s but got %v", cfg.IdleThreshold)
	}
	if cfg.PermissionMarker != "denied by policy" {
		t.Errorf("unexpected marker %q", cfg.PermissionMarker)
	}
	if cfg.NotifyDiagnostics {
		t.Error("expected NotifyDiagnostics false")
	}
	if !cfg.Sensor.PTY {
		t.Error("expected PTY true")
	}
	if cfg.Sensor.StopTimeout != 5*time.Second {
		t.Errorf("expected stop timeout 5s but got %v", cfg.Sensor.StopTimeout)
	}

	got, err := cfg.SensorPath("linux")
	if err != nil {
		t.Fatalf("SensorPath: %v", err)
	}
	if got != filepath.Join("/opt/idlewatch", "bin", "tracker") {
		t.Errorf("unexpected linux sensor path %q", got)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config file should fall back to defaults: %v", err)
	}
	if cfg.IdleThreshold != DefaultIdleThreshold {
		t.Errorf("expected default threshold, got %v", cfg.IdleThreshold)
	}
}

func TestDefaultThresholdMatchesTimer(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IdleThreshold != idle.DefaultThreshold {
		t.Errorf("default IdleThreshold %v differs from the timer default %v", cfg.IdleThreshold, idle.DefaultThreshold)
	}
	if got := idle.NewTimer(0).Threshold(); got != cfg.IdleThreshold {
		t.Errorf("unset timer threshold %v differs from the configured default %v", got, cfg.IdleThreshold)
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("idle_threshold: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil || !strings.Contains(err.Error(), "failed to load config file") {
		t.Errorf("expected config file error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero threshold",
			mutate:  func(c *Config) { c.IdleThreshold = 0 },
			wantErr: "idle_threshold",
		},
		{
			name:    "empty marker",
			mutate:  func(c *Config) { c.PermissionMarker = "" },
			wantErr: "permission_marker",
		},
		{
			name:    "zero stop timeout",
			mutate:  func(c *Config) { c.Sensor.StopTimeout = 0 },
			wantErr: "stop_timeout",
		},
		{
			name:    "no sensor paths",
			mutate:  func(c *Config) { c.Sensor.Paths = nil },
			wantErr: "sensor.paths",
		},
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSensorPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensor.ResourceDir = "/app/resources"

	win, err := cfg.SensorPath("windows")
	if err != nil {
		t.Fatal(err)
	}
	mac, err := cfg.SensorPath("darwin")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(win) != "MouseTracker.exe" || filepath.Base(mac) != "mousemac" {
		t.Errorf("unexpected per-OS paths: %q, %q", win, mac)
	}

	if _, err := cfg.SensorPath("plan9"); err == nil {
		t.Error("expected error for an OS without a sensor")
	}

	cfg.SetSensorOverride("/usr/local/bin/sensor")
	for _, goos := range []string{"windows", "darwin", "plan9"} {
		got, err := cfg.SensorPath(goos)
		if err != nil {
			t.Fatalf("SensorPath(%s): %v", goos, err)
		}
		if got != "/usr/local/bin/sensor" {
			t.Errorf("override not applied for %s: %q", goos, got)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	BindFlags(fs)

	err := fs.Parse([]string{"--threshold", "2m", "--quiet", "--sensor", "/tmp/sensor", "--auto-start"})
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Listen = "keep-me"
	if err := cfg.ApplyFlags(fs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.IdleThreshold != 2*time.Minute {
		t.Errorf("expected threshold 2m but got %v", cfg.IdleThreshold)
	}
	if !cfg.Quiet || !cfg.AutoStart {
		t.Error("expected quiet and auto-start to be set")
	}
	if cfg.Sensor.Override != "/tmp/sensor" {
		t.Errorf("expected sensor override, got %q", cfg.Sensor.Override)
	}
	if cfg.Listen != "keep-me" {
		t.Errorf("unset flag overrode listen: %q", cfg.Listen)
	}
	if cfg.Debug {
		t.Error("unset debug flag should not change config")
	}
}

func TestApplyFlagsRejectsInvalidThreshold(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	BindFlags(fs)
	if err := fs.Parse([]string{"--threshold", "0s"}); err != nil {
		t.Fatal(err)
	}

	if err := DefaultConfig().ApplyFlags(fs); err == nil {
		t.Error("expected validation error for zero threshold")
	}
}
