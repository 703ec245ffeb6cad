package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"greenroom/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Review.Quorum != 5 {
		t.Fatalf("expected quorum 5, got %d", cfg.Review.Quorum)
	}
	if cfg.Rating.SeniorityMultiplier != 1.05 {
		t.Fatalf("expected seniority multiplier 1.05, got %v", cfg.Rating.SeniorityMultiplier)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Assignment.MinimumHours != 72 {
		t.Fatalf("expected default minimum hours, got %d", cfg.Assignment.MinimumHours)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[review]
quorum = 3
pending_throttle = 7
window_hours = 12

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Review.Quorum != 3 || cfg.Review.PendingThrottle != 7 {
		t.Fatalf("review overrides not applied: %+v", cfg.Review)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging overrides not applied: %+v", cfg.Logging)
	}
	// Untouched sections keep defaults.
	if cfg.Assignment.HoursPerUnitComplexity != 72.0 {
		t.Fatalf("expected default hours per unit, got %v", cfg.Assignment.HoursPerUnitComplexity)
	}
}

func TestLoadRejectsThrottleBelowQuorum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[review]
quorum = 5
pending_throttle = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for throttle below quorum")
	} else if !strings.Contains(err.Error(), "pending_throttle") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeUnknownLogFormatFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console fallback, got %q", cfg.Logging.Format)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[review]") {
		t.Fatal("sample config missing [review] section")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := config.ExpandPath("~/greenroom")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "greenroom") {
		t.Fatalf("expected %q, got %q", filepath.Join(home, "greenroom"), got)
	}
}
