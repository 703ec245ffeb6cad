package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Assignment contains knobs for the topic-assignment engine.
type Assignment struct {
	// HoursPerUnitComplexity scales a topic's complexity weight into a
	// production deadline.
	HoursPerUnitComplexity float64 `toml:"hours_per_unit_complexity"`
	// MinimumHours is the floor for any production deadline.
	MinimumHours int `toml:"minimum_hours"`
	// ReserveFloorHours is the floor for the extension reserve window.
	ReserveFloorHours int `toml:"reserve_floor_hours"`
	// NeutralCollectionScore ranks collections a producer has no history in.
	NeutralCollectionScore float64 `toml:"neutral_collection_score"`
}

// Review contains knobs for the review-dispatch engine.
type Review struct {
	// Quorum is the number of completed verdicts that settle an artifact.
	Quorum int `toml:"quorum"`
	// PendingThrottle caps system-wide pending review assignments.
	PendingThrottle int `toml:"pending_throttle"`
	// WindowHours is the review deadline measured from assignment.
	WindowHours int `toml:"window_hours"`
	// ExtensionHours is the one-time extension a reviewer may request.
	ExtensionHours int `toml:"extension_hours"`
	// ThresholdWindow is how many recent judged work items feed the rolling
	// acceptance threshold.
	ThresholdWindow int `toml:"threshold_window"`
	// DefaultThreshold applies when no work item has ever been judged.
	DefaultThreshold float64 `toml:"default_threshold"`
}

// Rating contains constants for the rating engine.
type Rating struct {
	// SeniorityMultiplier compounds per judged work item when accumulating
	// producer points.
	SeniorityMultiplier float64 `toml:"seniority_multiplier"`
	// StandardReviewSeconds converts reviewed artifact duration into
	// reviewer points.
	StandardReviewSeconds float64 `toml:"standard_review_seconds"`
	// NeutralQuality and NeutralPromptness are the sub-score defaults used
	// when a producer has no history or the population has no spread.
	NeutralQuality    float64 `toml:"neutral_quality"`
	NeutralPromptness float64 `toml:"neutral_promptness"`
}

// Scheduler contains daemon timing configuration.
type Scheduler struct {
	// TickIntervalSeconds is the deadline-scheduler period. The engine is
	// designed for hourly ticks; tests shrink it.
	TickIntervalSeconds int `toml:"tick_interval_seconds"`
	ErrorRetrySeconds   int `toml:"error_retry_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Assignments    bool   `toml:"assignments"`
	Reviews        bool   `toml:"reviews"`
	Deadlines      bool   `toml:"deadlines"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for greenroom.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Assignment: topic-matching deadlines and ranking defaults
//   - Review: quorum, throttle, and review window
//   - Rating: scoring constants
//   - Scheduler: tick timing
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Assignment    Assignment    `toml:"assignment"`
	Review        Review        `toml:"review"`
	Rating        Rating        `toml:"rating"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/greenroom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path, the third reports whether a file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("greenroom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "greenroom.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
