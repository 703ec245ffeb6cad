// Package testsupport provides shared fixtures for package tests: temp-dir
// configs, opened stores, and seed helpers for users and catalog rows.
package testsupport

import (
	"path/filepath"
	"testing"

	"greenroom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Scheduler.TickIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithQuorum overrides the review quorum (and keeps the pending throttle at
// least as large, which Validate requires).
func WithQuorum(quorum int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Review.Quorum = quorum
		if cfg.Review.PendingThrottle < quorum {
			cfg.Review.PendingThrottle = quorum
		}
	}
}

// WithPendingThrottle overrides the system-wide pending review cap.
func WithPendingThrottle(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Review.PendingThrottle = limit
	}
}
