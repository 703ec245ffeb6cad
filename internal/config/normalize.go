package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAssignment()
	c.normalizeReview()
	c.normalizeRating()
	c.normalizeScheduler()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAssignment() {
	if c.Assignment.HoursPerUnitComplexity <= 0 {
		c.Assignment.HoursPerUnitComplexity = defaultHoursPerUnitComplexity
	}
	if c.Assignment.MinimumHours <= 0 {
		c.Assignment.MinimumHours = defaultMinimumHours
	}
	if c.Assignment.ReserveFloorHours <= 0 {
		c.Assignment.ReserveFloorHours = defaultReserveFloorHours
	}
	if c.Assignment.NeutralCollectionScore <= 0 {
		c.Assignment.NeutralCollectionScore = defaultNeutralCollectionScore
	}
}

func (c *Config) normalizeReview() {
	if c.Review.Quorum <= 0 {
		c.Review.Quorum = defaultQuorum
	}
	if c.Review.PendingThrottle <= 0 {
		c.Review.PendingThrottle = defaultPendingThrottle
	}
	if c.Review.WindowHours <= 0 {
		c.Review.WindowHours = defaultReviewWindow
	}
	if c.Review.ExtensionHours <= 0 {
		c.Review.ExtensionHours = defaultReviewExtension
	}
	if c.Review.ThresholdWindow <= 0 {
		c.Review.ThresholdWindow = defaultThresholdWindow
	}
	if c.Review.DefaultThreshold <= 0 {
		c.Review.DefaultThreshold = defaultDefaultThreshold
	}
}

func (c *Config) normalizeRating() {
	if c.Rating.SeniorityMultiplier <= 0 {
		c.Rating.SeniorityMultiplier = defaultSeniorityMultiplier
	}
	if c.Rating.StandardReviewSeconds <= 0 {
		c.Rating.StandardReviewSeconds = defaultStandardReviewSeconds
	}
	if c.Rating.NeutralQuality <= 0 {
		c.Rating.NeutralQuality = defaultNeutralQuality
	}
	if c.Rating.NeutralPromptness <= 0 {
		c.Rating.NeutralPromptness = defaultNeutralPromptness
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.TickIntervalSeconds <= 0 {
		c.Scheduler.TickIntervalSeconds = defaultTickIntervalSeconds
	}
	if c.Scheduler.ErrorRetrySeconds <= 0 {
		c.Scheduler.ErrorRetrySeconds = defaultErrorRetrySeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
