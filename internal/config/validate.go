package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAssignment(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	if err := c.validateRating(); err != nil {
		return err
	}
	return c.validateScheduler()
}

func (c *Config) validateAssignment() error {
	if c.Assignment.NeutralCollectionScore > 1 {
		return errors.New("assignment.neutral_collection_score must be between 0 and 1")
	}
	if c.Assignment.MinimumHours < 1 {
		return errors.New("assignment.minimum_hours must be at least 1")
	}
	return nil
}

func (c *Config) validateReview() error {
	if c.Review.Quorum < 1 {
		return errors.New("review.quorum must be at least 1")
	}
	if c.Review.PendingThrottle < c.Review.Quorum {
		return fmt.Errorf("review.pending_throttle (%d) must be at least review.quorum (%d)",
			c.Review.PendingThrottle, c.Review.Quorum)
	}
	if c.Review.DefaultThreshold > 1 {
		return errors.New("review.default_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateRating() error {
	if c.Rating.SeniorityMultiplier < 1 {
		return errors.New("rating.seniority_multiplier must be at least 1")
	}
	if c.Rating.NeutralQuality > 1 || c.Rating.NeutralPromptness > 1 {
		return errors.New("rating neutral defaults must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.TickIntervalSeconds < 1 {
		return errors.New("scheduler.tick_interval_seconds must be at least 1")
	}
	return nil
}
