package rating

import (
	"context"
	"fmt"
	"sync"

	"greenroom/internal/store"
)

// population is one normalization pool: per-subject values plus the min/max
// bounds the sub-score is scaled against.
type population struct {
	values map[int64]float64
	min    float64
	max    float64
}

func (p population) bounds() (float64, float64, bool) {
	if len(p.values) == 0 {
		return 0, 0, false
	}
	return p.min, p.max, true
}

func (p population) value(userID int64) (float64, bool) {
	v, ok := p.values[userID]
	return v, ok
}

func buildPopulation(values []store.SubjectValue) population {
	pop := population{values: make(map[int64]float64, len(values))}
	for i, sv := range values {
		pop.values[sv.UserID] = sv.Value
		if i == 0 || sv.Value < pop.min {
			pop.min = sv.Value
		}
		if i == 0 || sv.Value > pop.max {
			pop.max = sv.Value
		}
	}
	return pop
}

// populationCache holds a snapshot of the six normalization pools. The
// scheduler refreshes the whole snapshot each tick; category refreshes run
// eagerly when an event touches a subject in that category, so a subject's
// own recompute never reads stale bounds older than the event.
type populationCache struct {
	mu sync.RWMutex

	producerQuality     population
	producerPromptness  population
	producerReliability population
	reviewerAccuracy    population
	reviewerReliability population
	reviewerPromptness  population
}

func (c *populationCache) refreshAll(ctx context.Context, st *store.Store) error {
	if err := c.refreshProducers(ctx, st); err != nil {
		return err
	}
	return c.refreshReviewers(ctx, st)
}

func (c *populationCache) refreshProducers(ctx context.Context, st *store.Store) error {
	quality, err := st.ProducerQualityStats(ctx)
	if err != nil {
		return fmt.Errorf("producer quality stats: %w", err)
	}
	promptness, err := st.ProducerPromptnessStats(ctx)
	if err != nil {
		return fmt.Errorf("producer promptness stats: %w", err)
	}
	reliability, err := st.ProducerReliabilityStats(ctx)
	if err != nil {
		return fmt.Errorf("producer reliability stats: %w", err)
	}

	c.mu.Lock()
	c.producerQuality = buildPopulation(quality)
	c.producerPromptness = buildPopulation(promptness)
	c.producerReliability = buildPopulation(reliability)
	c.mu.Unlock()
	return nil
}

func (c *populationCache) refreshReviewers(ctx context.Context, st *store.Store) error {
	accuracy, err := st.ReviewerAccuracyStats(ctx)
	if err != nil {
		return fmt.Errorf("reviewer accuracy stats: %w", err)
	}
	reliability, err := st.ReviewerReliabilityStats(ctx)
	if err != nil {
		return fmt.Errorf("reviewer reliability stats: %w", err)
	}
	promptness, err := st.ReviewerPromptnessStats(ctx)
	if err != nil {
		return fmt.Errorf("reviewer promptness stats: %w", err)
	}

	c.mu.Lock()
	c.reviewerAccuracy = buildPopulation(accuracy)
	c.reviewerReliability = buildPopulation(reliability)
	c.reviewerPromptness = buildPopulation(promptness)
	c.mu.Unlock()
	return nil
}

func (c *populationCache) producerPools() (quality, promptness, reliability population) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.producerQuality, c.producerPromptness, c.producerReliability
}

func (c *populationCache) reviewerPools() (accuracy, reliability, promptness population) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reviewerAccuracy, c.reviewerReliability, c.reviewerPromptness
}
