// Package rating computes normalized participant reputation and cumulative
// points. Every rating is the unweighted mean of three sub-scores, each
// min-max normalized against the current population; a sub-score falls back
// to its documented neutral default when the subject has no history or the
// population has no spread.
package rating

import (
	"context"
	"log/slog"

	"greenroom/internal/config"
	"greenroom/internal/logging"
	"greenroom/internal/store"
)

// Neutral defaults when normalization has nothing to compare against.
const (
	defaultReliability = 1.0
	defaultAccuracy    = 1.0
	defaultTurnaround  = 1.0
)

// Engine recomputes ratings and points against a cached population
// snapshot.
type Engine struct {
	store  *store.Store
	cfg    config.Rating
	cache  *populationCache
	logger *slog.Logger
}

// NewEngine constructs a rating engine. The population snapshot starts
// empty; call RefreshPopulation before the first recompute, or rely on the
// neutral defaults.
func NewEngine(st *store.Store, cfg config.Rating, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:  st,
		cfg:    cfg,
		cache:  &populationCache{},
		logger: logger.With(logging.String(logging.FieldComponent, "rating")),
	}
}

// RefreshPopulation reloads every normalization pool from the store. The
// scheduler calls it once per tick.
func (e *Engine) RefreshPopulation(ctx context.Context) error {
	return e.cache.refreshAll(ctx, e.store)
}

// RecomputeProducer refreshes the producer-side pools and persists the
// subject's recomputed rating and points.
func (e *Engine) RecomputeProducer(ctx context.Context, userID int64) error {
	if err := e.cache.refreshProducers(ctx, e.store); err != nil {
		return err
	}

	quality, promptness, reliability := e.cache.producerPools()

	qualityScore := normalize(quality, userID, false, e.cfg.NeutralQuality)
	promptnessScore := normalize(promptness, userID, true, e.cfg.NeutralPromptness)
	reliabilityScore := normalizeCount(reliability, userID)

	overall := (qualityScore + promptnessScore + reliabilityScore) / 3

	points, err := e.producerPoints(ctx, userID)
	if err != nil {
		return err
	}

	if err := e.store.UpdateProducerScore(ctx, userID, overall, points); err != nil {
		return err
	}

	e.logger.Debug("producer rating recomputed",
		logging.Int64(logging.FieldUserID, userID),
		logging.Float64("quality", qualityScore),
		logging.Float64("promptness", promptnessScore),
		logging.Float64("reliability", reliabilityScore),
		logging.Float64(logging.FieldScore, overall),
	)
	return nil
}

// RecomputeReviewer refreshes the reviewer-side pools and persists the
// subject's recomputed rating and points.
func (e *Engine) RecomputeReviewer(ctx context.Context, userID int64) error {
	if err := e.cache.refreshReviewers(ctx, e.store); err != nil {
		return err
	}

	accuracy, reliability, promptness := e.cache.reviewerPools()

	accuracyScore := normalize(accuracy, userID, true, defaultAccuracy)
	reliabilityScore := normalizeCount(reliability, userID)
	promptnessScore := normalize(promptness, userID, true, defaultTurnaround)

	overall := (accuracyScore + reliabilityScore + promptnessScore) / 3

	credit, err := e.store.ReviewedDurationCredit(ctx, userID)
	if err != nil {
		return err
	}
	points := credit / e.cfg.StandardReviewSeconds

	if err := e.store.UpdateReviewerScore(ctx, userID, overall, points); err != nil {
		return err
	}

	e.logger.Debug("reviewer rating recomputed",
		logging.Int64(logging.FieldUserID, userID),
		logging.Float64("accuracy", accuracyScore),
		logging.Float64("reliability", reliabilityScore),
		logging.Float64("promptness", promptnessScore),
		logging.Float64(logging.FieldScore, overall),
	)
	return nil
}

// producerPoints accumulates finalScore * multiplier^i * complexityWeight
// over the producer's judged history in chronological order.
func (e *Engine) producerPoints(ctx context.Context, userID int64) (float64, error) {
	history, err := e.store.JudgedHistory(ctx, userID)
	if err != nil {
		return 0, err
	}
	var (
		points float64
		factor = 1.0
	)
	for _, entry := range history {
		points += entry.FinalScore * factor * entry.ComplexityWeight
		factor *= e.cfg.SeniorityMultiplier
	}
	return points, nil
}

// normalize min-max scales the subject's value within the pool. invert
// flips the scale for lower-is-better values. The default is returned when
// the subject has no history or the pool has no spread.
func normalize(pool population, userID int64, invert bool, def float64) float64 {
	value, ok := pool.value(userID)
	if !ok {
		return def
	}
	min, max, ok := pool.bounds()
	if !ok || max == min {
		return def
	}
	scaled := (value - min) / (max - min)
	if invert {
		scaled = 1 - scaled
	}
	return clamp01(scaled)
}

// normalizeCount scales an offense count against the population max with an
// implicit floor of zero. A subject with no offenses, or a population with
// none, gets the full default.
func normalizeCount(pool population, userID int64) float64 {
	value, ok := pool.value(userID)
	if !ok || value == 0 {
		return defaultReliability
	}
	_, max, ok := pool.bounds()
	if !ok || max == 0 {
		return defaultReliability
	}
	return clamp01(1 - value/max)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
