package store

import (
	"context"
	"fmt"
)

// Population aggregates for rating normalization. Each query returns one
// row per user with relevant history; users with no history are absent and
// fall back to the documented neutral defaults in the rating engine.

// ProducerQualityStats returns each producer's mean final score over
// judged work items.
func (s *Store) ProducerQualityStats(ctx context.Context) ([]SubjectValue, error) {
	return s.querySubjectValues(
		ctx,
		`SELECT producer_id, AVG(final_score)
         FROM work_items
         WHERE final_score IS NOT NULL
         GROUP BY producer_id`,
	)
}

// ProducerPromptnessStats returns each producer's mean complexity-relative
// completion duration in seconds. Unsubmitted work counts at its running
// duration so a stalled item drags the average; abandoned items are left
// out. Lower is better; the rating engine inverts during normalization.
func (s *Store) ProducerPromptnessStats(ctx context.Context) ([]SubjectValue, error) {
	return s.querySubjectValues(
		ctx,
		`SELECT w.producer_id,
                AVG((julianday(COALESCE(a.created_at, 'now')) - julianday(w.created_at)) * 86400.0 / t.complexity_weight)
         FROM work_items w
         JOIN topics t ON t.id = w.topic_id
         LEFT JOIN artifacts a ON a.work_item_id = w.id
         WHERE w.status != ?
         GROUP BY w.producer_id`,
		StatusAbandoned,
	)
}

// ProducerReliabilityStats returns each producer's count of abandoned or
// expired work items. Zero-count producers are absent.
func (s *Store) ProducerReliabilityStats(ctx context.Context) ([]SubjectValue, error) {
	return s.querySubjectValues(
		ctx,
		`SELECT producer_id, CAST(COUNT(1) AS REAL)
         FROM work_items
         WHERE status IN (?, ?)
         GROUP BY producer_id`,
		StatusAbandoned, StatusExpired,
	)
}

// ReviewerAccuracyStats returns each reviewer's mean absolute deviation of
// their verdicts from the per-artifact mean verdict.
func (s *Store) ReviewerAccuracyStats(ctx context.Context) ([]SubjectValue, error) {
	return s.querySubjectValues(
		ctx,
		`SELECT ra.reviewer_id, AVG(ABS(v.score - am.mean_score))
         FROM verdicts v
         JOIN review_assignments ra ON ra.id = v.review_assignment_id
         JOIN (
             SELECT ra2.artifact_id AS artifact_id, AVG(v2.score) AS mean_score
             FROM verdicts v2
             JOIN review_assignments ra2 ON ra2.id = v2.review_assignment_id
             GROUP BY ra2.artifact_id
         ) am ON am.artifact_id = ra.artifact_id
         GROUP BY ra.reviewer_id`,
	)
}

// ReviewerReliabilityStats returns each reviewer's count of expired review
// assignments.
func (s *Store) ReviewerReliabilityStats(ctx context.Context) ([]SubjectValue, error) {
	return s.querySubjectValues(
		ctx,
		`SELECT reviewer_id, CAST(COUNT(1) AS REAL)
         FROM review_assignments
         WHERE status = ?
         GROUP BY reviewer_id`,
		ReviewExpired,
	)
}

// ReviewerPromptnessStats returns each reviewer's mean review turnaround
// in hours over completed assignments.
func (s *Store) ReviewerPromptnessStats(ctx context.Context) ([]SubjectValue, error) {
	return s.querySubjectValues(
		ctx,
		`SELECT reviewer_id,
                AVG((julianday(completed_at) - julianday(created_at)) * 24.0)
         FROM review_assignments
         WHERE status = ? AND completed_at IS NOT NULL
         GROUP BY reviewer_id`,
		ReviewCompleted,
	)
}

func (s *Store) querySubjectValues(ctx context.Context, query string, args ...any) ([]SubjectValue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("subject values: %w", err)
	}
	defer rows.Close()

	var values []SubjectValue
	for rows.Next() {
		var value SubjectValue
		if err := rows.Scan(&value.UserID, &value.Value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
