package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Read-only aggregates for administrative reports. Built with squirrel
// because the report surface grows filters over time and the engine-path
// queries above do not.

// ProducerStanding is one row of the producer leaderboard.
type ProducerStanding struct {
	UserID      int64
	Handle      string
	DisplayName string
	Rating      float64
	Points      float64
	JudgedCount int
	Published   int
}

// ReviewerStanding is one row of the reviewer leaderboard.
type ReviewerStanding struct {
	UserID      int64
	Handle      string
	DisplayName string
	Rating      float64
	Points      float64
	Completed   int
	Expired     int
}

// PipelineCount is a work-item count for one lifecycle status.
type PipelineCount struct {
	Status Status
	Count  int
}

// ScoreBreakdownRow is one judged work item in a producer's points
// breakdown, with the seniority term applied to it.
type ScoreBreakdownRow struct {
	WorkItemID       int64
	TopicTitle       string
	ComplexityWeight float64
	FinalScore       float64
	SeniorityFactor  float64
	Points           float64
}

// ProducerStandings returns the producer leaderboard ordered by rating
// then points, descending.
func (s *Store) ProducerStandings(ctx context.Context) ([]ProducerStanding, error) {
	query, args, err := sq.Select(
		"u.id", "u.handle", "u.display_name", "u.producer_rating", "u.producer_points",
		"COUNT(w.judged_at)",
	).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN w.status = ? THEN 1 ELSE 0 END), 0)", string(StatusPublished))).
		From("users u").
		Join("roles r ON r.user_id = u.id AND r.role = ?", RoleProducer).
		LeftJoin("work_items w ON w.producer_id = u.id").
		GroupBy("u.id").
		OrderBy("u.producer_rating DESC", "u.producer_points DESC", "u.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build producer standings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("producer standings: %w", err)
	}
	defer rows.Close()

	var standings []ProducerStanding
	for rows.Next() {
		var row ProducerStanding
		if err := rows.Scan(
			&row.UserID, &row.Handle, &row.DisplayName,
			&row.Rating, &row.Points, &row.JudgedCount, &row.Published,
		); err != nil {
			return nil, err
		}
		standings = append(standings, row)
	}
	return standings, rows.Err()
}

// ReviewerStandings returns the reviewer leaderboard ordered by rating
// then points, descending.
func (s *Store) ReviewerStandings(ctx context.Context) ([]ReviewerStanding, error) {
	query, args, err := sq.Select(
		"u.id", "u.handle", "u.display_name", "u.reviewer_rating", "u.reviewer_points",
	).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN ra.status = ? THEN 1 ELSE 0 END), 0)", string(ReviewCompleted))).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN ra.status = ? THEN 1 ELSE 0 END), 0)", string(ReviewExpired))).
		From("users u").
		Join("roles r ON r.user_id = u.id AND r.role = ?", RoleReviewer).
		LeftJoin("review_assignments ra ON ra.reviewer_id = u.id").
		GroupBy("u.id").
		OrderBy("u.reviewer_rating DESC", "u.reviewer_points DESC", "u.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reviewer standings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reviewer standings: %w", err)
	}
	defer rows.Close()

	var standings []ReviewerStanding
	for rows.Next() {
		var row ReviewerStanding
		if err := rows.Scan(
			&row.UserID, &row.Handle, &row.DisplayName,
			&row.Rating, &row.Points, &row.Completed, &row.Expired,
		); err != nil {
			return nil, err
		}
		standings = append(standings, row)
	}
	return standings, rows.Err()
}

// PipelineSummary returns work-item counts per status.
func (s *Store) PipelineSummary(ctx context.Context) ([]PipelineCount, error) {
	query, args, err := sq.Select("status", "COUNT(1)").
		From("work_items").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pipeline summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pipeline summary: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, err
		}
		counts[Status(statusStr)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary := make([]PipelineCount, 0, len(allStatuses))
	for _, status := range allStatuses {
		summary = append(summary, PipelineCount{Status: status, Count: counts[status]})
	}
	return summary, nil
}

// ScoreBreakdown returns a producer's judged work items in chronological
// judgment order with the seniority factor and points contribution of
// each, matching UpdateProducerScore's accumulation.
func (s *Store) ScoreBreakdown(ctx context.Context, producerID int64, seniorityMultiplier float64) ([]ScoreBreakdownRow, error) {
	query, args, err := sq.Select("w.id", "t.title", "t.complexity_weight", "w.final_score").
		From("work_items w").
		Join("topics t ON t.id = w.topic_id").
		Where(sq.Eq{"w.producer_id": producerID}).
		Where("w.judged_at IS NOT NULL").
		OrderBy("w.judged_at", "w.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build score breakdown: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("score breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []ScoreBreakdownRow
	factor := 1.0
	for rows.Next() {
		var row ScoreBreakdownRow
		if err := rows.Scan(&row.WorkItemID, &row.TopicTitle, &row.ComplexityWeight, &row.FinalScore); err != nil {
			return nil, err
		}
		row.SeniorityFactor = factor
		row.Points = row.FinalScore * factor * row.ComplexityWeight
		breakdown = append(breakdown, row)
		factor *= seniorityMultiplier
	}
	return breakdown, rows.Err()
}
