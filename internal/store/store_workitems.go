package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateWorkItem atomically verifies the producer is idle and the topic is
// free, then inserts an issued work item. A lost race on either check (or
// on the backing partial unique indexes) returns ErrConstraintRace.
func (s *Store) CreateWorkItem(ctx context.Context, producerID, topicID int64, dueAt time.Time) (*WorkItem, error) {
	now := time.Now().UTC()
	var id int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var busy int
		if err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM work_items WHERE producer_id = ? AND status IN (?, ?)`,
			producerID, StatusIssued, StatusSubmitted,
		).Scan(&busy); err != nil {
			return fmt.Errorf("check producer idle: %w", err)
		}
		if busy > 0 {
			return fmt.Errorf("producer %d already has active work: %w", producerID, ErrConstraintRace)
		}

		var occupied int
		if err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM work_items WHERE topic_id = ? AND status IN (?, ?, ?, ?)`,
			topicID, StatusIssued, StatusSubmitted, StatusAwaitingPublication, StatusPublished,
		).Scan(&occupied); err != nil {
			return fmt.Errorf("check topic free: %w", err)
		}
		if occupied > 0 {
			return fmt.Errorf("topic %d already occupied: %w", topicID, ErrConstraintRace)
		}

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO work_items (producer_id, topic_id, status, created_at, due_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			producerID,
			topicID,
			StatusIssued,
			formatTime(now),
			formatTime(dueAt),
			formatTime(now),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert work item: %w", ErrConstraintRace)
			}
			return fmt.Errorf("insert work item: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetWorkItem(ctx, id)
}

// GetWorkItem fetches a work item by identifier. Returns (nil, nil) when
// absent.
func (s *Store) GetWorkItem(ctx context.Context, id int64) (*WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// ActiveWorkItemForProducer returns the producer's issued or submitted work
// item, if any.
func (s *Store) ActiveWorkItemForProducer(ctx context.Context, producerID int64) (*WorkItem, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE producer_id = ? AND status IN (?, ?) LIMIT 1`,
		producerID, StatusIssued, StatusSubmitted,
	)
	item, err := scanWorkItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active work item: %w", err)
	}
	return item, nil
}

// WorkItemsByStatus returns work items matching a status ordered by
// creation time.
func (s *Store) WorkItemsByStatus(ctx context.Context, statuses ...Status) ([]*WorkItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE status IN (`+placeholders+`) ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("work items by status: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SubmitWorkItem transitions an issued work item to submitted and records
// its artifact in the same transaction. An external ref is minted when the
// caller does not supply one.
func (s *Store) SubmitWorkItem(ctx context.Context, workItemID int64, externalRef string, durationSeconds float64) (*Artifact, error) {
	if externalRef == "" {
		externalRef = uuid.NewString()
	}
	now := formatTime(time.Now())
	var artifactID int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusSubmitted, now, workItemID, StatusIssued,
		)
		if err != nil {
			return fmt.Errorf("mark submitted: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("work item %d is not issued: %w", workItemID, ErrInvalidTransition)
		}

		insert, err := tx.ExecContext(
			ctx,
			`INSERT INTO artifacts (work_item_id, external_ref, duration_seconds, created_at)
             VALUES (?, ?, ?, ?)`,
			workItemID, externalRef, durationSeconds, now,
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		artifactID, err = insert.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetArtifact(ctx, artifactID)
}

// GetArtifact fetches an artifact by identifier. Returns (nil, nil) when
// absent.
func (s *Store) GetArtifact(ctx context.Context, id int64) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return artifact, nil
}

// ArtifactForWorkItem returns the work item's artifact, if submitted.
func (s *Store) ArtifactForWorkItem(ctx context.Context, workItemID int64) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE work_item_id = ?`, workItemID)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact for work item: %w", err)
	}
	return artifact, nil
}

// SetArtifactDuration backfills an artifact's duration.
func (s *Store) SetArtifactDuration(ctx context.Context, artifactID int64, seconds float64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE artifacts SET duration_seconds = ? WHERE id = ?`,
		seconds, artifactID,
	); err != nil {
		return fmt.Errorf("set artifact duration: %w", err)
	}
	return nil
}

// MarkJudged records the quorum outcome: status awaiting_publication when
// accepted, rejected otherwise, with the final score and judgment time.
func (s *Store) MarkJudged(ctx context.Context, workItemID int64, finalScore float64, accepted bool) error {
	status := StatusRejected
	if accepted {
		status = StatusAwaitingPublication
	}
	now := formatTime(time.Now())
	return s.transition(
		ctx,
		`UPDATE work_items SET status = ?, final_score = ?, judged_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		workItemID,
		status, finalScore, now, now, workItemID, StatusSubmitted,
	)
}

// MarkPublished transitions an awaiting-publication work item to published.
func (s *Store) MarkPublished(ctx context.Context, workItemID int64) error {
	now := formatTime(time.Now())
	return s.transition(
		ctx,
		`UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		workItemID,
		StatusPublished, now, workItemID, StatusAwaitingPublication,
	)
}

// MarkAbandoned records a producer opting out of an issued work item.
func (s *Store) MarkAbandoned(ctx context.Context, workItemID int64) error {
	now := formatTime(time.Now())
	return s.transition(
		ctx,
		`UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		workItemID,
		StatusAbandoned, now, workItemID, StatusIssued,
	)
}

// MarkExpired records a deadline pass on an issued work item.
func (s *Store) MarkExpired(ctx context.Context, workItemID int64) error {
	now := formatTime(time.Now())
	return s.transition(
		ctx,
		`UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		workItemID,
		StatusExpired, now, workItemID, StatusIssued,
	)
}

// OfferExtension flags an issued work item as offered a one-time deadline
// extension.
func (s *Store) OfferExtension(ctx context.Context, workItemID int64) error {
	now := formatTime(time.Now())
	return s.transition(
		ctx,
		`UPDATE work_items SET extension_offered = 1, updated_at = ?
         WHERE id = ? AND status = ? AND extension_offered = 0`,
		workItemID,
		now, workItemID, StatusIssued,
	)
}

// AcceptExtension pushes the due date forward and clears the offer flag.
// Valid only while the item is issued with an outstanding offer.
func (s *Store) AcceptExtension(ctx context.Context, workItemID int64, newDueAt time.Time) error {
	now := formatTime(time.Now())
	return s.transition(
		ctx,
		`UPDATE work_items SET due_at = ?, extension_offered = 0, updated_at = ?
         WHERE id = ? AND status = ? AND extension_offered = 1`,
		workItemID,
		formatTime(newDueAt), now, workItemID, StatusIssued,
	)
}

func (s *Store) transition(ctx context.Context, query string, workItemID int64, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("work item %d: %w", workItemID, ErrInvalidTransition)
	}
	return nil
}

// JudgedHistory returns a producer's judged work items in chronological
// judgment order, with the complexity weight of each topic.
func (s *Store) JudgedHistory(ctx context.Context, producerID int64) ([]JudgedWorkItem, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT w.id, w.final_score, t.complexity_weight, w.judged_at
         FROM work_items w JOIN topics t ON t.id = w.topic_id
         WHERE w.producer_id = ? AND w.judged_at IS NOT NULL
         ORDER BY w.judged_at, w.id`,
		producerID,
	)
	if err != nil {
		return nil, fmt.Errorf("judged history: %w", err)
	}
	defer rows.Close()

	var history []JudgedWorkItem
	for rows.Next() {
		var (
			entry     JudgedWorkItem
			judgedRaw string
		)
		if err := rows.Scan(&entry.WorkItemID, &entry.FinalScore, &entry.ComplexityWeight, &judgedRaw); err != nil {
			return nil, err
		}
		if judged, parseErr := parseTimeString(judgedRaw); parseErr == nil {
			entry.JudgedAt = judged
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// CollectionHistoryScores returns a producer's mean final score per
// collection over judged work items.
func (s *Store) CollectionHistoryScores(ctx context.Context, producerID int64) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.collection_id, AVG(w.final_score)
         FROM work_items w JOIN topics t ON t.id = w.topic_id
         WHERE w.producer_id = ? AND w.final_score IS NOT NULL
         GROUP BY t.collection_id`,
		producerID,
	)
	if err != nil {
		return nil, fmt.Errorf("collection history: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]float64)
	for rows.Next() {
		var (
			collectionID int64
			mean         float64
		)
		if err := rows.Scan(&collectionID, &mean); err != nil {
			return nil, err
		}
		scores[collectionID] = mean
	}
	return scores, rows.Err()
}

// RecentFinalScores returns final scores of the most recently judged work
// items, newest first, capped at limit. Used for the rolling acceptance
// threshold.
func (s *Store) RecentFinalScores(ctx context.Context, limit int) ([]float64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT final_score FROM work_items
         WHERE judged_at IS NOT NULL
         ORDER BY judged_at DESC, id DESC
         LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent final scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}
