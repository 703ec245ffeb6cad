package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateReviewAssignment atomically verifies the reviewer has no pending
// assignment, is not the artifact's producer, and has never reviewed any
// artifact under the same topic, then inserts a pending assignment. A lost
// race returns ErrConstraintRace.
func (s *Store) CreateReviewAssignment(ctx context.Context, reviewerID, artifactID int64, dueAt time.Time) (*ReviewAssignment, error) {
	now := time.Now().UTC()
	var id int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var pending int
		if err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM review_assignments WHERE reviewer_id = ? AND status = ?`,
			reviewerID, ReviewPending,
		).Scan(&pending); err != nil {
			return fmt.Errorf("check reviewer free: %w", err)
		}
		if pending > 0 {
			return fmt.Errorf("reviewer %d already has a pending review: %w", reviewerID, ErrConstraintRace)
		}

		var producerID, topicID int64
		if err := tx.QueryRowContext(
			ctx,
			`SELECT w.producer_id, w.topic_id
             FROM artifacts a JOIN work_items w ON w.id = a.work_item_id
             WHERE a.id = ?`,
			artifactID,
		).Scan(&producerID, &topicID); err != nil {
			return fmt.Errorf("resolve artifact: %w", err)
		}
		if producerID == reviewerID {
			return fmt.Errorf("reviewer %d produced artifact %d: %w", reviewerID, artifactID, ErrConstraintRace)
		}

		var reviewedTopic int
		if err := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1)
             FROM review_assignments ra
             JOIN artifacts a ON a.id = ra.artifact_id
             JOIN work_items w ON w.id = a.work_item_id
             WHERE ra.reviewer_id = ? AND w.topic_id = ?`,
			reviewerID, topicID,
		).Scan(&reviewedTopic); err != nil {
			return fmt.Errorf("check topic overlap: %w", err)
		}
		if reviewedTopic > 0 {
			return fmt.Errorf("reviewer %d already reviewed topic %d: %w", reviewerID, topicID, ErrConstraintRace)
		}

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO review_assignments (reviewer_id, artifact_id, status, created_at, due_at)
             VALUES (?, ?, ?, ?, ?)`,
			reviewerID, artifactID, ReviewPending, formatTime(now), formatTime(dueAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert review assignment: %w", ErrConstraintRace)
			}
			return fmt.Errorf("insert review assignment: %w", err)
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
	return s.GetReviewAssignment(ctx, id)
}

// GetReviewAssignment fetches an assignment by identifier. Returns
// (nil, nil) when absent.
func (s *Store) GetReviewAssignment(ctx context.Context, id int64) (*ReviewAssignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM review_assignments WHERE id = ?`, id)
	assignment, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review assignment: %w", err)
	}
	return assignment, nil
}

// PendingAssignmentForReviewer returns the reviewer's pending assignment,
// if any.
func (s *Store) PendingAssignmentForReviewer(ctx context.Context, reviewerID int64) (*ReviewAssignment, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+assignmentColumns+` FROM review_assignments WHERE reviewer_id = ? AND status = ? LIMIT 1`,
		reviewerID, ReviewPending,
	)
	assignment, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending assignment: %w", err)
	}
	return assignment, nil
}

// PendingAssignments returns all pending assignments ordered by due date.
func (s *Store) PendingAssignments(ctx context.Context) ([]*ReviewAssignment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assignmentColumns+` FROM review_assignments WHERE status = ? ORDER BY due_at, id`,
		ReviewPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*ReviewAssignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

// PendingAssignmentCount returns the system-wide count of pending
// assignments. The dispatcher throttles against it.
func (s *Store) PendingAssignmentCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM review_assignments WHERE status = ?`,
		ReviewPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending assignment count: %w", err)
	}
	return count, nil
}

// ReviewBacklog returns submitted artifacts whose pending+completed
// assignment count is below quorum, ordered by the producer's rating
// descending so high-quality work surfaces first.
func (s *Store) ReviewBacklog(ctx context.Context, quorum int) ([]*BacklogEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT a.id, a.work_item_id, a.external_ref, a.duration_seconds, a.created_at,
                w.id, w.topic_id, w.producer_id, u.producer_rating,
                (SELECT COUNT(1) FROM review_assignments ra
                 WHERE ra.artifact_id = a.id AND ra.status IN (?, ?)) AS review_count
         FROM artifacts a
         JOIN work_items w ON w.id = a.work_item_id
         JOIN users u ON u.id = w.producer_id
         WHERE w.status = ?
           AND (SELECT COUNT(1) FROM review_assignments ra
                WHERE ra.artifact_id = a.id AND ra.status IN (?, ?)) < ?
         ORDER BY u.producer_rating DESC, w.id`,
		ReviewPending, ReviewCompleted,
		StatusSubmitted,
		ReviewPending, ReviewCompleted,
		quorum,
	)
	if err != nil {
		return nil, fmt.Errorf("review backlog: %w", err)
	}
	defer rows.Close()

	var entries []*BacklogEntry
	for rows.Next() {
		var (
			entry      BacklogEntry
			createdRaw string
		)
		if err := rows.Scan(
			&entry.Artifact.ID,
			&entry.Artifact.WorkItemID,
			&entry.Artifact.ExternalRef,
			&entry.Artifact.DurationSeconds,
			&createdRaw,
			&entry.WorkItemID,
			&entry.TopicID,
			&entry.ProducerID,
			&entry.ProducerRating,
			&entry.ReviewCount,
		); err != nil {
			return nil, err
		}
		if created, parseErr := parseTimeString(createdRaw); parseErr == nil {
			entry.Artifact.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// HasReviewedTopic reports whether a reviewer holds any assignment, in any
// status, for an artifact under the topic.
func (s *Store) HasReviewedTopic(ctx context.Context, reviewerID, topicID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1)
         FROM review_assignments ra
         JOIN artifacts a ON a.id = ra.artifact_id
         JOIN work_items w ON w.id = a.work_item_id
         WHERE ra.reviewer_id = ? AND w.topic_id = ?`,
		reviewerID, topicID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check topic overlap: %w", err)
	}
	return count > 0, nil
}

// CompleteAssignment transitions a pending assignment to completed and
// records its verdict in the same transaction. One verdict per assignment
// is enforced by a unique index.
func (s *Store) CompleteAssignment(ctx context.Context, assignmentID int64, score float64, comment string) (*Verdict, error) {
	now := formatTime(time.Now())
	var verdictID int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE review_assignments SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
			ReviewCompleted, now, assignmentID, ReviewPending,
		)
		if err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("assignment %d is not pending: %w", assignmentID, ErrInvalidTransition)
		}

		insert, err := tx.ExecContext(
			ctx,
			`INSERT INTO verdicts (review_assignment_id, score, comment, created_at)
             VALUES (?, ?, ?, ?)`,
			assignmentID, score, nullableString(comment), now,
		)
		if err != nil {
			return fmt.Errorf("insert verdict: %w", err)
		}
		verdictID, err = insert.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.getVerdict(ctx, verdictID)
}

func (s *Store) getVerdict(ctx context.Context, id int64) (*Verdict, error) {
	var (
		verdict    Verdict
		comment    sql.NullString
		createdRaw string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, review_assignment_id, score, comment, created_at FROM verdicts WHERE id = ?`,
		id,
	).Scan(&verdict.ID, &verdict.ReviewAssignmentID, &verdict.Score, &comment, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verdict: %w", err)
	}
	verdict.Comment = comment.String
	if created, parseErr := parseTimeString(createdRaw); parseErr == nil {
		verdict.CreatedAt = created
	}
	return &verdict, nil
}

// ExpireReviewAssignment transitions a pending assignment to expired.
func (s *Store) ExpireReviewAssignment(ctx context.Context, assignmentID int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE review_assignments SET status = ? WHERE id = ? AND status = ?`,
		ReviewExpired, assignmentID, ReviewPending,
	)
	if err != nil {
		return fmt.Errorf("expire assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("assignment %d is not pending: %w", assignmentID, ErrInvalidTransition)
	}
	return nil
}

// ExtendReviewAssignment pushes a pending assignment's due date forward
// once. A second extension returns ErrInvalidTransition.
func (s *Store) ExtendReviewAssignment(ctx context.Context, assignmentID int64, newDueAt time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE review_assignments SET due_at = ?, extended = 1
         WHERE id = ? AND status = ? AND extended = 0`,
		formatTime(newDueAt), assignmentID, ReviewPending,
	)
	if err != nil {
		return fmt.Errorf("extend assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("assignment %d cannot be extended: %w", assignmentID, ErrInvalidTransition)
	}
	return nil
}

// VerdictScores returns completed verdict scores for an artifact.
func (s *Store) VerdictScores(ctx context.Context, artifactID int64) ([]float64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT v.score
         FROM verdicts v JOIN review_assignments ra ON ra.id = v.review_assignment_id
         WHERE ra.artifact_id = ?
         ORDER BY v.id`,
		artifactID,
	)
	if err != nil {
		return nil, fmt.Errorf("verdict scores: %w", err)
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

// CompletedAssignmentCount returns the number of completed assignments for
// an artifact.
func (s *Store) CompletedAssignmentCount(ctx context.Context, artifactID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM review_assignments WHERE artifact_id = ? AND status = ?`,
		artifactID, ReviewCompleted,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("completed assignment count: %w", err)
	}
	return count, nil
}

// ReviewedDurationCredit returns the sum of artifact durations over a
// reviewer's completed assignments. Reviewer points derive from it.
func (s *Store) ReviewedDurationCredit(ctx context.Context, reviewerID int64) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT SUM(a.duration_seconds)
         FROM review_assignments ra JOIN artifacts a ON a.id = ra.artifact_id
         WHERE ra.reviewer_id = ? AND ra.status = ?`,
		reviewerID, ReviewCompleted,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("reviewed duration credit: %w", err)
	}
	return total.Float64, nil
}
