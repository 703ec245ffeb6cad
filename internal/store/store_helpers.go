package store

import (
	"database/sql"
	"errors"
	"time"
)

const userColumns = "id, handle, display_name, banned, producer_rating, producer_points, reviewer_rating, reviewer_points, created_at, updated_at"

const workItemColumns = "id, producer_id, topic_id, status, created_at, due_at, updated_at, final_score, judged_at, extension_offered"

const topicColumns = "id, collection_id, title, external_ref, complexity_weight, created_at"

const assignmentColumns = "id, reviewer_id, artifact_id, status, created_at, due_at, extended, completed_at"

const artifactColumns = "id, work_item_id, external_ref, duration_seconds, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(scanner rowScanner) (*User, error) {
	var (
		user       User
		banned     sql.NullInt64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&user.ID,
		&user.Handle,
		&user.DisplayName,
		&banned,
		&user.ProducerRating,
		&user.ProducerPoints,
		&user.ReviewerRating,
		&user.ReviewerPoints,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	user.Banned = banned.Valid && banned.Int64 != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		user.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		user.UpdatedAt = updated
	}
	return &user, nil
}

func scanWorkItem(scanner rowScanner) (*WorkItem, error) {
	var (
		item       WorkItem
		statusStr  string
		createdRaw string
		dueRaw     string
		updatedRaw string
		finalScore sql.NullFloat64
		judgedRaw  sql.NullString
		extended   sql.NullInt64
	)
	if err := scanner.Scan(
		&item.ID,
		&item.ProducerID,
		&item.TopicID,
		&statusStr,
		&createdRaw,
		&dueRaw,
		&updatedRaw,
		&finalScore,
		&judgedRaw,
		&extended,
	); err != nil {
		return nil, err
	}
	item.Status = Status(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if due, err := parseTimeString(dueRaw); err == nil {
		item.DueAt = due
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if finalScore.Valid {
		v := finalScore.Float64
		item.FinalScore = &v
	}
	if judgedRaw.Valid {
		if judged, err := parseTimeString(judgedRaw.String); err == nil {
			item.JudgedAt = &judged
		}
	}
	item.ExtensionOffered = extended.Valid && extended.Int64 != 0
	return &item, nil
}

func scanTopic(scanner rowScanner) (*Topic, error) {
	var (
		topic      Topic
		ref        sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&topic.ID,
		&topic.CollectionID,
		&topic.Title,
		&ref,
		&topic.ComplexityWeight,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	topic.ExternalRef = ref.String
	if created, err := parseTimeString(createdRaw); err == nil {
		topic.CreatedAt = created
	}
	return &topic, nil
}

func scanAssignment(scanner rowScanner) (*ReviewAssignment, error) {
	var (
		assignment   ReviewAssignment
		statusStr    string
		createdRaw   string
		dueRaw       string
		extended     sql.NullInt64
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&assignment.ID,
		&assignment.ReviewerID,
		&assignment.ArtifactID,
		&statusStr,
		&createdRaw,
		&dueRaw,
		&extended,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	assignment.Status = ReviewStatus(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		assignment.CreatedAt = created
	}
	if due, err := parseTimeString(dueRaw); err == nil {
		assignment.DueAt = due
	}
	assignment.Extended = extended.Valid && extended.Int64 != 0
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			assignment.CompletedAt = &completed
		}
	}
	return &assignment, nil
}

func scanArtifact(scanner rowScanner) (*Artifact, error) {
	var (
		artifact   Artifact
		createdRaw string
	)
	if err := scanner.Scan(
		&artifact.ID,
		&artifact.WorkItemID,
		&artifact.ExternalRef,
		&artifact.DurationSeconds,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		artifact.CreatedAt = created
	}
	return &artifact, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
