package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateCollection inserts a new collection.
func (s *Store) CreateCollection(ctx context.Context, title string) (*Collection, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("collection title is empty")
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO collections (title, created_at) VALUES (?, ?)`,
		title,
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Collection{ID: id, Title: title}, nil
}

// GetCollection fetches a collection by identifier. Returns (nil, nil) when
// absent.
func (s *Store) GetCollection(ctx context.Context, id int64) (*Collection, error) {
	return s.collectionBy(ctx, `id = ?`, id)
}

// GetCollectionByTitle fetches a collection by exact title. Returns
// (nil, nil) when absent.
func (s *Store) GetCollectionByTitle(ctx context.Context, title string) (*Collection, error) {
	return s.collectionBy(ctx, `title = ?`, strings.TrimSpace(title))
}

func (s *Store) collectionBy(ctx context.Context, where string, arg any) (*Collection, error) {
	var (
		collection Collection
		createdRaw string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, created_at FROM collections WHERE `+where,
		arg,
	).Scan(&collection.ID, &collection.Title, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if created, parseErr := parseTimeString(createdRaw); parseErr == nil {
		collection.CreatedAt = created
	}
	return &collection, nil
}

// ListCollections returns all collections ordered by identifier.
func (s *Store) ListCollections(ctx context.Context) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at FROM collections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []*Collection
	for rows.Next() {
		var (
			collection Collection
			createdRaw string
		)
		if err := rows.Scan(&collection.ID, &collection.Title, &createdRaw); err != nil {
			return nil, err
		}
		if created, parseErr := parseTimeString(createdRaw); parseErr == nil {
			collection.CreatedAt = created
		}
		collections = append(collections, &collection)
	}
	return collections, rows.Err()
}

// CreateTopic inserts a new topic into a collection.
func (s *Store) CreateTopic(ctx context.Context, collectionID int64, title, externalRef string, complexityWeight float64) (*Topic, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("topic title is empty")
	}
	if complexityWeight <= 0 {
		return nil, fmt.Errorf("complexity weight must be positive, got %g", complexityWeight)
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO topics (collection_id, title, external_ref, complexity_weight, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		collectionID,
		title,
		nullableString(externalRef),
		complexityWeight,
		formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTopic(ctx, id)
}

// GetTopic fetches a topic by identifier. Returns (nil, nil) when absent.
func (s *Store) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
	topic, err := scanTopic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return topic, nil
}

// TopicsInCollection returns a collection's topics ordered by identifier.
func (s *Store) TopicsInCollection(ctx context.Context, collectionID int64) ([]*Topic, error) {
	return s.queryTopics(ctx, `SELECT `+topicColumns+` FROM topics WHERE collection_id = ? ORDER BY id`, collectionID)
}

// FreeTopics returns topics with no occupying work item, ordered by
// identifier so assignment picks them up FIFO by creation order.
func (s *Store) FreeTopics(ctx context.Context) ([]*Topic, error) {
	return s.queryTopics(
		ctx,
		`SELECT `+topicColumns+` FROM topics t
         WHERE NOT EXISTS (
             SELECT 1 FROM work_items w
             WHERE w.topic_id = t.id
               AND w.status IN (?, ?, ?, ?)
         )
         ORDER BY t.id`,
		StatusIssued, StatusSubmitted, StatusAwaitingPublication, StatusPublished,
	)
}

func (s *Store) queryTopics(ctx context.Context, query string, args ...any) ([]*Topic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}

// Subscribe records a producer's interest in a collection. Subscribing
// twice is a no-op.
func (s *Store) Subscribe(ctx context.Context, userID, collectionID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR IGNORE INTO subscriptions (user_id, collection_id, created_at) VALUES (?, ?, ?)`,
		userID,
		collectionID,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes a producer's interest in a collection.
func (s *Store) Unsubscribe(ctx context.Context, userID, collectionID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND collection_id = ?`,
		userID,
		collectionID,
	); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// SubscribedCollectionIDs returns the collections a user subscribes to.
func (s *Store) SubscribedCollectionIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT collection_id FROM subscriptions WHERE user_id = ? ORDER BY collection_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("subscribed collections: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OccupiedCollectionIDs returns collections containing a topic with an
// in-progress work item. Assignment skips these for a pass to spread work
// across collections.
func (s *Store) OccupiedCollectionIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT t.collection_id
         FROM work_items w JOIN topics t ON t.id = w.topic_id
         WHERE w.status IN (?, ?)`,
		StatusIssued, StatusSubmitted,
	)
	if err != nil {
		return nil, fmt.Errorf("occupied collections: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
