package testsupport

import (
	"context"
	"testing"

	"greenroom/internal/config"
	"greenroom/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewProducer creates a user holding the producer role.
func NewProducer(t testing.TB, st *store.Store, handle string) *store.User {
	t.Helper()
	return newUserWithRole(t, st, handle, store.RoleProducer)
}

// NewReviewer creates a user holding the reviewer role.
func NewReviewer(t testing.TB, st *store.Store, handle string) *store.User {
	t.Helper()
	return newUserWithRole(t, st, handle, store.RoleReviewer)
}

func newUserWithRole(t testing.TB, st *store.Store, handle, role string) *store.User {
	t.Helper()
	ctx := context.Background()
	user, err := st.CreateUser(ctx, handle, handle)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", handle, err)
	}
	if err := st.GrantRole(ctx, user.ID, role); err != nil {
		t.Fatalf("GrantRole(%s, %s): %v", handle, role, err)
	}
	return user
}

// NewCollection creates a collection with the given number of unit-weight
// topics and returns it with its topics.
func NewCollection(t testing.TB, st *store.Store, title string, topicCount int) (*store.Collection, []*store.Topic) {
	t.Helper()
	ctx := context.Background()
	collection, err := st.CreateCollection(ctx, title)
	if err != nil {
		t.Fatalf("CreateCollection(%s): %v", title, err)
	}
	topics := make([]*store.Topic, 0, topicCount)
	for i := 0; i < topicCount; i++ {
		topic, err := st.CreateTopic(ctx, collection.ID, title+" topic", "", 1)
		if err != nil {
			t.Fatalf("CreateTopic: %v", err)
		}
		topics = append(topics, topic)
	}
	return collection, topics
}

// Subscribe registers a producer's interest in a collection, failing the
// test on error.
func Subscribe(t testing.TB, st *store.Store, userID, collectionID int64) {
	t.Helper()
	if err := st.Subscribe(context.Background(), userID, collectionID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
}

// SetProducerRating sets a producer's rating directly for ordering tests.
func SetProducerRating(t testing.TB, st *store.Store, userID int64, rating float64) {
	t.Helper()
	if err := st.UpdateProducerScore(context.Background(), userID, rating, 0); err != nil {
		t.Fatalf("UpdateProducerScore: %v", err)
	}
}

// SetReviewerRating sets a reviewer's rating directly for ordering tests.
func SetReviewerRating(t testing.TB, st *store.Store, userID int64, rating float64) {
	t.Helper()
	if err := st.UpdateReviewerScore(context.Background(), userID, rating, 0); err != nil {
		t.Fatalf("UpdateReviewerScore: %v", err)
	}
}
