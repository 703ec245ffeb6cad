package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"greenroom/internal/store"
	"greenroom/internal/testsupport"
)

func TestOpenCreatesSchemaAndRoundTripsUser(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	user, err := st.CreateUser(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected user ID to be assigned")
	}
	if user.ProducerRating != 0.8 || user.ReviewerRating != 0.8 {
		t.Fatalf("expected neutral starting ratings, got %#v", user)
	}

	fetched, err := st.GetUserByHandle(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByHandle failed: %v", err)
	}
	if fetched == nil || fetched.ID != user.ID {
		t.Fatalf("expected to find inserted user, got %#v", fetched)
	}

	missing, err := st.GetUser(ctx, 9999)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user, got %#v", missing)
	}
}

func TestRolesGrantRevoke(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	user := testsupport.NewProducer(t, st, "bob")

	has, err := st.HasRole(ctx, user.ID, store.RoleProducer)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if !has {
		t.Fatal("expected producer role after grant")
	}

	// Double grant is a no-op.
	if err := st.GrantRole(ctx, user.ID, store.RoleProducer); err != nil {
		t.Fatalf("second GrantRole failed: %v", err)
	}

	if err := st.RevokeRole(ctx, user.ID, store.RoleProducer); err != nil {
		t.Fatalf("RevokeRole failed: %v", err)
	}
	has, err = st.HasRole(ctx, user.ID, store.RoleProducer)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if has {
		t.Fatal("expected role gone after revoke")
	}
}

func TestUsersWithRoleExcludesBanned(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	keep := testsupport.NewProducer(t, st, "keep")
	banned := testsupport.NewProducer(t, st, "banned")
	if err := st.SetBanned(ctx, banned.ID, true); err != nil {
		t.Fatalf("SetBanned failed: %v", err)
	}

	users, err := st.UsersWithRole(ctx, store.RoleProducer)
	if err != nil {
		t.Fatalf("UsersWithRole failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != keep.ID {
		t.Fatalf("expected only unbanned producer, got %#v", users)
	}
}

func TestCreateWorkItemEnforcesProducerOccupancy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "Cooking", 2)
	due := time.Now().Add(72 * time.Hour)

	if _, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, due); err != nil {
		t.Fatalf("first CreateWorkItem failed: %v", err)
	}

	_, err := st.CreateWorkItem(ctx, producer.ID, topics[1].ID, due)
	if !errors.Is(err, store.ErrConstraintRace) {
		t.Fatalf("expected ErrConstraintRace for busy producer, got %v", err)
	}
}

func TestCreateWorkItemEnforcesTopicOccupancy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewProducer(t, st, "first")
	second := testsupport.NewProducer(t, st, "second")
	_, topics := testsupport.NewCollection(t, st, "History", 1)
	due := time.Now().Add(72 * time.Hour)

	if _, err := st.CreateWorkItem(ctx, first.ID, topics[0].ID, due); err != nil {
		t.Fatalf("first CreateWorkItem failed: %v", err)
	}

	_, err := st.CreateWorkItem(ctx, second.ID, topics[0].ID, due)
	if !errors.Is(err, store.ErrConstraintRace) {
		t.Fatalf("expected ErrConstraintRace for occupied topic, got %v", err)
	}
}

func TestTopicFreedAfterTerminalStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	other := testsupport.NewProducer(t, st, "other")
	_, topics := testsupport.NewCollection(t, st, "Science", 1)
	due := time.Now().Add(72 * time.Hour)

	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, due)
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	if err := st.MarkExpired(ctx, item.ID); err != nil {
		t.Fatalf("MarkExpired failed: %v", err)
	}

	free, err := st.FreeTopics(ctx)
	if err != nil {
		t.Fatalf("FreeTopics failed: %v", err)
	}
	if len(free) != 1 || free[0].ID != topics[0].ID {
		t.Fatalf("expected topic freed after expiry, got %#v", free)
	}

	if _, err := st.CreateWorkItem(ctx, other.ID, topics[0].ID, due); err != nil {
		t.Fatalf("reassignment after expiry failed: %v", err)
	}
}

func TestSubmitWorkItemCreatesArtifactOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "Music", 1)
	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	artifact, err := st.SubmitWorkItem(ctx, item.ID, "ref-1", 600)
	if err != nil {
		t.Fatalf("SubmitWorkItem failed: %v", err)
	}
	if artifact == nil || artifact.WorkItemID != item.ID {
		t.Fatalf("unexpected artifact: %#v", artifact)
	}

	updated, err := st.GetWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if updated.Status != store.StatusSubmitted {
		t.Fatalf("expected submitted status, got %s", updated.Status)
	}

	if _, err := st.SubmitWorkItem(ctx, item.ID, "ref-2", 600); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double submit, got %v", err)
	}
}

func TestExtensionOfferAndAccept(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "Travel", 1)
	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	// Accepting before any offer is invalid.
	if err := st.AcceptExtension(ctx, item.ID, time.Now().Add(48*time.Hour)); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition without offer, got %v", err)
	}

	if err := st.OfferExtension(ctx, item.ID); err != nil {
		t.Fatalf("OfferExtension failed: %v", err)
	}
	if err := st.OfferExtension(ctx, item.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected single offer only, got %v", err)
	}

	newDue := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	if err := st.AcceptExtension(ctx, item.ID, newDue); err != nil {
		t.Fatalf("AcceptExtension failed: %v", err)
	}

	updated, err := st.GetWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if updated.ExtensionOffered {
		t.Fatal("expected offer flag cleared after acceptance")
	}
	if !updated.DueAt.Equal(newDue) {
		t.Fatalf("due date not pushed: got %v want %v", updated.DueAt, newDue)
	}
}

func TestReviewAssignmentGuards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	reviewer := testsupport.NewReviewer(t, st, "rev")
	_, topics := testsupport.NewCollection(t, st, "Art", 2)
	due := time.Now().Add(25 * time.Hour)

	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, due)
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	artifact, err := st.SubmitWorkItem(ctx, item.ID, "ref-1", 600)
	if err != nil {
		t.Fatalf("SubmitWorkItem failed: %v", err)
	}

	// The producer cannot review their own artifact.
	if _, err := st.CreateReviewAssignment(ctx, producer.ID, artifact.ID, due); !errors.Is(err, store.ErrConstraintRace) {
		t.Fatalf("expected self-review rejected, got %v", err)
	}

	assignment, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, due)
	if err != nil {
		t.Fatalf("CreateReviewAssignment failed: %v", err)
	}
	if assignment.Status != store.ReviewPending {
		t.Fatalf("expected pending assignment, got %s", assignment.Status)
	}

	// One pending assignment per reviewer.
	if _, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, due); !errors.Is(err, store.ErrConstraintRace) {
		t.Fatalf("expected busy reviewer rejected, got %v", err)
	}
}

func TestReviewerNeverReassignedSameTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewProducer(t, st, "first")
	second := testsupport.NewProducer(t, st, "second")
	reviewer := testsupport.NewReviewer(t, st, "rev")
	_, topics := testsupport.NewCollection(t, st, "Film", 1)
	due := time.Now().Add(25 * time.Hour)

	item, err := st.CreateWorkItem(ctx, first.ID, topics[0].ID, due)
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	artifact, err := st.SubmitWorkItem(ctx, item.ID, "ref-1", 600)
	if err != nil {
		t.Fatalf("SubmitWorkItem failed: %v", err)
	}
	assignment, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, due)
	if err != nil {
		t.Fatalf("CreateReviewAssignment failed: %v", err)
	}
	if _, err := st.CompleteAssignment(ctx, assignment.ID, 2, "weak"); err != nil {
		t.Fatalf("CompleteAssignment failed: %v", err)
	}
	if err := st.MarkJudged(ctx, item.ID, 0.4, false); err != nil {
		t.Fatalf("MarkJudged failed: %v", err)
	}

	// Topic is free after rejection; a second producer takes it.
	retry, err := st.CreateWorkItem(ctx, second.ID, topics[0].ID, due)
	if err != nil {
		t.Fatalf("retry CreateWorkItem failed: %v", err)
	}
	retryArtifact, err := st.SubmitWorkItem(ctx, retry.ID, "ref-2", 600)
	if err != nil {
		t.Fatalf("retry SubmitWorkItem failed: %v", err)
	}

	if _, err := st.CreateReviewAssignment(ctx, reviewer.ID, retryArtifact.ID, due); !errors.Is(err, store.ErrConstraintRace) {
		t.Fatalf("expected same-topic reviewer rejected, got %v", err)
	}

	reviewed, err := st.HasReviewedTopic(ctx, reviewer.ID, topics[0].ID)
	if err != nil {
		t.Fatalf("HasReviewedTopic failed: %v", err)
	}
	if !reviewed {
		t.Fatal("expected topic overlap recorded")
	}
}

func TestCompleteAssignmentRecordsSingleVerdict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	reviewer := testsupport.NewReviewer(t, st, "rev")
	_, topics := testsupport.NewCollection(t, st, "Games", 1)
	due := time.Now().Add(25 * time.Hour)

	item, _ := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, due)
	artifact, _ := st.SubmitWorkItem(ctx, item.ID, "ref-1", 600)
	assignment, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, due)
	if err != nil {
		t.Fatalf("CreateReviewAssignment failed: %v", err)
	}

	verdict, err := st.CompleteAssignment(ctx, assignment.ID, 4.5, "solid")
	if err != nil {
		t.Fatalf("CompleteAssignment failed: %v", err)
	}
	if verdict.Score != 4.5 || verdict.Comment != "solid" {
		t.Fatalf("unexpected verdict: %#v", verdict)
	}

	if _, err := st.CompleteAssignment(ctx, assignment.ID, 1, "again"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected second completion rejected, got %v", err)
	}

	scores, err := st.VerdictScores(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("VerdictScores failed: %v", err)
	}
	if len(scores) != 1 || scores[0] != 4.5 {
		t.Fatalf("unexpected scores: %v", scores)
	}
}

func TestExtendReviewAssignmentOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	reviewer := testsupport.NewReviewer(t, st, "rev")
	_, topics := testsupport.NewCollection(t, st, "Crafts", 1)
	due := time.Now().Add(25 * time.Hour)

	item, _ := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, due)
	artifact, _ := st.SubmitWorkItem(ctx, item.ID, "ref-1", 600)
	assignment, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, due)
	if err != nil {
		t.Fatalf("CreateReviewAssignment failed: %v", err)
	}

	if err := st.ExtendReviewAssignment(ctx, assignment.ID, due.Add(time.Hour)); err != nil {
		t.Fatalf("first extension failed: %v", err)
	}
	if err := st.ExtendReviewAssignment(ctx, assignment.ID, due.Add(2*time.Hour)); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected second extension rejected, got %v", err)
	}
}

func TestRecentFinalScoresNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, topics := testsupport.NewCollection(t, st, "Pottery", 3)
	scores := []float64{0.6, 0.7, 0.9}
	for i, score := range scores {
		producer := testsupport.NewProducer(t, st, string(rune('a'+i)))
		item, err := st.CreateWorkItem(ctx, producer.ID, topics[i].ID, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("CreateWorkItem failed: %v", err)
		}
		if _, err := st.SubmitWorkItem(ctx, item.ID, "ref", 600); err != nil {
			t.Fatalf("SubmitWorkItem failed: %v", err)
		}
		if err := st.MarkJudged(ctx, item.ID, score, true); err != nil {
			t.Fatalf("MarkJudged failed: %v", err)
		}
	}

	recent, err := st.RecentFinalScores(ctx, 2)
	if err != nil {
		t.Fatalf("RecentFinalScores failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected limit respected, got %v", recent)
	}
	if recent[0] != 0.9 || recent[1] != 0.7 {
		t.Fatalf("expected newest first, got %v", recent)
	}
}

func TestPromptnessStatsCountInFlightAndSkipAbandoned(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stalled := testsupport.NewProducer(t, st, "stalled")
	quitter := testsupport.NewProducer(t, st, "quitter")
	_, topics := testsupport.NewCollection(t, st, "Pottery", 2)

	// stalled holds an issued item that was never submitted; its running
	// duration counts against promptness.
	if _, err := st.CreateWorkItem(ctx, stalled.ID, topics[0].ID, time.Now().Add(72*time.Hour)); err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	// quitter abandoned their only item, which drops out of the average.
	item, err := st.CreateWorkItem(ctx, quitter.ID, topics[1].ID, time.Now().Add(72*time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	if err := st.MarkAbandoned(ctx, item.ID); err != nil {
		t.Fatalf("MarkAbandoned failed: %v", err)
	}

	stats, err := st.ProducerPromptnessStats(ctx)
	if err != nil {
		t.Fatalf("ProducerPromptnessStats failed: %v", err)
	}
	if len(stats) != 1 || stats[0].UserID != stalled.ID {
		t.Fatalf("expected only the stalled producer in stats, got %+v", stats)
	}
	if stats[0].Value < 0 {
		t.Fatalf("expected non-negative running duration, got %g", stats[0].Value)
	}
}

func TestProducerPointsAreMonotone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	user := testsupport.NewProducer(t, st, "prod")
	if err := st.UpdateProducerScore(ctx, user.ID, 0.9, 10); err != nil {
		t.Fatalf("UpdateProducerScore failed: %v", err)
	}
	if err := st.UpdateProducerScore(ctx, user.ID, 0.5, 4); err != nil {
		t.Fatalf("UpdateProducerScore failed: %v", err)
	}

	updated, err := st.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if updated.ProducerRating != 0.5 {
		t.Fatalf("rating should follow recompute, got %g", updated.ProducerRating)
	}
	if updated.ProducerPoints != 10 {
		t.Fatalf("points should never decrease, got %g", updated.ProducerPoints)
	}
}

func TestPipelineSummaryCoversAllStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "Gardening", 1)
	if _, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	summary, err := st.PipelineSummary(ctx)
	if err != nil {
		t.Fatalf("PipelineSummary failed: %v", err)
	}
	if len(summary) != len(store.AllStatuses()) {
		t.Fatalf("expected one row per status, got %d", len(summary))
	}
	var issued int
	for _, row := range summary {
		if row.Status == store.StatusIssued {
			issued = row.Count
		}
	}
	if issued != 1 {
		t.Fatalf("expected one issued item, got %d", issued)
	}
}
