package scheduler_test

import (
	"context"
	"testing"
	"time"

	"greenroom/internal/assignment"
	"greenroom/internal/config"
	"greenroom/internal/notifications"
	"greenroom/internal/rating"
	"greenroom/internal/review"
	"greenroom/internal/roles"
	"greenroom/internal/scheduler"
	"greenroom/internal/store"
	"greenroom/internal/testsupport"
)

func newScheduler(t *testing.T, cfg *config.Config, st *store.Store) *scheduler.Scheduler {
	t.Helper()
	gate := roles.NewGate(st)
	ratingEngine := rating.NewEngine(st, cfg.Rating, nil)
	notifier := notifications.NewService(cfg)
	topics := assignment.NewEngine(st, gate, notifier, cfg.Assignment, nil)
	reviews := review.NewEngine(st, gate, ratingEngine, topics, notifier, cfg.Review, nil)
	return scheduler.New(cfg, st, gate, ratingEngine, topics, reviews, notifier, nil)
}

func TestTickExpiresOverdueWorkAndStripsRole(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)
	ctx := context.Background()

	slacker := testsupport.NewProducer(t, st, "slacker")
	backup := testsupport.NewProducer(t, st, "backup")
	collection, topics := testsupport.NewCollection(t, st, "C", 1)
	testsupport.Subscribe(t, st, slacker.ID, collection.ID)
	testsupport.Subscribe(t, st, backup.ID, collection.ID)

	item, err := st.CreateWorkItem(ctx, slacker.ID, topics[0].ID, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	expired, err := st.GetWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if expired.Status != store.StatusExpired {
		t.Fatalf("expected expired status, got %s", expired.Status)
	}

	hasRole, err := st.HasRole(ctx, slacker.ID, store.RoleProducer)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if hasRole {
		t.Fatal("expected expiry to strip the producer role")
	}

	// The freed topic goes to the remaining eligible producer in the same
	// tick.
	reissued, err := st.ActiveWorkItemForProducer(ctx, backup.ID)
	if err != nil {
		t.Fatalf("ActiveWorkItemForProducer failed: %v", err)
	}
	if reissued == nil || reissued.TopicID != topics[0].ID {
		t.Fatal("expected the freed topic to be reassigned to the backup producer")
	}
}

func TestTickOffersExtensionInsideReserveWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "C", 2)

	// Unit complexity: reserve window is the 24h floor. Due in 12h is
	// inside it.
	inside, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().UTC().Add(12*time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	offered, err := st.GetWorkItem(ctx, inside.ID)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if !offered.ExtensionOffered {
		t.Fatal("expected an extension offer inside the reserve window")
	}
	if offered.Status != store.StatusIssued {
		t.Fatalf("offer must not change status, got %s", offered.Status)
	}
}

func TestTickLeavesDistantDeadlinesAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "C", 1)

	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().UTC().Add(72*time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}

	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	reread, err := st.GetWorkItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if reread.ExtensionOffered {
		t.Fatal("expected no extension offer outside the reserve window")
	}
	if reread.Status != store.StatusIssued {
		t.Fatalf("expected issued status, got %s", reread.Status)
	}
}

func TestAcceptExtensionPushesDueDate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "C", 1)

	dueAt := time.Now().UTC().Truncate(time.Second).Add(12 * time.Hour)
	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, dueAt)
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	if err := st.OfferExtension(ctx, item.ID); err != nil {
		t.Fatalf("OfferExtension failed: %v", err)
	}

	extended, err := sched.AcceptExtension(ctx, item.ID)
	if err != nil {
		t.Fatalf("AcceptExtension failed: %v", err)
	}

	want := dueAt.Add(sched.ReserveWindow(topics[0].ComplexityWeight))
	if !extended.DueAt.Equal(want) {
		t.Fatalf("expected due date %s, got %s", want, extended.DueAt)
	}
	if extended.ExtensionOffered {
		t.Fatal("accepting must spend the offer")
	}

	// A second acceptance has no offer to spend.
	if _, err := sched.AcceptExtension(ctx, item.ID); err == nil {
		t.Fatal("expected second acceptance to fail")
	}
}

func TestTickExpiresOverdueReviewAssignments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	reviewer := testsupport.NewReviewer(t, st, "rev")
	_, topics := testsupport.NewCollection(t, st, "C", 1)

	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().UTC().Add(72*time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	artifact, err := st.SubmitWorkItem(ctx, item.ID, "ref", 600)
	if err != nil {
		t.Fatalf("SubmitWorkItem failed: %v", err)
	}
	ra, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CreateReviewAssignment failed: %v", err)
	}

	if err := sched.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	expired, err := st.GetReviewAssignment(ctx, ra.ID)
	if err != nil {
		t.Fatalf("GetReviewAssignment failed: %v", err)
	}
	if expired.Status != store.ReviewExpired {
		t.Fatalf("expected expired review, got %s", expired.Status)
	}

	// The slot is free again: the same reviewer is the only candidate and
	// cannot retake a topic whose artifact they already held, so no new
	// pending assignment appears for them.
	pending, err := st.PendingAssignmentForReviewer(ctx, reviewer.ID)
	if err != nil {
		t.Fatalf("PendingAssignmentForReviewer failed: %v", err)
	}
	if pending != nil {
		t.Fatal("expected no reassignment to the expired reviewer")
	}
}

func TestExtendReviewIsOneTime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	reviewer := testsupport.NewReviewer(t, st, "rev")
	_, topics := testsupport.NewCollection(t, st, "C", 1)

	item, err := st.CreateWorkItem(ctx, producer.ID, topics[0].ID, time.Now().UTC().Add(72*time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	artifact, err := st.SubmitWorkItem(ctx, item.ID, "ref", 600)
	if err != nil {
		t.Fatalf("SubmitWorkItem failed: %v", err)
	}
	dueAt := time.Now().UTC().Truncate(time.Second).Add(25 * time.Hour)
	ra, err := st.CreateReviewAssignment(ctx, reviewer.ID, artifact.ID, dueAt)
	if err != nil {
		t.Fatalf("CreateReviewAssignment failed: %v", err)
	}

	extended, err := sched.ExtendReview(ctx, ra.ID)
	if err != nil {
		t.Fatalf("ExtendReview failed: %v", err)
	}
	want := dueAt.Add(time.Duration(cfg.Review.ExtensionHours) * time.Hour)
	if !extended.DueAt.Equal(want) {
		t.Fatalf("expected due date %s, got %s", want, extended.DueAt)
	}

	if _, err := sched.ExtendReview(ctx, ra.ID); err == nil {
		t.Fatal("expected second extension to fail")
	}
}

func TestStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sched := newScheduler(t, cfg, st)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sched.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	sched.Stop()

	// Stop is idempotent and Start works again afterwards.
	sched.Stop()
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	sched.Stop()
}
