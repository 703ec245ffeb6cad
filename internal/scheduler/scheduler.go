// Package scheduler drives the deadline state machine. A periodic tick
// refreshes ratings, offers deadline extensions, expires overdue work, and
// re-runs both dispatch engines to absorb freed capacity. The scheduler
// owns its lifecycle; engines are injected, never reached through ambient
// state.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"greenroom/internal/assignment"
	"greenroom/internal/config"
	"greenroom/internal/logging"
	"greenroom/internal/notifications"
	"greenroom/internal/rating"
	"greenroom/internal/review"
	"greenroom/internal/roles"
	"greenroom/internal/store"
)

// Scheduler runs the periodic deadline tick.
type Scheduler struct {
	store    *store.Store
	gate     *roles.Gate
	rating   *rating.Engine
	topics   *assignment.Engine
	reviews  *review.Engine
	notifier notifications.Service
	cfg      *config.Config
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a scheduler over the injected engines.
func New(cfg *config.Config, st *store.Store, gate *roles.Gate, ratingEngine *rating.Engine, topics *assignment.Engine, reviews *review.Engine, notifier notifications.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		store:    st,
		gate:     gate,
		rating:   ratingEngine,
		topics:   topics,
		reviews:  reviews,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "scheduler")),
	}
}

func (s *Scheduler) tickInterval() time.Duration {
	return time.Duration(s.cfg.Scheduler.TickIntervalSeconds) * time.Second
}

func (s *Scheduler) errorRetryInterval() time.Duration {
	return time.Duration(s.cfg.Scheduler.ErrorRetrySeconds) * time.Second
}

// Start begins background ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop terminates background ticking and waits for completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	// First tick immediately so a restart catches up on overdue work.
	if err := s.Tick(ctx); err != nil {
		s.logTickError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logTickError(ctx, err)
				// Retry sooner than the regular period after a failure.
				ticker.Reset(s.errorRetryInterval())
				continue
			}
			ticker.Reset(s.tickInterval())
		}
	}
}

func (s *Scheduler) logTickError(ctx context.Context, err error) {
	s.logger.Error("tick failed",
		logging.String(logging.FieldEvent, logging.EventTick),
		logging.Error(err),
	)
	if notifyErr := s.notifier.NotifyError(ctx, err, "scheduler tick"); notifyErr != nil {
		s.logger.Warn("error notification failed", logging.Error(notifyErr))
	}
}

// Tick performs one full pass of the deadline state machine. Only a
// persistent store failure aborts it; everything else is recovered
// per-item.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now().UTC()

	if err := s.refreshActiveProducerRatings(ctx); err != nil {
		return err
	}
	if err := s.offerExtensions(ctx, now); err != nil {
		return err
	}
	if err := s.expireWorkItems(ctx, now); err != nil {
		return err
	}
	if err := s.expireReviewAssignments(ctx, now); err != nil {
		return err
	}

	// Final unconditional dispatch to absorb freed capacity.
	if _, err := s.topics.DispatchTopics(ctx); err != nil {
		return err
	}
	if _, err := s.reviews.DispatchReviews(ctx); err != nil {
		return err
	}

	// Population-wide re-normalization happens once per tick; per-event
	// recomputes in between only refresh the affected category.
	if err := s.rating.RefreshPopulation(ctx); err != nil {
		return err
	}

	s.logger.Debug("tick complete", logging.String(logging.FieldEvent, logging.EventTick))
	return nil
}

// refreshActiveProducerRatings keeps rankings fresh for assignment
// tie-breaks.
func (s *Scheduler) refreshActiveProducerRatings(ctx context.Context) error {
	items, err := s.store.WorkItemsByStatus(ctx, store.StatusIssued, store.StatusSubmitted)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, done := seen[item.ProducerID]; done {
			continue
		}
		seen[item.ProducerID] = struct{}{}
		if err := s.rating.RecomputeProducer(ctx, item.ProducerID); err != nil {
			return err
		}
	}
	return nil
}

// ReserveWindow derives the pre-deadline reserve from the topic's
// complexity, clamped to the configured floor.
func (s *Scheduler) ReserveWindow(complexityWeight float64) time.Duration {
	hours := complexityWeight * s.cfg.Assignment.HoursPerUnitComplexity / 2
	if floor := float64(s.cfg.Assignment.ReserveFloorHours); hours < floor {
		hours = floor
	}
	return time.Duration(hours * float64(time.Hour))
}

// offerExtensions flags issued work items entering their reserve window
// with a one-time extension offer.
func (s *Scheduler) offerExtensions(ctx context.Context, now time.Time) error {
	items, err := s.store.WorkItemsByStatus(ctx, store.StatusIssued)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ExtensionOffered || now.After(item.DueAt) {
			continue
		}
		topic, err := s.store.GetTopic(ctx, item.TopicID)
		if err != nil {
			return err
		}
		if topic == nil {
			continue
		}
		if item.DueAt.Sub(now) > s.ReserveWindow(topic.ComplexityWeight) {
			continue
		}

		if err := s.store.OfferExtension(ctx, item.ID); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			return err
		}
		s.logger.Info("extension offered",
			logging.Int64(logging.FieldWorkItemID, item.ID),
			logging.Int64(logging.FieldUserID, item.ProducerID),
			logging.Time(logging.FieldDueAt, item.DueAt),
		)
		if producer, err := s.store.GetUser(ctx, item.ProducerID); err == nil && producer != nil {
			if err := s.notifier.NotifyExtensionOffered(ctx, producer.Handle, topic.Title, item.DueAt); err != nil {
				s.logger.Warn("extension notification failed",
					logging.String(logging.FieldEvent, logging.EventNotifyFail),
					logging.Error(err),
				)
			}
		}
	}
	return nil
}

// AcceptExtension applies a producer's accepted extension offer: the due
// date moves forward by the topic's reserve window and the offer is spent.
func (s *Scheduler) AcceptExtension(ctx context.Context, workItemID int64) (*store.WorkItem, error) {
	item, err := s.store.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("work item not found")
	}
	topic, err := s.store.GetTopic(ctx, item.TopicID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, errors.New("topic not found")
	}

	newDueAt := item.DueAt.Add(s.ReserveWindow(topic.ComplexityWeight))
	if err := s.store.AcceptExtension(ctx, workItemID, newDueAt); err != nil {
		return nil, err
	}
	return s.store.GetWorkItem(ctx, workItemID)
}

// ExtendReview pushes a pending review assignment's deadline forward once
// by the configured extension, at the reviewer's request before expiry.
func (s *Scheduler) ExtendReview(ctx context.Context, assignmentID int64) (*store.ReviewAssignment, error) {
	ra, err := s.store.GetReviewAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if ra == nil {
		return nil, errors.New("review assignment not found")
	}
	newDueAt := ra.DueAt.Add(time.Duration(s.cfg.Review.ExtensionHours) * time.Hour)
	if err := s.store.ExtendReviewAssignment(ctx, assignmentID, newDueAt); err != nil {
		return nil, err
	}
	return s.store.GetReviewAssignment(ctx, assignmentID)
}

// expireWorkItems marks overdue issued work items expired, strips the
// producer role, and re-runs topic dispatch for the freed topics.
func (s *Scheduler) expireWorkItems(ctx context.Context, now time.Time) error {
	items, err := s.store.WorkItemsByStatus(ctx, store.StatusIssued)
	if err != nil {
		return err
	}

	var expired int
	for _, item := range items {
		if !now.After(item.DueAt) {
			continue
		}
		if err := s.store.MarkExpired(ctx, item.ID); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			return err
		}
		if err := s.gate.Revoke(ctx, item.ProducerID, store.RoleProducer); err != nil {
			return err
		}
		expired++

		s.logger.Info("work item expired",
			logging.String(logging.FieldEvent, logging.EventExpired),
			logging.Int64(logging.FieldWorkItemID, item.ID),
			logging.Int64(logging.FieldUserID, item.ProducerID),
		)
		s.notifyWorkItemExpired(ctx, item)

		if err := s.rating.RecomputeProducer(ctx, item.ProducerID); err != nil {
			s.logger.Warn("producer rating recompute failed",
				logging.Int64(logging.FieldUserID, item.ProducerID),
				logging.Error(err),
			)
		}
	}

	if expired > 0 {
		if _, err := s.topics.DispatchTopics(ctx); err != nil {
			return err
		}
	}
	return nil
}

// expireReviewAssignments marks overdue pending assignments expired,
// freeing the reviewer's slot, and re-runs review dispatch.
func (s *Scheduler) expireReviewAssignments(ctx context.Context, now time.Time) error {
	assignments, err := s.store.PendingAssignments(ctx)
	if err != nil {
		return err
	}

	var expired int
	for _, ra := range assignments {
		if !now.After(ra.DueAt) {
			continue
		}
		if err := s.store.ExpireReviewAssignment(ctx, ra.ID); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			return err
		}
		expired++

		s.logger.Info("review assignment expired",
			logging.String(logging.FieldEvent, logging.EventExpired),
			logging.Int64(logging.FieldReviewID, ra.ID),
			logging.Int64(logging.FieldUserID, ra.ReviewerID),
		)
		s.notifyReviewExpired(ctx, ra)

		if err := s.rating.RecomputeReviewer(ctx, ra.ReviewerID); err != nil {
			s.logger.Warn("reviewer rating recompute failed",
				logging.Int64(logging.FieldUserID, ra.ReviewerID),
				logging.Error(err),
			)
		}
	}

	if expired > 0 {
		if _, err := s.reviews.DispatchReviews(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) notifyWorkItemExpired(ctx context.Context, item *store.WorkItem) {
	producer, err := s.store.GetUser(ctx, item.ProducerID)
	if err != nil || producer == nil {
		return
	}
	topic, err := s.store.GetTopic(ctx, item.TopicID)
	title := ""
	if err == nil && topic != nil {
		title = topic.Title
	}
	if err := s.notifier.NotifyWorkItemExpired(ctx, producer.Handle, title); err != nil {
		s.logger.Warn("expiry notification failed",
			logging.String(logging.FieldEvent, logging.EventNotifyFail),
			logging.Error(err),
		)
	}
}

func (s *Scheduler) notifyReviewExpired(ctx context.Context, ra *store.ReviewAssignment) {
	reviewer, err := s.store.GetUser(ctx, ra.ReviewerID)
	if err != nil || reviewer == nil {
		return
	}
	var title string
	if artifact, err := s.store.GetArtifact(ctx, ra.ArtifactID); err == nil && artifact != nil {
		if item, err := s.store.GetWorkItem(ctx, artifact.WorkItemID); err == nil && item != nil {
			if topic, err := s.store.GetTopic(ctx, item.TopicID); err == nil && topic != nil {
				title = topic.Title
			}
		}
	}
	if err := s.notifier.NotifyReviewExpired(ctx, reviewer.Handle, title); err != nil {
		s.logger.Warn("expiry notification failed",
			logging.String(logging.FieldEvent, logging.EventNotifyFail),
			logging.Error(err),
		)
	}
}
