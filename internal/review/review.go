// Package review assigns peer reviewers to submitted artifacts until a
// quorum of verdicts is reached, then judges the work item against a
// rolling acceptance threshold.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"greenroom/internal/assignment"
	"greenroom/internal/config"
	"greenroom/internal/logging"
	"greenroom/internal/notifications"
	"greenroom/internal/rating"
	"greenroom/internal/roles"
	"greenroom/internal/store"
)

// ErrInvalidScore rejects a verdict score outside [0, 5].
var ErrInvalidScore = errors.New("verdict score outside [0, 5]")

// DispatchResult reports one dispatch pass. PoolExhausted is set when
// backlog remained but no eligible reviewer could take any of it.
type DispatchResult struct {
	Created       int
	PoolExhausted bool
}

// TopicDispatcher re-runs topic matching after a work item leaves the
// in-progress states.
type TopicDispatcher interface {
	DispatchTopics(ctx context.Context) ([]assignment.Pair, error)
}

// Engine performs review dispatch and verdict recording.
type Engine struct {
	store    *store.Store
	gate     *roles.Gate
	rating   *rating.Engine
	topics   TopicDispatcher
	notifier notifications.Service
	cfg      config.Review
	logger   *slog.Logger
}

// NewEngine constructs a review engine. topics may be nil when terminal
// transitions should not trigger topic dispatch (tests, imports).
func NewEngine(st *store.Store, gate *roles.Gate, ratingEngine *rating.Engine, topics TopicDispatcher, notifier notifications.Service, cfg config.Review, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:    st,
		gate:     gate,
		rating:   ratingEngine,
		topics:   topics,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "review")),
	}
}

// reviewWindow is the time a reviewer gets to return a verdict.
func (e *Engine) reviewWindow() time.Duration {
	return time.Duration(e.cfg.WindowHours) * time.Hour
}

// DispatchReviews assigns free reviewers to under-quorum artifacts, highest
// producer rating first, until the backlog or the system-wide pending
// throttle is exhausted.
func (e *Engine) DispatchReviews(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult

	pending, err := e.store.PendingAssignmentCount(ctx)
	if err != nil {
		return result, err
	}
	budget := e.cfg.PendingThrottle - pending
	if budget <= 0 {
		return result, nil
	}

	backlog, err := e.store.ReviewBacklog(ctx, e.cfg.Quorum)
	if err != nil {
		return result, err
	}
	if len(backlog) == 0 {
		return result, nil
	}

	candidates, err := e.freeReviewers(ctx)
	if err != nil {
		return result, err
	}

	taken := make(map[int64]struct{})
	for _, entry := range backlog {
		if budget <= 0 {
			break
		}
		needed := e.cfg.Quorum - entry.ReviewCount
		for _, reviewer := range candidates {
			if needed <= 0 || budget <= 0 {
				break
			}
			if _, busy := taken[reviewer.ID]; busy {
				continue
			}
			if reviewer.ID == entry.ProducerID {
				continue
			}
			reviewed, err := e.store.HasReviewedTopic(ctx, reviewer.ID, entry.TopicID)
			if err != nil {
				return result, err
			}
			if reviewed {
				continue
			}

			dueAt := time.Now().UTC().Add(e.reviewWindow())
			created, err := e.store.CreateReviewAssignment(ctx, reviewer.ID, entry.Artifact.ID, dueAt)
			if err != nil {
				if errors.Is(err, store.ErrConstraintRace) {
					taken[reviewer.ID] = struct{}{}
					continue
				}
				return result, err
			}

			taken[reviewer.ID] = struct{}{}
			result.Created++
			budget--
			needed--

			e.logger.Info("review assigned",
				logging.String(logging.FieldEvent, logging.EventAssigned),
				logging.Int64(logging.FieldUserID, reviewer.ID),
				logging.Int64(logging.FieldWorkItemID, entry.WorkItemID),
				logging.Int64(logging.FieldReviewID, created.ID),
				logging.Time(logging.FieldDueAt, dueAt),
			)
			e.notifyReviewAssigned(ctx, reviewer, entry)
		}
	}

	if result.Created == 0 {
		result.PoolExhausted = true
		e.logger.Info("reviewer pool exhausted",
			logging.Int(logging.FieldCount, len(backlog)),
		)
		e.notifyPoolExhausted(ctx, backlog[0])
	}
	return result, nil
}

// RecordVerdict validates and records a verdict, recomputes the reviewer's
// rating, and judges the work item once quorum is reached. It returns the
// judged work item, or nil when quorum is still outstanding.
func (e *Engine) RecordVerdict(ctx context.Context, assignmentID int64, score float64, comment string) (*store.WorkItem, error) {
	if score < 0 || score > 5 {
		return nil, fmt.Errorf("score %g: %w", score, ErrInvalidScore)
	}

	reviewAssignment, err := e.store.GetReviewAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if reviewAssignment == nil {
		return nil, fmt.Errorf("review assignment %d not found", assignmentID)
	}

	if _, err := e.store.CompleteAssignment(ctx, assignmentID, score, comment); err != nil {
		return nil, err
	}

	if err := e.rating.RecomputeReviewer(ctx, reviewAssignment.ReviewerID); err != nil {
		e.logger.Warn("reviewer rating recompute failed",
			logging.Int64(logging.FieldUserID, reviewAssignment.ReviewerID),
			logging.Error(err),
		)
	}

	judged, err := e.judgeIfQuorum(ctx, reviewAssignment.ArtifactID)
	if err != nil {
		return nil, err
	}

	// Keep the pipeline flowing regardless of the outcome.
	if _, err := e.DispatchReviews(ctx); err != nil {
		e.logger.Warn("post-verdict review dispatch failed", logging.Error(err))
	}
	if judged != nil && e.topics != nil {
		if _, err := e.topics.DispatchTopics(ctx); err != nil {
			e.logger.Warn("post-judgment topic dispatch failed", logging.Error(err))
		}
	}

	return judged, nil
}

// judgeIfQuorum computes the final score and acceptance once the artifact
// holds a quorum of completed verdicts.
func (e *Engine) judgeIfQuorum(ctx context.Context, artifactID int64) (*store.WorkItem, error) {
	completed, err := e.store.CompletedAssignmentCount(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if completed < e.cfg.Quorum {
		return nil, nil
	}

	scores, err := e.store.VerdictScores(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	finalScore := sum / float64(len(scores)) / 5

	// Threshold over previously judged items, before this one lands.
	threshold, err := e.rollingThreshold(ctx)
	if err != nil {
		return nil, err
	}
	accepted := finalScore >= threshold

	artifact, err := e.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("artifact %d not found", artifactID)
	}

	if err := e.store.MarkJudged(ctx, artifact.WorkItemID, finalScore, accepted); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Another verdict already judged this item.
			return e.store.GetWorkItem(ctx, artifact.WorkItemID)
		}
		return nil, err
	}

	item, err := e.store.GetWorkItem(ctx, artifact.WorkItemID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("work item judged",
		logging.String(logging.FieldEvent, logging.EventJudged),
		logging.Int64(logging.FieldWorkItemID, item.ID),
		logging.Float64(logging.FieldScore, finalScore),
		logging.Float64("threshold", threshold),
		logging.Bool("accepted", accepted),
	)

	if err := e.rating.RecomputeProducer(ctx, item.ProducerID); err != nil {
		e.logger.Warn("producer rating recompute failed",
			logging.Int64(logging.FieldUserID, item.ProducerID),
			logging.Error(err),
		)
	}

	e.notifyJudged(ctx, item, finalScore, accepted)
	return item, nil
}

// rollingThreshold is the mean final score of the most recently judged
// work items, or the configured default when none exist.
func (e *Engine) rollingThreshold(ctx context.Context) (float64, error) {
	recent, err := e.store.RecentFinalScores(ctx, e.cfg.ThresholdWindow)
	if err != nil {
		return 0, err
	}
	if len(recent) == 0 {
		return e.cfg.DefaultThreshold, nil
	}
	var sum float64
	for _, s := range recent {
		sum += s
	}
	return sum / float64(len(recent)), nil
}

// freeReviewers returns eligible reviewers with no pending assignment,
// ascending by reviewer rating so newer reviewers get first opportunity,
// with lower id breaking ties.
func (e *Engine) freeReviewers(ctx context.Context) ([]*store.User, error) {
	pool, err := e.gate.Eligible(ctx, store.RoleReviewer)
	if err != nil {
		return nil, err
	}

	var free []*store.User
	for _, reviewer := range pool {
		pending, err := e.store.PendingAssignmentForReviewer(ctx, reviewer.ID)
		if err != nil {
			return nil, err
		}
		if pending == nil {
			free = append(free, reviewer)
		}
	}

	sort.SliceStable(free, func(i, j int) bool {
		if free[i].ReviewerRating != free[j].ReviewerRating {
			return free[i].ReviewerRating < free[j].ReviewerRating
		}
		return free[i].ID < free[j].ID
	})
	return free, nil
}

func (e *Engine) notifyReviewAssigned(ctx context.Context, reviewer *store.User, entry *store.BacklogEntry) {
	topic, err := e.store.GetTopic(ctx, entry.TopicID)
	title := ""
	if err == nil && topic != nil {
		title = topic.Title
	}
	if err := e.notifier.NotifyReviewAssigned(ctx, reviewer.Handle, title, time.Now().UTC().Add(e.reviewWindow())); err != nil {
		e.logger.Warn("review notification failed",
			logging.String(logging.FieldEvent, logging.EventNotifyFail),
			logging.Int64(logging.FieldUserID, reviewer.ID),
			logging.Error(err),
		)
	}
}

// notifyPoolExhausted reports the oldest starved backlog entry so an
// operator can recruit reviewers.
func (e *Engine) notifyPoolExhausted(ctx context.Context, entry *store.BacklogEntry) {
	topic, err := e.store.GetTopic(ctx, entry.TopicID)
	title := ""
	if err == nil && topic != nil {
		title = topic.Title
	}
	if err := e.notifier.NotifyReviewerPoolExhausted(ctx, title); err != nil {
		e.logger.Warn("pool exhausted notification failed",
			logging.String(logging.FieldEvent, logging.EventNotifyFail),
			logging.Int64(logging.FieldWorkItemID, entry.WorkItemID),
			logging.Error(err),
		)
	}
}

func (e *Engine) notifyJudged(ctx context.Context, item *store.WorkItem, finalScore float64, accepted bool) {
	producer, err := e.store.GetUser(ctx, item.ProducerID)
	if err != nil || producer == nil {
		return
	}
	topic, err := e.store.GetTopic(ctx, item.TopicID)
	title := ""
	if err == nil && topic != nil {
		title = topic.Title
	}
	if err := e.notifier.NotifyQuorumReached(ctx, producer.Handle, title, finalScore, accepted); err != nil {
		e.logger.Warn("verdict notification failed",
			logging.String(logging.FieldEvent, logging.EventNotifyFail),
			logging.Int64(logging.FieldUserID, producer.ID),
			logging.Error(err),
		)
	}
}
