// Package assignment matches idle producers to free topics. The matcher is
// a single greedy pass: producers in descending rating order each claim the
// lowest-id free topic from their best-scoring subscribed collection. It
// makes no attempt at a globally optimal matching.
package assignment

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"greenroom/internal/config"
	"greenroom/internal/logging"
	"greenroom/internal/notifications"
	"greenroom/internal/roles"
	"greenroom/internal/store"
)

// Pair is a producer/topic match created by one dispatch pass.
type Pair struct {
	WorkItem *store.WorkItem
	Producer *store.User
	Topic    *store.Topic
}

// Engine performs topic dispatch.
type Engine struct {
	store    *store.Store
	gate     *roles.Gate
	notifier notifications.Service
	cfg      config.Assignment
	logger   *slog.Logger
}

// NewEngine constructs an assignment engine.
func NewEngine(st *store.Store, gate *roles.Gate, notifier notifications.Service, cfg config.Assignment, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		store:    st,
		gate:     gate,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "assignment")),
	}
}

// DueAt computes a deadline for the topic's complexity: the current hour
// plus max(minimumHours, complexityWeight * hoursPerUnitComplexity).
func (e *Engine) DueAt(now time.Time, complexityWeight float64) time.Time {
	hours := complexityWeight * e.cfg.HoursPerUnitComplexity
	if min := float64(e.cfg.MinimumHours); hours < min {
		hours = min
	}
	return now.UTC().Truncate(time.Hour).Add(time.Duration(hours * float64(time.Hour)))
}

// DispatchTopics runs one greedy matching pass and returns the pairs it
// created. An empty result means no work was available; that is not an
// error. A lost constraint race skips the producer for this pass.
func (e *Engine) DispatchTopics(ctx context.Context) ([]Pair, error) {
	producers, err := e.idleProducers(ctx)
	if err != nil {
		return nil, err
	}
	if len(producers) == 0 {
		return nil, nil
	}

	freeTopics, err := e.store.FreeTopics(ctx)
	if err != nil {
		return nil, err
	}

	// Lowest-id topic per collection, FIFO by creation order.
	topicByCollection := make(map[int64][]*store.Topic)
	for _, topic := range freeTopics {
		topicByCollection[topic.CollectionID] = append(topicByCollection[topic.CollectionID], topic)
	}

	occupied, err := e.store.OccupiedCollectionIDs(ctx)
	if err != nil {
		return nil, err
	}
	excluded := make(map[int64]struct{}, len(occupied))
	for _, id := range occupied {
		excluded[id] = struct{}{}
	}

	var pairs []Pair
	now := time.Now()
	for _, producer := range producers {
		collectionID, subscribed, ok, err := e.pickCollection(ctx, producer, topicByCollection, excluded)
		if err != nil {
			return pairs, err
		}
		if !ok {
			// A producer waiting on subscriptions with nothing to claim
			// hears about it; an unsubscribed producer opted out.
			if subscribed {
				e.notifyNoWork(ctx, producer)
			}
			continue
		}

		topic := topicByCollection[collectionID][0]
		dueAt := e.DueAt(now, topic.ComplexityWeight)

		item, err := e.store.CreateWorkItem(ctx, producer.ID, topic.ID, dueAt)
		if err != nil {
			if errors.Is(err, store.ErrConstraintRace) {
				e.logger.Debug("lost assignment race",
					logging.Int64(logging.FieldUserID, producer.ID),
					logging.Int64(logging.FieldTopicID, topic.ID),
				)
				continue
			}
			return pairs, err
		}

		pairs = append(pairs, Pair{WorkItem: item, Producer: producer, Topic: topic})
		// Claimed this pass: drop the collection and keep the producer out of
		// further consideration.
		excluded[collectionID] = struct{}{}

		e.logger.Info("topic assigned",
			logging.String(logging.FieldEvent, logging.EventAssigned),
			logging.Int64(logging.FieldUserID, producer.ID),
			logging.Int64(logging.FieldTopicID, topic.ID),
			logging.Int64(logging.FieldWorkItemID, item.ID),
			logging.Time(logging.FieldDueAt, dueAt),
		)
		if err := e.notifier.NotifyTopicAssigned(ctx, producer.Handle, topic.Title, dueAt); err != nil {
			e.logger.Warn("assignment notification failed",
				logging.String(logging.FieldEvent, logging.EventNotifyFail),
				logging.Int64(logging.FieldUserID, producer.ID),
				logging.Error(err),
			)
		}
	}

	return pairs, nil
}

// idleProducers returns eligible producers with no active work item, sorted
// by descending rating with lower id breaking ties.
func (e *Engine) idleProducers(ctx context.Context) ([]*store.User, error) {
	pool, err := e.gate.Eligible(ctx, store.RoleProducer)
	if err != nil {
		return nil, err
	}

	var idle []*store.User
	for _, producer := range pool {
		active, err := e.store.ActiveWorkItemForProducer(ctx, producer.ID)
		if err != nil {
			return nil, err
		}
		if active == nil {
			idle = append(idle, producer)
		}
	}

	sort.SliceStable(idle, func(i, j int) bool {
		if idle[i].ProducerRating != idle[j].ProducerRating {
			return idle[i].ProducerRating > idle[j].ProducerRating
		}
		return idle[i].ID < idle[j].ID
	})
	return idle, nil
}

// pickCollection ranks the producer's candidate collections by their
// historical average final score within each, neutral when no history, and
// returns the winner. The second result reports whether the producer holds
// any subscription at all.
func (e *Engine) pickCollection(ctx context.Context, producer *store.User, topicByCollection map[int64][]*store.Topic, excluded map[int64]struct{}) (int64, bool, bool, error) {
	subscribed, err := e.store.SubscribedCollectionIDs(ctx, producer.ID)
	if err != nil {
		return 0, false, false, err
	}
	if len(subscribed) == 0 {
		return 0, false, false, nil
	}

	var candidates []int64
	for _, id := range subscribed {
		if _, gone := excluded[id]; gone {
			continue
		}
		if len(topicByCollection[id]) == 0 {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return 0, true, false, nil
	}

	history, err := e.store.CollectionHistoryScores(ctx, producer.ID)
	if err != nil {
		return 0, true, false, err
	}

	best := candidates[0]
	bestScore := e.historyScore(history, best)
	for _, id := range candidates[1:] {
		score := e.historyScore(history, id)
		if score > bestScore || (score == bestScore && id < best) {
			best = id
			bestScore = score
		}
	}
	return best, true, true, nil
}

func (e *Engine) notifyNoWork(ctx context.Context, producer *store.User) {
	if err := e.notifier.NotifyNoWorkAvailable(ctx, producer.Handle); err != nil {
		e.logger.Warn("no-work notification failed",
			logging.String(logging.FieldEvent, logging.EventNotifyFail),
			logging.Int64(logging.FieldUserID, producer.ID),
			logging.Error(err),
		)
	}
}

func (e *Engine) historyScore(history map[int64]float64, collectionID int64) float64 {
	if score, ok := history[collectionID]; ok {
		return score
	}
	return e.cfg.NeutralCollectionScore
}
