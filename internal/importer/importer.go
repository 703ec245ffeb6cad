// Package importer loads collections and topics from CSV files, with an
// optional seeding mode that backfills judged history so a fresh database
// starts with meaningful collection scores.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"greenroom/internal/logging"
	"greenroom/internal/store"
)

// topicHeader is the required header row for topic imports.
var topicHeader = []string{"collection", "title", "ref", "complexity"}

// historyHeader is the required header row for history seeding.
var historyHeader = []string{"producer", "collection", "title", "complexity", "score"}

// Importer performs bulk catalog loads through the store.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
}

// Result summarizes one import run.
type Result struct {
	Collections int
	Topics      int
	Skipped     int
}

// New constructs an importer.
func New(st *store.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Importer{
		store:  st,
		logger: logger.With(logging.String(logging.FieldComponent, "importer")),
	}
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// normalizeTitle collapses interior whitespace and title-cases words that
// are not already capitalized.
func normalizeTitle(raw string) string {
	return titleCaser.String(strings.Join(strings.Fields(raw), " "))
}

// ImportTopics reads a CSV stream with header collection,title,ref,
// complexity and creates any collections and topics not already present.
// A topic is a duplicate when its normalized title already exists in the
// collection.
func (im *Importer) ImportTopics(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	if err := expectHeader(reader, topicHeader); err != nil {
		return nil, err
	}

	result := &Result{}
	collections := make(map[string]*store.Collection)
	existingTitles := make(map[int64]map[string]bool)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		collectionTitle := normalizeTitle(record[0])
		topicTitle := normalizeTitle(record[1])
		externalRef := strings.TrimSpace(record[2])
		if collectionTitle == "" || topicTitle == "" {
			return nil, fmt.Errorf("line %d: collection and title are required", line)
		}
		complexity, err := parseComplexity(record[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		collection, err := im.ensureCollection(ctx, collections, collectionTitle, result)
		if err != nil {
			return nil, err
		}

		titles, ok := existingTitles[collection.ID]
		if !ok {
			titles, err = im.topicTitles(ctx, collection.ID)
			if err != nil {
				return nil, err
			}
			existingTitles[collection.ID] = titles
		}
		if titles[topicTitle] {
			result.Skipped++
			continue
		}

		if _, err := im.store.CreateTopic(ctx, collection.ID, topicTitle, externalRef, complexity); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", topicTitle, err)
		}
		titles[topicTitle] = true
		result.Topics++
	}

	im.logger.Info("topics imported",
		logging.Int(logging.FieldCount, result.Topics),
		logging.Int("collections", result.Collections),
		logging.Int("skipped", result.Skipped),
	)
	return result, nil
}

// SeedHistory reads a CSV stream with header producer,collection,title,
// complexity,score and backfills each row as a published work item with the
// given final score. Producers are created and granted the producer role
// when absent.
func (im *Importer) SeedHistory(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	if err := expectHeader(reader, historyHeader); err != nil {
		return nil, err
	}

	result := &Result{}
	collections := make(map[string]*store.Collection)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		handle := strings.TrimSpace(record[0])
		collectionTitle := normalizeTitle(record[1])
		topicTitle := normalizeTitle(record[2])
		if handle == "" || collectionTitle == "" || topicTitle == "" {
			return nil, fmt.Errorf("line %d: producer, collection and title are required", line)
		}
		complexity, err := parseComplexity(record[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
		if err != nil || score < 0 || score > 1 {
			return nil, fmt.Errorf("line %d: score must be in [0, 1]", line)
		}

		producer, err := im.ensureProducer(ctx, handle)
		if err != nil {
			return nil, err
		}
		collection, err := im.ensureCollection(ctx, collections, collectionTitle, result)
		if err != nil {
			return nil, err
		}
		if err := im.seedJudgedItem(ctx, producer.ID, collection.ID, topicTitle, complexity, score); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		result.Topics++
	}

	im.logger.Info("history seeded", logging.Int(logging.FieldCount, result.Topics))
	return result, nil
}

func (im *Importer) ensureCollection(ctx context.Context, cache map[string]*store.Collection, title string, result *Result) (*store.Collection, error) {
	if collection, ok := cache[title]; ok {
		return collection, nil
	}
	collection, err := im.store.GetCollectionByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		collection, err = im.store.CreateCollection(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("create collection %q: %w", title, err)
		}
		result.Collections++
	}
	cache[title] = collection
	return collection, nil
}

func (im *Importer) ensureProducer(ctx context.Context, handle string) (*store.User, error) {
	user, err := im.store.GetUserByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = im.store.CreateUser(ctx, handle, handle)
		if err != nil {
			return nil, fmt.Errorf("create user %q: %w", handle, err)
		}
	}
	if err := im.store.GrantRole(ctx, user.ID, store.RoleProducer); err != nil {
		return nil, err
	}
	return user, nil
}

// seedJudgedItem walks one row through the full work-item lifecycle so the
// usual transition guards apply to seeded history too.
func (im *Importer) seedJudgedItem(ctx context.Context, producerID, collectionID int64, title string, complexity, score float64) error {
	topic, err := im.store.CreateTopic(ctx, collectionID, title, "", complexity)
	if err != nil {
		return fmt.Errorf("create topic %q: %w", title, err)
	}
	item, err := im.store.CreateWorkItem(ctx, producerID, topic.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create work item: %w", err)
	}
	if _, err := im.store.SubmitWorkItem(ctx, item.ID, "", 0); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := im.store.MarkJudged(ctx, item.ID, score, true); err != nil {
		return fmt.Errorf("judge: %w", err)
	}
	if err := im.store.MarkPublished(ctx, item.ID); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (im *Importer) topicTitles(ctx context.Context, collectionID int64) (map[string]bool, error) {
	topics, err := im.store.TopicsInCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]bool, len(topics))
	for _, topic := range topics {
		titles[topic.Title] = true
	}
	return titles, nil
}

func expectHeader(reader *csv.Reader, want []string) error {
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(want) {
		return fmt.Errorf("expected header %q", strings.Join(want, ","))
	}
	for i, field := range header {
		if !strings.EqualFold(strings.TrimSpace(field), want[i]) {
			return fmt.Errorf("expected header %q", strings.Join(want, ","))
		}
	}
	reader.FieldsPerRecord = len(want)
	return nil
}

func parseComplexity(raw string) (float64, error) {
	complexity, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || complexity <= 0 {
		return 0, fmt.Errorf("complexity must be a positive number")
	}
	return complexity, nil
}
