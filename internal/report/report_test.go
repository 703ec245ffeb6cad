package report_test

import (
	"context"
	"testing"
	"time"

	"greenroom/internal/report"
	"greenroom/internal/store"
	"greenroom/internal/testsupport"
)

func judge(t *testing.T, st *store.Store, producerID, topicID int64, score float64) {
	t.Helper()
	ctx := context.Background()
	item, err := st.CreateWorkItem(ctx, producerID, topicID, time.Now().UTC().Add(72*time.Hour))
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
	if _, err := st.SubmitWorkItem(ctx, item.ID, "", 600); err != nil {
		t.Fatalf("SubmitWorkItem failed: %v", err)
	}
	if err := st.MarkJudged(ctx, item.ID, score, true); err != nil {
		t.Fatalf("MarkJudged failed: %v", err)
	}
}

func TestProducerStandingsOrderAndCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reporter := report.New(st, cfg)
	ctx := context.Background()

	low := testsupport.NewProducer(t, st, "low")
	high := testsupport.NewProducer(t, st, "high")
	testsupport.SetProducerRating(t, st, low.ID, 0.4)
	testsupport.SetProducerRating(t, st, high.ID, 0.9)
	testsupport.NewReviewer(t, st, "rev")

	_, topics := testsupport.NewCollection(t, st, "C", 1)
	judge(t, st, high.ID, topics[0].ID, 0.8)

	table, err := reporter.ProducerStandings(ctx)
	if err != nil {
		t.Fatalf("ProducerStandings failed: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected two producer rows, got %d", len(table.Rows))
	}
	if table.Rows[0][0] != "high" {
		t.Fatalf("expected higher-rated producer first, got %q", table.Rows[0][0])
	}
	if table.Rows[0][4] != "1" {
		t.Fatalf("expected judged count 1, got %q", table.Rows[0][4])
	}
	// The reviewer holds no producer role and must not appear.
	for _, row := range table.Rows {
		if row[0] == "rev" {
			t.Fatal("reviewer leaked into producer standings")
		}
	}
}

func TestPipelineListsEveryStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reporter := report.New(st, cfg)

	table, err := reporter.Pipeline(context.Background())
	if err != nil {
		t.Fatalf("Pipeline failed: %v", err)
	}
	if len(table.Rows) != len(store.AllStatuses()) {
		t.Fatalf("expected %d status rows, got %d", len(store.AllStatuses()), len(table.Rows))
	}
	for _, row := range table.Rows {
		if row[1] != "0" {
			t.Fatalf("expected empty pipeline, got %q for %q", row[1], row[0])
		}
	}
}

func TestScoreBreakdownAppliesSeniority(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reporter := report.New(st, cfg)
	ctx := context.Background()

	producer := testsupport.NewProducer(t, st, "prod")
	_, topics := testsupport.NewCollection(t, st, "C", 2)
	judge(t, st, producer.ID, topics[0].ID, 0.8)
	judge(t, st, producer.ID, topics[1].ID, 0.6)

	table, err := reporter.ScoreBreakdown(ctx, "prod")
	if err != nil {
		t.Fatalf("ScoreBreakdown failed: %v", err)
	}
	// Two judged rows plus the total line.
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table.Rows))
	}
	if table.Rows[0][4] != "1.000" {
		t.Fatalf("expected first seniority factor 1.000, got %q", table.Rows[0][4])
	}
	if table.Rows[1][4] != "1.050" {
		t.Fatalf("expected second seniority factor 1.050, got %q", table.Rows[1][4])
	}
	// 0.8*1 + 0.6*1.05 = 1.43 with unit complexity weights.
	if table.Rows[2][5] != "1.43" {
		t.Fatalf("expected total 1.43, got %q", table.Rows[2][5])
	}
}

func TestScoreBreakdownUnknownHandle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reporter := report.New(st, cfg)

	if _, err := reporter.ScoreBreakdown(context.Background(), "ghost"); err == nil {
		t.Fatal("expected an error for an unknown handle")
	}
}
