// Package report assembles read-only administrative summaries from the
// store into rendering-agnostic tables. The CLI decides how to draw them.
package report

import (
	"context"
	"fmt"
	"strings"

	"greenroom/internal/config"
	"greenroom/internal/store"
)

// Table is a rendered-agnostic report: headers plus string rows.
// RightAligned lists zero-based column indexes holding numeric values.
type Table struct {
	Title        string
	Headers      []string
	Rows         [][]string
	RightAligned []int
}

// Reporter builds report tables from store aggregates.
type Reporter struct {
	store *store.Store
	cfg   *config.Config
}

// New constructs a reporter.
func New(st *store.Store, cfg *config.Config) *Reporter {
	return &Reporter{store: st, cfg: cfg}
}

// ProducerStandings returns the producer leaderboard.
func (r *Reporter) ProducerStandings(ctx context.Context) (*Table, error) {
	standings, err := r.store.ProducerStandings(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(standings))
	for _, s := range standings {
		rows = append(rows, []string{
			s.Handle,
			s.DisplayName,
			formatScore(s.Rating),
			formatPoints(s.Points),
			fmt.Sprintf("%d", s.JudgedCount),
			fmt.Sprintf("%d", s.Published),
		})
	}
	return &Table{
		Title:        "Producer Standings",
		Headers:      []string{"Handle", "Name", "Rating", "Points", "Judged", "Published"},
		Rows:         rows,
		RightAligned: []int{2, 3, 4, 5},
	}, nil
}

// ReviewerStandings returns the reviewer leaderboard.
func (r *Reporter) ReviewerStandings(ctx context.Context) (*Table, error) {
	standings, err := r.store.ReviewerStandings(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(standings))
	for _, s := range standings {
		rows = append(rows, []string{
			s.Handle,
			s.DisplayName,
			formatScore(s.Rating),
			formatPoints(s.Points),
			fmt.Sprintf("%d", s.Completed),
			fmt.Sprintf("%d", s.Expired),
		})
	}
	return &Table{
		Title:        "Reviewer Standings",
		Headers:      []string{"Handle", "Name", "Rating", "Points", "Completed", "Expired"},
		Rows:         rows,
		RightAligned: []int{2, 3, 4, 5},
	}, nil
}

// Pipeline returns work-item counts per lifecycle status, every status
// present even when zero.
func (r *Reporter) Pipeline(ctx context.Context) (*Table, error) {
	summary, err := r.store.PipelineSummary(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(summary))
	for _, entry := range summary {
		rows = append(rows, []string{statusLabel(entry.Status), fmt.Sprintf("%d", entry.Count)})
	}
	return &Table{
		Title:        "Pipeline",
		Headers:      []string{"Status", "Items"},
		Rows:         rows,
		RightAligned: []int{1},
	}, nil
}

// ScoreBreakdown returns a producer's judged items in judgment order with
// the seniority term and the points each contributed.
func (r *Reporter) ScoreBreakdown(ctx context.Context, handle string) (*Table, error) {
	user, err := r.store.GetUserByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %q", handle)
	}

	breakdown, err := r.store.ScoreBreakdown(ctx, user.ID, r.cfg.Rating.SeniorityMultiplier)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(breakdown))
	var total float64
	for _, row := range breakdown {
		total += row.Points
		rows = append(rows, []string{
			fmt.Sprintf("%d", row.WorkItemID),
			row.TopicTitle,
			formatPoints(row.ComplexityWeight),
			formatScore(row.FinalScore),
			formatScore(row.SeniorityFactor),
			formatPoints(row.Points),
		})
	}
	if len(rows) > 0 {
		rows = append(rows, []string{"", "Total", "", "", "", formatPoints(total)})
	}
	return &Table{
		Title:        fmt.Sprintf("Score Breakdown - @%s", handle),
		Headers:      []string{"Item", "Topic", "Weight", "Score", "Seniority", "Points"},
		Rows:         rows,
		RightAligned: []int{0, 2, 3, 4, 5},
	}, nil
}

func formatScore(value float64) string {
	return fmt.Sprintf("%.3f", value)
}

func formatPoints(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func statusLabel(status store.Status) string {
	parts := strings.Split(string(status), "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
