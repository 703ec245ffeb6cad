package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"greenroom/internal/report"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and complete review assignments",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewVerdictCommand(ctx))
	reviewCmd.AddCommand(newReviewExtendCommand(ctx))
	reviewCmd.AddCommand(newReviewDispatchCommand(ctx))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending review assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				assignments, err := env.store.PendingAssignments(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(assignments))
				for _, ra := range assignments {
					extended := "no"
					if ra.Extended {
						extended = "yes"
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", ra.ID),
						fmt.Sprintf("%d", ra.ReviewerID),
						fmt.Sprintf("%d", ra.ArtifactID),
						ra.DueAt.Format("2006-01-02 15:04"),
						extended,
					})
				}
				writeTable(cmd.OutOrStdout(), &report.Table{
					Headers:      []string{"ID", "Reviewer", "Artifact", "Due", "Extended"},
					Rows:         rows,
					RightAligned: []int{0, 1, 2},
				})
				return nil
			})
		},
	}
}

func newReviewVerdictCommand(ctx *commandContext) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "verdict <assignment-id> <score>",
		Short: "Record a verdict score in [0, 5] for a pending assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID, err := parseID(args[0])
			if err != nil {
				return err
			}
			score, err := parseScore(args[1])
			if err != nil {
				return err
			}
			return ctx.withEngines(func(env *engineSet) error {
				judged, err := env.reviews.RecordVerdict(cmd.Context(), assignmentID, score, comment)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Verdict recorded for assignment %d\n", assignmentID)
				if judged != nil && judged.FinalScore != nil {
					fmt.Fprintf(out, "Quorum reached: work item %d scored %.3f (%s)\n",
						judged.ID, *judged.FinalScore, judged.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "Optional reviewer comment")
	return cmd
}

func parseScore(raw string) (float64, error) {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q", raw)
	}
	return score, nil
}

func newReviewExtendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extend <assignment-id>",
		Short: "Extend a pending review deadline (one-time)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignmentID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEngines(func(env *engineSet) error {
				ra, err := env.scheduler.ExtendReview(cmd.Context(), assignmentID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Review extended, now due %s\n", ra.DueAt.Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
}

func newReviewDispatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one review-dispatch pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				result, err := env.reviews.DispatchReviews(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created %d review assignments\n", result.Created)
				if result.PoolExhausted {
					fmt.Fprintln(out, "Reviewer pool exhausted: backlog remains below quorum")
				}
				return nil
			})
		},
	}
}
