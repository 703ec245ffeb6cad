package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"greenroom/internal/report"
	"greenroom/internal/store"
)

func newWorkCommand(ctx *commandContext) *cobra.Command {
	workCmd := &cobra.Command{
		Use:   "work",
		Short: "Inspect and transition work items",
	}

	workCmd.AddCommand(newWorkListCommand(ctx))
	workCmd.AddCommand(newWorkSubmitCommand(ctx))
	workCmd.AddCommand(newWorkAbandonCommand(ctx))
	workCmd.AddCommand(newWorkPublishCommand(ctx))
	workCmd.AddCommand(newWorkExtendCommand(ctx))

	return workCmd
}

func newWorkListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				statuses := store.AllStatuses()
				if statusFlag != "" {
					status, ok := store.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFlag)
					}
					statuses = []store.Status{status}
				}
				items, err := env.store.WorkItemsByStatus(cmd.Context(), statuses...)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					score := "-"
					if item.FinalScore != nil {
						score = fmt.Sprintf("%.3f", *item.FinalScore)
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", item.ID),
						fmt.Sprintf("%d", item.TopicID),
						fmt.Sprintf("%d", item.ProducerID),
						string(item.Status),
						item.DueAt.Format("2006-01-02 15:04"),
						score,
					})
				}
				writeTable(cmd.OutOrStdout(), &report.Table{
					Headers:      []string{"ID", "Topic", "Producer", "Status", "Due", "Score"},
					Rows:         rows,
					RightAligned: []int{0, 1, 2, 5},
				})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by lifecycle status")
	return cmd
}

func newWorkSubmitCommand(ctx *commandContext) *cobra.Command {
	var externalRef string
	var duration float64

	cmd := &cobra.Command{
		Use:   "submit <item-id>",
		Short: "Record an artifact for an issued work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEngines(func(env *engineSet) error {
				artifact, err := env.store.SubmitWorkItem(cmd.Context(), itemID, externalRef, duration)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded artifact %d (ref %s)\n", artifact.ID, artifact.ExternalRef)

				// Submission feeds the review backlog immediately.
				result, err := env.reviews.DispatchReviews(cmd.Context())
				if err != nil {
					return err
				}
				if result.Created > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Dispatched %d review assignments\n", result.Created)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&externalRef, "ref", "", "External artifact reference (minted when omitted)")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Artifact duration in seconds")
	return cmd
}

func newWorkAbandonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <item-id>",
		Short: "Abandon an issued work item, freeing its topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEngines(func(env *engineSet) error {
				item, err := env.store.GetWorkItem(cmd.Context(), itemID)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("unknown work item %d", itemID)
				}
				if err := env.store.MarkAbandoned(cmd.Context(), itemID); err != nil {
					return err
				}
				// Abandonment counts against reliability right away.
				if err := env.rating.RecomputeProducer(cmd.Context(), item.ProducerID); err != nil {
					return err
				}
				if _, err := env.topics.DispatchTopics(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work item %d abandoned\n", itemID)
				return nil
			})
		},
	}
}

func newWorkPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <item-id>",
		Short: "Mark an accepted work item as published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEngines(func(env *engineSet) error {
				if err := env.store.MarkPublished(cmd.Context(), itemID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work item %d published\n", itemID)
				return nil
			})
		},
	}
}

func newWorkExtendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extend <item-id>",
		Short: "Accept a pending deadline-extension offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withEngines(func(env *engineSet) error {
				item, err := env.scheduler.AcceptExtension(cmd.Context(), itemID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Extension accepted, now due %s\n", item.DueAt.Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
