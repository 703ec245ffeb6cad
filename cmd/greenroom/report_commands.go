package main

import (
	"github.com/spf13/cobra"

	"greenroom/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Read-only pipeline and standings reports",
	}

	reportCmd.AddCommand(&cobra.Command{
		Use:   "producers",
		Short: "Producer leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(ctx, cmd, func(env *engineSet) (*report.Table, error) {
				return env.reporter.ProducerStandings(cmd.Context())
			})
		},
	})

	reportCmd.AddCommand(&cobra.Command{
		Use:   "reviewers",
		Short: "Reviewer leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(ctx, cmd, func(env *engineSet) (*report.Table, error) {
				return env.reporter.ReviewerStandings(cmd.Context())
			})
		},
	})

	reportCmd.AddCommand(&cobra.Command{
		Use:   "pipeline",
		Short: "Work-item counts per lifecycle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(ctx, cmd, func(env *engineSet) (*report.Table, error) {
				return env.reporter.Pipeline(cmd.Context())
			})
		},
	})

	reportCmd.AddCommand(&cobra.Command{
		Use:   "breakdown <handle>",
		Short: "Per-item points breakdown for one producer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(ctx, cmd, func(env *engineSet) (*report.Table, error) {
				return env.reporter.ScoreBreakdown(cmd.Context(), args[0])
			})
		},
	})

	return reportCmd
}

func runReport(ctx *commandContext, cmd *cobra.Command, build func(*engineSet) (*report.Table, error)) error {
	return ctx.withEngines(func(env *engineSet) error {
		table, err := build(env)
		if err != nil {
			return err
		}
		writeTable(cmd.OutOrStdout(), table)
		return nil
	})
}
