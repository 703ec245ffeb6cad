package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-load catalog data from CSV files",
	}

	importCmd.AddCommand(&cobra.Command{
		Use:   "topics <file>",
		Short: "Import collections and topics (header: collection,title,ref,complexity)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer file.Close()

				result, err := env.importer.ImportTopics(cmd.Context(), file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d topics across %d new collections (%d duplicates skipped)\n",
					result.Topics, result.Collections, result.Skipped)
				return nil
			})
		},
	})

	importCmd.AddCommand(&cobra.Command{
		Use:   "history <file>",
		Short: "Seed judged history (header: producer,collection,title,complexity,score)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer file.Close()

				result, err := env.importer.SeedHistory(cmd.Context(), file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d judged work items\n", result.Topics)
				return nil
			})
		},
	})

	return importCmd
}
