package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"greenroom/internal/report"
	"greenroom/internal/store"
)

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage collections and topics",
	}

	topicsCmd.AddCommand(newTopicsListCommand(ctx))
	topicsCmd.AddCommand(newTopicsAddCommand(ctx))
	topicsCmd.AddCommand(newTopicsFreeCommand(ctx))
	topicsCmd.AddCommand(newTopicsDispatchCommand(ctx))

	return topicsCmd
}

func newTopicsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list [collection]",
		Short: "List collections, or the topics of one collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				if len(args) == 0 {
					collections, err := env.store.ListCollections(cmd.Context())
					if err != nil {
						return err
					}
					rows := make([][]string, 0, len(collections))
					for _, collection := range collections {
						topics, err := env.store.TopicsInCollection(cmd.Context(), collection.ID)
						if err != nil {
							return err
						}
						rows = append(rows, []string{
							fmt.Sprintf("%d", collection.ID),
							collection.Title,
							fmt.Sprintf("%d", len(topics)),
						})
					}
					writeTable(cmd.OutOrStdout(), &report.Table{
						Headers:      []string{"ID", "Collection", "Topics"},
						Rows:         rows,
						RightAligned: []int{0, 2},
					})
					return nil
				}

				collection, err := env.store.GetCollectionByTitle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if collection == nil {
					return fmt.Errorf("unknown collection %q", args[0])
				}
				topics, err := env.store.TopicsInCollection(cmd.Context(), collection.ID)
				if err != nil {
					return err
				}
				writeTable(cmd.OutOrStdout(), topicsTable(collection.Title, topics))
				return nil
			})
		},
	}
}

func newTopicsAddCommand(ctx *commandContext) *cobra.Command {
	var externalRef string
	var complexity float64

	cmd := &cobra.Command{
		Use:   "add <collection> <title>",
		Short: "Add a topic, creating the collection if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				collection, err := env.store.GetCollectionByTitle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if collection == nil {
					collection, err = env.store.CreateCollection(cmd.Context(), args[0])
					if err != nil {
						return err
					}
				}
				topic, err := env.store.CreateTopic(cmd.Context(), collection.ID, args[1], externalRef, complexity)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created topic %d in %s\n", topic.ID, collection.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&externalRef, "ref", "", "External reference for the topic")
	cmd.Flags().Float64Var(&complexity, "complexity", 1, "Complexity weight (scales the production deadline)")
	return cmd
}

func newTopicsFreeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "free",
		Short: "List topics with no occupying work item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				topics, err := env.store.FreeTopics(cmd.Context())
				if err != nil {
					return err
				}
				writeTable(cmd.OutOrStdout(), topicsTable("", topics))
				return nil
			})
		},
	}
}

func newTopicsDispatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run one topic-assignment pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				pairs, err := env.topics.DispatchTopics(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(pairs) == 0 {
					fmt.Fprintln(out, "No assignments made")
					return nil
				}
				for _, pair := range pairs {
					fmt.Fprintf(out, "Assigned %q to @%s (due %s)\n",
						pair.Topic.Title, pair.Producer.Handle,
						pair.WorkItem.DueAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
}

func topicsTable(title string, topics []*store.Topic) *report.Table {
	rows := make([][]string, 0, len(topics))
	for _, topic := range topics {
		rows = append(rows, []string{
			fmt.Sprintf("%d", topic.ID),
			topic.Title,
			topic.ExternalRef,
			fmt.Sprintf("%.2f", topic.ComplexityWeight),
		})
	}
	return &report.Table{
		Title:        title,
		Headers:      []string{"ID", "Title", "Ref", "Complexity"},
		Rows:         rows,
		RightAligned: []int{0, 3},
	}
}
