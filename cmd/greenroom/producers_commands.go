package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"greenroom/internal/report"
	"greenroom/internal/store"
)

func newProducersCommand(ctx *commandContext) *cobra.Command {
	producersCmd := &cobra.Command{
		Use:   "producers",
		Short: "Manage participants, roles, and subscriptions",
	}

	producersCmd.AddCommand(newProducersListCommand(ctx))
	producersCmd.AddCommand(newProducersAddCommand(ctx))
	producersCmd.AddCommand(newProducersBanCommand(ctx, "ban", true))
	producersCmd.AddCommand(newProducersBanCommand(ctx, "unban", false))
	producersCmd.AddCommand(newProducersRoleCommand(ctx, "grant"))
	producersCmd.AddCommand(newProducersRoleCommand(ctx, "revoke"))
	producersCmd.AddCommand(newProducersSubscribeCommand(ctx, "subscribe"))
	producersCmd.AddCommand(newProducersSubscribeCommand(ctx, "unsubscribe"))

	return producersCmd
}

func newProducersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				users, err := env.store.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(users))
				for _, user := range users {
					banned := "no"
					if user.Banned {
						banned = "yes"
					}
					rows = append(rows, []string{
						user.Handle,
						user.DisplayName,
						banned,
						fmt.Sprintf("%.3f", user.ProducerRating),
						fmt.Sprintf("%.2f", user.ProducerPoints),
						fmt.Sprintf("%.3f", user.ReviewerRating),
						fmt.Sprintf("%.2f", user.ReviewerPoints),
					})
				}
				writeTable(cmd.OutOrStdout(), &report.Table{
					Headers:      []string{"Handle", "Name", "Banned", "P.Rating", "P.Points", "R.Rating", "R.Points"},
					Rows:         rows,
					RightAligned: []int{3, 4, 5, 6},
				})
				return nil
			})
		},
	}
}

func newProducersAddCommand(ctx *commandContext) *cobra.Command {
	var displayName string
	var reviewer bool

	cmd := &cobra.Command{
		Use:   "add <handle>",
		Short: "Register a participant with the producer role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				name := displayName
				if name == "" {
					name = args[0]
				}
				user, err := env.store.CreateUser(cmd.Context(), args[0], name)
				if err != nil {
					return err
				}
				if err := env.gate.Grant(cmd.Context(), user.ID, store.RoleProducer); err != nil {
					return err
				}
				if reviewer {
					if err := env.gate.Grant(cmd.Context(), user.ID, store.RoleReviewer); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered @%s (user %d)\n", user.Handle, user.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Display name (defaults to the handle)")
	cmd.Flags().BoolVar(&reviewer, "reviewer", false, "Also grant the reviewer role")
	return cmd
}

func newProducersBanCommand(ctx *commandContext, use string, banned bool) *cobra.Command {
	short := "Ban a participant from all dispatch"
	if !banned {
		short = "Lift a participant's ban"
	}
	return &cobra.Command{
		Use:   use + " <handle>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				user, err := resolveUser(cmd, env, args[0])
				if err != nil {
					return err
				}
				if err := env.store.SetBanned(cmd.Context(), user.ID, banned); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "@%s banned=%t\n", user.Handle, banned)
				return nil
			})
		},
	}
}

func newProducersRoleCommand(ctx *commandContext, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <handle> <role>",
		Short: use + " a role (producer, reviewer, admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				user, err := resolveUser(cmd, env, args[0])
				if err != nil {
					return err
				}
				role := args[1]
				switch role {
				case store.RoleProducer, store.RoleReviewer, store.RoleAdmin:
				default:
					return fmt.Errorf("unknown role %q", role)
				}
				if use == "grant" {
					err = env.gate.Grant(cmd.Context(), user.ID, role)
				} else {
					err = env.gate.Revoke(cmd.Context(), user.ID, role)
				}
				if err != nil {
					return err
				}
				past := "granted"
				if use == "revoke" {
					past = "revoked"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s for @%s\n", past, role, user.Handle)
				return nil
			})
		},
	}
}

func newProducersSubscribeCommand(ctx *commandContext, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <handle> <collection>",
		Short: use + " a producer to a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngines(func(env *engineSet) error {
				user, err := resolveUser(cmd, env, args[0])
				if err != nil {
					return err
				}
				collection, err := env.store.GetCollectionByTitle(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				if collection == nil {
					return fmt.Errorf("unknown collection %q", args[1])
				}
				if use == "subscribe" {
					err = env.store.Subscribe(cmd.Context(), user.ID, collection.ID)
				} else {
					err = env.store.Unsubscribe(cmd.Context(), user.ID, collection.ID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "@%s %sd to %s\n", user.Handle, use, collection.Title)
				return nil
			})
		},
	}
}

func resolveUser(cmd *cobra.Command, env *engineSet, handle string) (*store.User, error) {
	user, err := env.store.GetUserByHandle(cmd.Context(), handle)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("unknown user %q", handle)
	}
	return user, nil
}
