package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/querygate/internal/config"
	"github.com/stupiduntilnot/querygate/internal/store"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the user directory",
	}

	var email, role string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := storeApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.store.CreateUser(cmd.Context(), args[0], email, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", u.ID, u.Username)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "Email address")
	add.Flags().StringVar(&role, "role", "user", "Role: user or admin")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := storeApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(cmd, users)
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func printUsers(cmd *cobra.Command, users []store.User) {
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users.")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("USERNAME")+"\t"+headerStyle.Render("ROLE")+"\t"+headerStyle.Render("EMAIL"))
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.Email)
	}
	w.Flush()
}

// storeApp loads configuration without model settings and opens the store.
func storeApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.LoadStoreOnly(opts.configPath)
	if err != nil {
		return nil, err
	}
	return openStore(cfg, newLogger(cmd.ErrOrStderr(), cfg.Log.Level, opts.verbose))
}
