package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/querygate/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store schema",
		Long:  `Create the store database and its tables. Safe to run repeatedly.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStoreOnly(opts.configPath)
			if err != nil {
				return err
			}
			a, err := openStore(cfg, newLogger(cmd.ErrOrStderr(), cfg.Log.Level, opts.verbose))
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "store ready at %s\n", cfg.Store.Path)
			return nil
		},
	}
}
