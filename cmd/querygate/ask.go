package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/querygate/internal/agent"
	"github.com/stupiduntilnot/querygate/internal/config"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var userID, conversationID int64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask one question from the terminal",
		Long: `Run a question through synthesis, validation and execution and print the
generated SQL and the answer. Pass --conversation to continue an earlier one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			a, err := openApp(cfg, newLogger(cmd.ErrOrStderr(), cfg.Log.Level, opts.verbose), "ask")
			if err != nil {
				return err
			}
			defer a.Close()

			req := agent.AskRequest{UserID: userID, Question: strings.Join(args, " ")}
			if cmd.Flags().Changed("conversation") {
				req.ConversationID = &conversationID
			}
			ex, err := a.agent.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ex)
			}
			renderExchange(cmd.OutOrStdout(), ex)
			return nil
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "Asking user id (required)")
	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Continue this conversation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the exchange as JSON")
	cmd.MarkFlagRequired("user")
	return cmd
}
