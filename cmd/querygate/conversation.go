package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newConversationCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect conversations",
	}
	var userID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := storeApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			convs, err := a.store.ListConversations(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
				return nil
			}
			for _, c := range convs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", headerStyle.Render(fmt.Sprintf("#%d", c.ID)), c.Title)
			}
			return nil
		},
	}
	list.Flags().Int64VarP(&userID, "user", "u", 0, "User id (required)")
	list.MarkFlagRequired("user")

	show := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Replay a conversation's message log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			a, err := storeApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, msgs, err := a.agent.Conversation(cmd.Context(), id)
			if err != nil {
				return err
			}
			renderMessages(cmd.OutOrStdout(), conv, msgs)
			return nil
		},
	}
	cmd.AddCommand(list, show)
	return cmd
}
