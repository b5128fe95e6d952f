package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/querygate/internal/events"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		rootID         int64
		conversationID int64
		depth          int
		asJSON         bool
		noPayload      bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the diagnostic event trail as a tree",
		Long: `Print a subtree of the events table. Without --id or --conversation the
root is the most recent process.started event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := storeApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id := rootID
			switch {
			case id > 0:
			case conversationID > 0:
				id, err = events.LatestRun(ctx, a.database, conversationID)
			default:
				id, err = events.LatestProcess(ctx, a.database)
			}
			if err != nil {
				return err
			}

			tree, err := events.Subtree(ctx, a.database, id)
			if err != nil {
				return err
			}
			ropts := events.RenderOptions{MaxDepth: depth, NoPayload: noPayload}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events.ToNode(tree, ropts))
			}
			events.Render(cmd.OutOrStdout(), tree, ropts)
			return nil
		},
	}
	cmd.Flags().Int64Var(&rootID, "id", 0, "Root event id")
	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Show the latest run of this conversation")
	cmd.Flags().IntVarP(&depth, "depth", "L", 0, "Maximum depth (0 = unlimited)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noPayload, "no-payload", false, "Hide payload fields")
	cmd.MarkFlagsMutuallyExclusive("id", "conversation")
	return cmd
}
