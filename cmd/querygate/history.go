package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stupiduntilnot/querygate/internal/agent"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var userID int64
	var format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a user's query log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := storeApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.agent.History(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), entries, format)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "User id (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")
	cmd.MarkFlagRequired("user")
	return cmd
}

func writeHistory(w io.Writer, entries []agent.HistoryEntry, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		if len(entries) == 0 {
			fmt.Fprintln(w, "No history.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintln(w, dimStyle.Render(e.Timestamp.Format("2006-01-02 15:04:05")))
			fmt.Fprintln(w, labelStyle.Render("Q:"), e.Question)
			fmt.Fprintln(w, labelStyle.Render("A:"), e.Answer)
			fmt.Fprintln(w)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q (want text, json or yaml)", format)
	}
}
