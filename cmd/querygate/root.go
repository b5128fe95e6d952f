package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "querygate",
		Short: "Answer natural-language questions with validated read-only SQL",
		Long: `querygate turns a question into one read-only SQL statement, checks it against a
fixed safety policy, runs it and records the exchange.

Quick Start:
  querygate init                              # create the store schema
  querygate user add alice                    # register a user
  querygate ask --user 1 "How many users?"    # ask from the terminal
  querygate serve                             # run the HTTP API
  querygate events -L 3                       # inspect the latest event trail`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("QUERYGATE_CONFIG"), "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newInitCmd(opts),
		newUserCmd(opts),
		newServeCmd(opts),
		newAskCmd(opts),
		newHistoryCmd(opts),
		newConversationCmd(opts),
		newEventsCmd(opts),
	)
	return cmd
}

// newLogger builds the process logger. verbose forces debug level.
func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
