package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feedtray/feedtray/internal/config"
)

// Execute loads configuration, builds the command tree, and runs it with
// signal-aware cancellation.
func Execute() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return NewRootCmd(cfg).ExecuteContext(ctx)
}

func NewRootCmd(cfg config.Config) *cobra.Command {
	var dbPath string
	var output string
	var outFmt OutputFormat
	var app *App

	dbPath = cfg.DBPath
	output = string(OutputTable)

	getApp := func() *App { return app }
	getOutput := func() OutputFormat { return outFmt }

	cmd := &cobra.Command{
		Use:           "feedtray",
		Short:         "Feed aggregator with read state and scheduled refresh",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			parsedFmt, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			outFmt = parsedFmt
			if !requiresApp(cmd) {
				return nil
			}
			if app != nil {
				return nil
			}
			a, err := NewApp(cfg, dbPath)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				_ = app.Close()
				app = nil
			}
		},
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", dbPath, "SQLite database path")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", output, "Output format: table, json, wide")

	cmd.AddCommand(newAddCmd(getApp, getOutput))
	cmd.AddCommand(newRemoveCmd(getApp, getOutput))
	cmd.AddCommand(newListCmd(getApp, getOutput))
	cmd.AddCommand(newSetCmd(getApp, getOutput))
	cmd.AddCommand(newOrderCmd(getApp, getOutput))
	cmd.AddCommand(newRefreshCmd(getApp, getOutput))
	cmd.AddCommand(newReadCmd(getApp, getOutput))
	cmd.AddCommand(newImportCmd(getApp, getOutput))
	cmd.AddCommand(newExportCmd(getApp, getOutput))
	cmd.AddCommand(newWatchCmd(getApp, getOutput))

	return cmd
}

func parseOutputFormat(raw string) (OutputFormat, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch OutputFormat(s) {
	case OutputTable, OutputJSON, OutputWide:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q (expected table|json|wide)", raw)
	}
}

func requiresApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		name := c.Name()
		if name == "help" || name == "completion" {
			return false
		}
	}
	return true
}
