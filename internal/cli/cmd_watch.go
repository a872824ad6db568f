package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newWatchCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}

			app.manager.OnChange(func() {
				fmt.Fprintln(os.Stderr, "refresh pass finished")
			})

			fmt.Fprintf(os.Stderr, "Refreshing every %s (ctrl-c to stop)\n", app.cfg.RefreshInterval)
			if err := app.manager.Run(cmd.Context()); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
