package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedtray/feedtray/internal/store"
)

func newSetCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Edit resources",
	}
	cmd.AddCommand(newSetSourceCmd(getApp, getOutput))
	return cmd
}

func newSetSourceCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var title string
	var feedURL string
	var siteURL string
	var enable bool
	var disable bool
	var interval int
	var tag string
	var clearTag bool

	cmd := &cobra.Command{
		Use:   "source <id>",
		Short: "Edit a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if enable && disable {
				return fmt.Errorf("%w: --enable and --disable are mutually exclusive", store.ErrInvalidInput)
			}
			if tag != "" && clearTag {
				return fmt.Errorf("%w: --tag and --clear-tag are mutually exclusive", store.ErrInvalidInput)
			}

			src, err := app.store.SourceByID(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("load source: %w", err)
			}

			if cmd.Flags().Changed("title") {
				src.Title = strings.TrimSpace(title)
			}
			if cmd.Flags().Changed("feed-url") {
				u := strings.TrimSpace(feedURL)
				if u == "" {
					return fmt.Errorf("%w: feed url cannot be empty", store.ErrInvalidInput)
				}
				src.FeedURL = u
				// the old validators belong to the old URL
				src.ETag = ""
				src.LastModified = ""
			}
			if cmd.Flags().Changed("site-url") {
				src.SiteURL = strings.TrimSpace(siteURL)
			}
			if enable {
				src.Enabled = true
			}
			if disable {
				src.Enabled = false
			}
			if cmd.Flags().Changed("interval") {
				if interval < 0 {
					return fmt.Errorf("%w: interval must be >= 0", store.ErrInvalidInput)
				}
				// 0 falls back to the global interval
				src.RefreshIntervalMinutes = interval
			}
			if clearTag {
				src.Tag = nil
			} else if cmd.Flags().Changed("tag") {
				t := strings.TrimSpace(tag)
				if t == "" {
					src.Tag = nil
				} else {
					src.Tag = &t
				}
			}

			if err := app.store.UpdateSource(ctx, src); err != nil {
				return fmt.Errorf("update source: %w", err)
			}

			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, src)
			}
			fmt.Fprintf(os.Stdout, "Updated source %s: %s\n", src.ID, fallback(src.Title, src.FeedURL))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Source title")
	cmd.Flags().StringVar(&feedURL, "feed-url", "", "Feed URL (resets cached validators)")
	cmd.Flags().StringVar(&siteURL, "site-url", "", "Site URL")
	cmd.Flags().BoolVar(&enable, "enable", false, "Include in scheduled refreshes")
	cmd.Flags().BoolVar(&disable, "disable", false, "Exclude from scheduled refreshes")
	cmd.Flags().IntVar(&interval, "interval", 0, "Refresh interval in minutes (0 = global default)")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag for grouping")
	cmd.Flags().BoolVar(&clearTag, "clear-tag", false, "Remove the tag")
	return cmd
}

func newOrderCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "order <source-id> [source-id...]",
		Short: "Set the display order of sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			if err := app.store.UpdateSourcesOrder(cmd.Context(), args); err != nil {
				return fmt.Errorf("reorder sources: %w", err)
			}
			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, OrderResponse{OrderedSourceIDs: args})
			}
			fmt.Fprintf(os.Stdout, "Reordered %d source(s)\n", len(args))
			return nil
		},
	}
}
