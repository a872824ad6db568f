package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedtray/feedtray/internal/model"
	"github.com/feedtray/feedtray/internal/store"
)

func newAddCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var title string
	var tag string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Subscribe to a feed (page URLs are resolved via discovery)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			discovered, err := app.client.Discover(ctx, args[0])
			if err != nil {
				return fmt.Errorf("discover feed url: %w", err)
			}
			if discovered != args[0] {
				fmt.Fprintf(os.Stderr, "Discovered feed URL: %s\n", discovered)
			}

			existing, err := app.store.SourceByFeedURL(ctx, discovered)
			switch {
			case err == nil:
				if getOutput() == OutputJSON {
					return writeJSON(os.Stdout, AddSourceResponse{Source: existing, DiscoveredURL: discovered})
				}
				fmt.Fprintf(os.Stdout, "Skipped existing source %s: %s\n", existing.ID, fallback(existing.Title, existing.FeedURL))
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("look up source: %w", err)
			}

			src := model.NewSource(strings.TrimSpace(title), discovered, "")
			if t := strings.TrimSpace(tag); t != "" {
				src.Tag = &t
			}
			if err := app.store.AddSource(ctx, src); err != nil {
				return fmt.Errorf("add source: %w", err)
			}

			result, err := app.manager.RefreshSource(ctx, src.ID)
			if err != nil {
				return fmt.Errorf("initial refresh: %w", err)
			}

			src, err = app.store.SourceByID(ctx, src.ID)
			if err != nil {
				return fmt.Errorf("reload source: %w", err)
			}

			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, AddSourceResponse{
					Source:        src,
					Inserted:      true,
					DiscoveredURL: discovered,
					Refresh:       result,
				})
			}

			fmt.Fprintf(os.Stdout, "Added source %s: %s\n", src.ID, fallback(src.Title, src.FeedURL))
			if result.Error != "" {
				fmt.Fprintf(os.Stderr, "Initial refresh failed: %s\n", result.Error)
			} else {
				fmt.Fprintf(os.Stdout, "Fetched %d new article(s)\n", result.NewArticles)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Source title (defaults to the feed's own title)")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag for grouping")
	return cmd
}

func newRemoveCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source-id>",
		Short: "Unsubscribe from a source and delete its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := app.store.DeleteSource(cmd.Context(), id); err != nil {
				return fmt.Errorf("remove source: %w", err)
			}
			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, RemoveSourceResponse{RemovedSourceID: id})
			}
			fmt.Fprintf(os.Stdout, "Removed source %s\n", id)
			return nil
		},
	}
}
