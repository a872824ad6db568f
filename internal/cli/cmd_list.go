package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newListCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources and articles",
	}
	cmd.AddCommand(newListSourcesCmd(getApp, getOutput))
	cmd.AddCommand(newListArticlesCmd(getApp, getOutput))
	return cmd
}

func newListSourcesCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List sources grouped by tag, with unread counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			groups, err := app.store.SourcesGroupedByTag(ctx)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}

			counted, err := app.store.AllSourcesWithCounts(ctx)
			if err != nil {
				return fmt.Errorf("count articles: %w", err)
			}
			counts := make(map[string]Source, len(counted))
			for _, s := range counted {
				counts[s.ID] = s
			}
			for gi := range groups {
				for si := range groups[gi].Sources {
					if c, ok := counts[groups[gi].Sources[si].ID]; ok {
						groups[gi].Sources[si].UnreadCount = c.UnreadCount
						groups[gi].Sources[si].TotalCount = c.TotalCount
					}
				}
			}

			switch getOutput() {
			case OutputJSON:
				return writeJSON(os.Stdout, groups)
			case OutputWide:
				writeSourcesTable(os.Stdout, groups, app.cfg.RefreshIntervalMinutes(), true)
			default:
				writeSourcesTable(os.Stdout, groups, app.cfg.RefreshIntervalMinutes(), false)
			}
			return nil
		},
	}
	return cmd
}

func newListArticlesCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var sourceID string
	var limit int
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "articles",
		Short: "List articles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}

			effectiveLimit := limit
			if !cmd.Flags().Changed("limit") && app.cfg.DisplayCount > 0 {
				effectiveLimit = app.cfg.DisplayCount
			}

			articles, err := app.store.Articles(cmd.Context(), ArticleListOptions{
				SourceID:    sourceID,
				Limit:       effectiveLimit,
				UnreadOnly:  unreadOnly,
				UnreadFirst: app.cfg.UnreadFirst,
			})
			if err != nil {
				return fmt.Errorf("list articles: %w", err)
			}

			switch getOutput() {
			case OutputJSON:
				return writeJSON(os.Stdout, articles)
			case OutputWide:
				writeArticlesTable(os.Stdout, articles, true)
			default:
				writeArticlesTable(os.Stdout, articles, false)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Filter by source ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "Result limit")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Unread articles only")
	return cmd
}
