package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedtray/feedtray/internal/store"
)

func newRefreshCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [source-id]",
		Short: "Refresh all enabled sources, or one source by ID",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var rep RefreshReport
			if len(args) == 1 {
				result, err := app.manager.RefreshSource(ctx, strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("refresh source: %w", err)
				}
				rep.Results = []RefreshResult{result}
			} else {
				rep, err = app.manager.RefreshAll(ctx)
				if err != nil {
					return fmt.Errorf("refresh: %w", err)
				}
			}

			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, rep)
			}
			writeRefreshReportTable(os.Stdout, rep)
			return nil
		},
	}
}

func newReadCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var all bool
	var sourceID string
	var tag string
	var untagged bool

	cmd := &cobra.Command{
		Use:   "read [article-id]",
		Short: "Mark articles as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			switch {
			case len(args) == 1:
				if all || sourceID != "" || tag != "" || untagged {
					return fmt.Errorf("%w: an article id and batch flags are mutually exclusive", store.ErrInvalidInput)
				}
				id := strings.TrimSpace(args[0])
				if err := app.manager.MarkRead(ctx, id); err != nil {
					return fmt.Errorf("mark read: %w", err)
				}
				if getOutput() == OutputJSON {
					return writeJSON(os.Stdout, ReadResponse{ArticleID: id})
				}
				fmt.Fprintf(os.Stdout, "Marked article %s read\n", id)
				return nil

			case !all:
				return fmt.Errorf("%w: provide an article id or --all", store.ErrInvalidInput)

			case untagged:
				if err := app.manager.MarkAllReadForTag(ctx, nil); err != nil {
					return fmt.Errorf("mark read: %w", err)
				}
				if getOutput() == OutputJSON {
					return writeJSON(os.Stdout, ReadResponse{All: true})
				}
				fmt.Fprintln(os.Stdout, "Marked untagged sources read")
				return nil

			case tag != "":
				t := strings.TrimSpace(tag)
				if err := app.manager.MarkAllReadForTag(ctx, &t); err != nil {
					return fmt.Errorf("mark read: %w", err)
				}
				if getOutput() == OutputJSON {
					return writeJSON(os.Stdout, ReadResponse{All: true, Tag: &t})
				}
				fmt.Fprintf(os.Stdout, "Marked tag %q read\n", t)
				return nil

			default:
				if sourceID != "" {
					if _, err := app.store.SourceByID(ctx, sourceID); err != nil {
						return fmt.Errorf("load source: %w", err)
					}
				}
				if err := app.manager.MarkAllRead(ctx, sourceID); err != nil {
					return fmt.Errorf("mark read: %w", err)
				}
				if getOutput() == OutputJSON {
					return writeJSON(os.Stdout, ReadResponse{All: true, SourceID: sourceID})
				}
				if sourceID != "" {
					fmt.Fprintf(os.Stdout, "Marked source %s read\n", sourceID)
				} else {
					fmt.Fprintln(os.Stdout, "Marked everything read")
				}
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Mark a whole scope read instead of one article")
	cmd.Flags().StringVar(&sourceID, "source", "", "Limit --all to one source")
	cmd.Flags().StringVar(&tag, "tag", "", "Limit --all to one tag")
	cmd.Flags().BoolVar(&untagged, "untagged", false, "Limit --all to untagged sources")
	return cmd
}
