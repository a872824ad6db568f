package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedtray/feedtray/internal/fetch"
	"github.com/feedtray/feedtray/internal/model"
	"github.com/feedtray/feedtray/internal/opml"
	"github.com/feedtray/feedtray/internal/store"
)

func newImportCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.opml>",
		Short: "Import subscriptions from OPML (folders become tags)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			subs, err := opml.Read(args[0])
			if err != nil {
				return err
			}
			report := ImportReport{File: args[0], Total: len(subs), Results: make([]ImportResult, 0, len(subs))}

			for _, sub := range subs {
				item := ImportResult{FeedURL: sub.FeedURL}

				normalized, err := fetch.NormalizeURL(sub.FeedURL)
				if err != nil {
					item.Error = err.Error()
					report.Failed++
					report.Results = append(report.Results, item)
					continue
				}
				item.FeedURL = normalized

				existing, err := app.store.SourceByFeedURL(ctx, normalized)
				switch {
				case err == nil:
					item.SourceID = existing.ID
					report.Existing++
					report.Results = append(report.Results, item)
					continue
				case !errors.Is(err, store.ErrNotFound):
					item.Error = err.Error()
					report.Failed++
					report.Results = append(report.Results, item)
					continue
				}

				src := model.NewSource(sub.Title, normalized, sub.SiteURL)
				if t := strings.TrimSpace(sub.Tag); t != "" {
					src.Tag = &t
				}
				if err := app.store.AddSource(ctx, src); err != nil {
					item.Error = err.Error()
					report.Failed++
					report.Results = append(report.Results, item)
					continue
				}
				item.SourceID = src.ID
				item.Added = true
				report.Added++
				report.Results = append(report.Results, item)
			}

			if getOutput() == OutputJSON {
				return writeJSON(os.Stdout, report)
			}

			fmt.Fprintf(os.Stdout, "Imported %d subscription(s) from %s\n", report.Total, report.File)
			fmt.Fprintf(os.Stdout, "Added: %d, Existing: %d, Failed: %d\n", report.Added, report.Existing, report.Failed)
			if getOutput() == OutputWide {
				for _, r := range report.Results {
					if r.Error != "" {
						fmt.Fprintf(os.Stdout, "- %s -> error: %s\n", r.FeedURL, r.Error)
					}
				}
			}
			return nil
		},
	}
}

func newExportCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export subscriptions as OPML to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			sources, err := app.store.AllSources(cmd.Context())
			if err != nil {
				return err
			}
			return opml.Write(os.Stdout, sources)
		},
	}
}
