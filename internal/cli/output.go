package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSourcesTable(out io.Writer, groups []TagGroup, globalIntervalMinutes int, wide bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if wide {
		fmt.Fprintln(tw, "ID\tTITLE\tUNREAD\tTOTAL\tLAST_FETCH\tNEXT_REFRESH\tFAILURES\tFEED_URL\tLAST_ERROR")
	} else {
		fmt.Fprintln(tw, "ID\tTITLE\tUNREAD\tLAST_FETCH\tFEED_URL")
	}
	for _, g := range groups {
		label := "(untagged)"
		if g.Tag != nil {
			label = *g.Tag
		}
		fmt.Fprintf(tw, "# %s\n", label)
		for _, s := range g.Sources {
			title := compactText(fallback(s.Title, s.FeedURL), 30)
			if !s.Enabled {
				title += " [disabled]"
			}
			if wide {
				fmt.Fprintf(
					tw,
					"%s\t%s\t%d\t%d\t%s\t%s\t%d\t%s\t%s\n",
					s.ID,
					title,
					s.UnreadCount,
					s.TotalCount,
					humanAgo(s.LastFetchedAt),
					formatNextRefresh(s.NextRefreshAt(globalIntervalMinutes)),
					s.ConsecutiveFailures,
					compactText(s.FeedURL, 56),
					compactText(oneLine(s.LastError), 70),
				)
			} else {
				marker := ""
				if s.LastError != "" {
					marker = " !"
				}
				fmt.Fprintf(
					tw,
					"%s\t%s%s\t%d\t%s\t%s\n",
					s.ID,
					title,
					marker,
					s.UnreadCount,
					humanAgo(s.LastFetchedAt),
					compactText(s.FeedURL, 56),
				)
			}
		}
	}
	_ = tw.Flush()
}

func writeArticlesTable(out io.Writer, articles []Article, wide bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if wide {
		fmt.Fprintln(tw, "ID\tSOURCE\tTITLE\tDATE\tREAD\tLINK\tSUMMARY")
		for _, a := range articles {
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				a.ID,
				compactText(a.SourceTitle, 24),
				compactText(fallback(a.Title, a.Link), 56),
				formatDate(a.PublishedAt),
				a.IsRead,
				compactText(a.Link, 48),
				compactText(oneLine(a.Summary), 90),
			)
		}
	} else {
		fmt.Fprintln(tw, "ID\tSOURCE\tTITLE\tDATE\tSUMMARY")
		for _, a := range articles {
			fmt.Fprintf(
				tw,
				"%s\t%s\t%s\t%s\t%s\n",
				a.ID,
				compactText(a.SourceTitle, 24),
				compactText(fallback(a.Title, a.Link), 56),
				formatDate(a.PublishedAt),
				compactText(oneLine(a.Summary), 90),
			)
		}
	}
	_ = tw.Flush()
}

func writeRefreshReportTable(out io.Writer, rep RefreshReport) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tNEW\tNOT_MODIFIED\tERROR")
	for _, r := range rep.Results {
		fmt.Fprintf(
			tw,
			"%s\t%d\t%t\t%s\n",
			compactText(fallback(r.SourceTitle, r.FeedURL), 30),
			r.NewArticles,
			r.NotModified,
			compactText(oneLine(r.Error), 70),
		)
	}
	_ = tw.Flush()
}
