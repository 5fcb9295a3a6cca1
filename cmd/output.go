package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/scipunch/newsdesk/aggregator"
	"github.com/scipunch/newsdesk/cache"
	"github.com/scipunch/newsdesk/fetcher/types"
)

const timeLayout = "2006-01-02 15:04"

// setupLogger installs the default logger. DEBUG enables debug output,
// a terminal gets text records and anything else JSON.
func setupLogger(w *os.File) {
	slog.SetDefault(slog.New(newHandler(w, os.Getenv("DEBUG") != "", term.IsTerminal(int(w.Fd())))))
}

func newHandler(w io.Writer, debug, tty bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if tty {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func formatPublished(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func printArticles(w io.Writer, articles []types.Article) {
	if len(articles) == 0 {
		fmt.Fprintln(w, "No articles.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, a := range articles {
		fmt.Fprintf(tw, "%d.\t%s\t[%s]\t%s\t%s\n", i+1, formatPublished(a.PublishedAt), a.Category, a.SourceName, a.Title)
		if a.Link != "" {
			fmt.Fprintf(tw, "\t\t\t\t%s\n", a.Link)
		}
	}
	tw.Flush()
}

// printFailures lists the sources that produced nothing in the last cycle
func printFailures(w io.Writer, statuses []aggregator.FeedStatus) {
	for _, s := range statuses {
		if !s.OK {
			fmt.Fprintf(w, "warning: %s failed: %s\n", s.Name, s.Error)
		}
	}
}

func printStats(w io.Writer, stats cache.Stats) {
	fmt.Fprintf(w, "Cached feeds: %d\n", stats.Entries)
	if !stats.OldestEntry.IsZero() {
		fmt.Fprintf(w, "Oldest entry: %s\n", formatPublished(stats.OldestEntry))
	}
}
