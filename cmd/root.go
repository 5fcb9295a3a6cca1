package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scipunch/newsdesk/aggregator"
	"github.com/scipunch/newsdesk/view"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig   string
	flagRefresh  bool
	flagCategory string
	flagSource   string
)

var rootCmd = &cobra.Command{
	Use:   "newsdesk",
	Short: "Feed aggregator",
	Long: `newsdesk fetches the configured feeds, ranks their articles by recency,
drops near-duplicate headlines and prints the result.

Feeds are cached for aggregate.cache_ttl_minutes; use --refresh to bypass the cache.`,
	SilenceUsage:      true,
	PersistentPreRun:  func(cmd *cobra.Command, args []string) { setupLogger(os.Stderr) },
	RunE:              runOnce,
	Args:              cobra.NoArgs,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a TOML config (default $XDG_CONFIG_HOME/newsdesk/config.toml)")
	rootCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "ignore cached feeds and fetch everything")
	rootCmd.Flags().StringVar(&flagCategory, "category", "", "only show articles of this category")
	rootCmd.Flags().StringVar(&flagSource, "source", "", "only show articles of this source (not deduplicated)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(statsCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	mode, err := view.Parse(flagCategory, flagSource)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), flagConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	state, _, err := a.scheduler.RunOnce(cmd.Context(), flagRefresh)
	if errors.Is(err, aggregator.ErrNoSources) {
		return fmt.Errorf("%w: add [[sources]] to %s", err, a.cfgPath)
	}
	if err != nil {
		return err
	}

	articles := view.Select(state, mode, a.holder.Load().Views.Merged)
	printArticles(cmd.OutOrStdout(), articles)
	printFailures(cmd.ErrOrStderr(), state.Statuses)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "newsdesk %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
