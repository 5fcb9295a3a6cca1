package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scipunch/newsdesk/cache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all cached feeds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, m, err := openMaintainer(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := m.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, m, err := openMaintainer(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := m.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func openMaintainer(cmd *cobra.Command) (cache.Store, cache.Maintainer, error) {
	cfg, _, err := loadConfig(flagConfig)
	if err != nil {
		return nil, nil, err
	}
	store, err := openCache(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	m, ok := store.(cache.Maintainer)
	if !ok {
		store.Close()
		return nil, nil, fmt.Errorf("%s cache does not support maintenance", cfg.Storage.Backend)
	}
	return store, m, nil
}
