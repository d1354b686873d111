package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-anime/cache"
	"github.com/aluiziolira/go-scrape-anime/config"
)

func newCategoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the search categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(config.Categories))
			for _, name := range config.CategoryNames() {
				rows = append(rows, []string{name, config.Categories[name]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Code"}, rows))
			return nil
		},
	}
}

func newCacheCommand(root *rootOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	cf := &configFlags{}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, cmd.Flags(), cf)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)
			store, err := cache.New(cfg.CacheDir, cfg.CacheTTL, cache.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache at %s\n", store.Dir())
			return nil
		},
	}
	clearCmd.Flags().StringVar(&cf.cacheDir, "cache-dir", config.DefaultConfig().CacheDir, "Response cache directory")

	cacheCmd.AddCommand(clearCmd)
	return cacheCmd
}
