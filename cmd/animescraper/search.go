package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-anime/cache"
	"github.com/aluiziolira/go-scrape-anime/config"
	"github.com/aluiziolira/go-scrape-anime/fetch"
	"github.com/aluiziolira/go-scrape-anime/grouping"
	"github.com/aluiziolira/go-scrape-anime/metadata"
	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/aluiziolira/go-scrape-anime/pipeline"
	"github.com/aluiziolira/go-scrape-anime/scraper"
)

type searchOptions struct {
	configFlags
	dubOnly  bool
	audio    string
	subtitle string
	group    string
}

func newSearchCommand(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search for torrents and print them grouped by release",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("search term cannot be empty")
			}
			cfg, err := loadConfig(root, cmd.Flags(), &opts.configFlags)
			if err != nil {
				return err
			}
			audio, err := parseLanguageFlag("audio", opts.audio)
			if err != nil {
				return err
			}
			subtitle, err := parseLanguageFlag("sub", opts.subtitle)
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd.OutOrStdout(), cfg, scraper.RunOptions{
				Query:            query,
				FetchSubmitters:  cfg.FetchSubmitters,
				DubOnly:          opts.dubOnly,
				AudioLanguage:    audio,
				SubtitleLanguage: subtitle,
			}, opts.group)
		},
	}

	flags := cmd.Flags()
	opts.configFlags.register(flags)
	flags.BoolVar(&opts.dubOnly, "dub", false, "Only keep releases that advertise an English dub")
	flags.StringVar(&opts.audio, "audio", "", "Preferred audio language (e.g. english, japanese)")
	flags.StringVar(&opts.subtitle, "sub", "", "Preferred subtitle language (e.g. english, french)")
	flags.StringVar(&opts.group, "group", "", "Print the torrents of the group with this ID")

	return cmd
}

func parseLanguageFlag(name, value string) (models.Language, error) {
	lang, ok := metadata.ParseLanguage(value)
	if !ok {
		return models.LangUnknown, fmt.Errorf("--%s: unknown language %q", name, value)
	}
	return lang, nil
}

func runSearch(ctx context.Context, out io.Writer, cfg *config.Config, runOpts scraper.RunOptions, groupID string) error {
	logger := setupLogging(cfg)

	store, err := cache.New(cfg.CacheDir, cfg.CacheTTL,
		cache.WithMemoryEntries(cfg.CacheMemEntries),
		cache.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	metrics := scraper.NewMetrics()
	client, err := fetch.New(cfg,
		fetch.WithCache(store),
		fetch.WithRecorder(metrics),
		fetch.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("initialising client: %w", err)
	}

	s, err := scraper.NewScraper(cfg, client, scraper.WithMetrics(metrics), scraper.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	stopMetrics := startMetricsServer(cfg.MetricsAddr, metrics, logger)
	defer stopMetrics()

	logger.Info("starting search",
		slog.String("query", runOpts.Query),
		slog.String("category", cfg.Category),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Workers),
	)

	startTime := time.Now()
	result, runErr := s.Run(ctx, runOpts)
	if result == nil {
		return runErr
	}
	duration := time.Since(startTime)

	if runErr == nil {
		if groupID != "" {
			if err := printMembers(out, result.Groups, groupID); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, renderGroups(result.Groups))
		}
		if cfg.OutputFile != "" {
			if err := writeOutput(cfg, result); err != nil {
				return err
			}
		}
	}

	printSummary(out, result, duration, cfg.OutputFile, store.Stats())
	return runErr
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func writeOutput(cfg *config.Config, result *models.RunResult) error {
	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	if err := writer.Write(pipeline.Rows(result.Groups, result.Failed)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	if err := writer.Validate(); err != nil {
		_ = writer.Close()
		return fmt.Errorf("output validation failed: %w", err)
	}
	return writer.Close()
}

func printMembers(out io.Writer, groups []models.TorrentGroup, id string) error {
	group, ok := grouping.Find(groups, id)
	if !ok {
		return fmt.Errorf("no group with id %q", id)
	}
	fmt.Fprintln(out, group.Label)
	fmt.Fprintln(out, renderMembers(grouping.Members(groups, id)))
	return nil
}

func printSummary(out io.Writer, result *models.RunResult, duration time.Duration, outputFile string, cacheStats cache.Stats) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Search complete")

	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.Succeeded) / duration.Seconds()
	}

	fmt.Fprintf(out, "  Query:         %s\n", result.Query)
	fmt.Fprintf(out, "  Pages:         %d fetched, %d failed\n", result.PageCount, result.PagesFailed)
	fmt.Fprintf(out, "  Listings:      %d\n", result.ListingCount)
	fmt.Fprintf(out, "  Enriched:      %d\n", result.Succeeded)
	if result.Skipped > 0 {
		fmt.Fprintf(out, "  Skipped:       %d\n", result.Skipped)
	}
	fmt.Fprintf(out, "  Groups:        %d\n", len(result.Groups))
	fmt.Fprintf(out, "  Requests:      %d (%d from cache)\n", result.RequestCount, result.CacheHits)
	fmt.Fprintf(out, "  Retries:       %d\n", result.RetryCount)
	fmt.Fprintf(out, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(out, "  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(out, "  Error types:   %v\n", result.ErrorsByType)
	}
	if cacheStats.Corrupt > 0 {
		fmt.Fprintf(out, "  Cache corrupt: %d\n", cacheStats.Corrupt)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Items/sec:     %.2f\n", itemsPerSec)
	if outputFile != "" {
		fmt.Fprintf(out, "  Output file:   %s\n", outputFile)
	}
	fmt.Fprintln(out, separator)
}
