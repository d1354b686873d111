package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/aluiziolira/go-scrape-anime/config"
)

// configFlags holds the flags shared by commands that need a Config.
type configFlags struct {
	baseURL      string
	pages        int
	category     string
	filter       string
	workers      int
	parallelism  int
	rps          float64
	timeout      time.Duration
	itemTimeout  time.Duration
	maxRetries   int
	cacheDir     string
	cacheTTL     time.Duration
	failedPolicy string
	noSubmitters bool
	output       string
	format       string
	metricsAddr  string
}

func (f *configFlags) register(flags *pflag.FlagSet) {
	def := config.DefaultConfig()
	flags.StringVar(&f.baseURL, "base-url", def.BaseURL, "Origin base URL")
	flags.IntVarP(&f.pages, "pages", "p", def.MaxPages, "Maximum search result pages to fetch")
	flags.StringVar(&f.category, "category", def.Category, "Search category (see the categories command)")
	flags.StringVar(&f.filter, "filter", def.Filter, "Search filter: no_filter, no_remakes, or trusted")
	flags.IntVarP(&f.workers, "workers", "w", def.Workers, "Concurrent detail page fetches")
	flags.IntVar(&f.parallelism, "parallel", def.Parallelism, "Concurrent HTTP requests per host")
	flags.Float64Var(&f.rps, "rps", def.RequestsPerSecond, "Requests per second (0 disables the limiter)")
	flags.DurationVar(&f.timeout, "timeout", def.Timeout, "Per request timeout")
	flags.DurationVar(&f.itemTimeout, "item-timeout", def.ItemTimeout, "Per item enrichment timeout")
	flags.IntVar(&f.maxRetries, "max-retries", def.MaxRetries, "Maximum retry attempts per URL")
	flags.StringVar(&f.cacheDir, "cache-dir", def.CacheDir, "Response cache directory")
	flags.DurationVar(&f.cacheTTL, "cache-ttl", def.CacheTTL, "Response cache time to live")
	flags.StringVar(&f.failedPolicy, "failed-policy", def.FailedItemPolicy, "Failed item policy: exclude, sentinel, or title")
	flags.BoolVar(&f.noSubmitters, "no-submitters", false, "Ignore uploader names when choosing the release group")
	flags.StringVarP(&f.output, "output", "o", def.OutputFile, "Write enriched torrents to this file")
	flags.StringVar(&f.format, "format", def.OutputFormat, "Output format: csv, json, or dual")
	flags.StringVar(&f.metricsAddr, "metrics-addr", def.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
}

// apply copies only the flags the user set, so file and environment values
// survive unless overridden on the command line.
func (f *configFlags) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}
	set("base-url", func() { cfg.BaseURL = f.baseURL })
	set("pages", func() { cfg.MaxPages = f.pages })
	set("category", func() { cfg.Category = f.category })
	set("filter", func() { cfg.Filter = f.filter })
	set("workers", func() { cfg.Workers = f.workers })
	set("parallel", func() { cfg.Parallelism = f.parallelism })
	set("rps", func() { cfg.RequestsPerSecond = f.rps })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("item-timeout", func() { cfg.ItemTimeout = f.itemTimeout })
	set("max-retries", func() { cfg.MaxRetries = f.maxRetries })
	set("cache-dir", func() { cfg.CacheDir = f.cacheDir })
	set("cache-ttl", func() { cfg.CacheTTL = f.cacheTTL })
	set("failed-policy", func() { cfg.FailedItemPolicy = strings.ToLower(f.failedPolicy) })
	set("no-submitters", func() { cfg.FetchSubmitters = !f.noSubmitters })
	set("output", func() { cfg.OutputFile = f.output })
	set("format", func() { cfg.OutputFormat = strings.ToLower(f.format) })
	set("metrics-addr", func() { cfg.MetricsAddr = f.metricsAddr })
}

// loadConfig layers defaults, the TOML file, ANIME_SCRAPER_* variables and
// explicit flags, in that order.
func loadConfig(root *rootOptions, flags *pflag.FlagSet, cf *configFlags) (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if cf != nil {
		cf.apply(flags, cfg)
	}
	if root.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) *slog.Logger {
	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	return logger
}
