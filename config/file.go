package config

import (
	"fmt"
	"time"
)

// fileConfig mirrors Config for TOML decoding. Durations are written as Go
// duration strings ("30s", "24h"); unset keys keep their defaults.
type fileConfig struct {
	BaseURL           *string  `toml:"base_url"`
	MaxPages          *int     `toml:"max_pages"`
	Category          *string  `toml:"category"`
	Filter            *string  `toml:"filter"`
	FetchSubmitters   *bool    `toml:"fetch_submitters"`
	Workers           *int     `toml:"workers"`
	Parallelism       *int     `toml:"parallelism"`
	RequestsPerSecond *float64 `toml:"requests_per_second"`
	Timeout           string   `toml:"timeout"`
	ItemTimeout       string   `toml:"item_timeout"`
	RunTimeout        string   `toml:"run_timeout"`
	MaxRetries        *int     `toml:"max_retries"`
	RetryBackoff      string   `toml:"retry_backoff"`
	RetryBackoffMax   string   `toml:"retry_backoff_max"`
	CacheDir          *string  `toml:"cache_dir"`
	CacheTTL          string   `toml:"cache_ttl"`
	CacheMemEntries   *int     `toml:"cache_mem_entries"`
	FailedItemPolicy  *string  `toml:"failed_item_policy"`
	OutputFile        *string  `toml:"output_file"`
	OutputFormat      *string  `toml:"output_format"`
	UserAgent         *string  `toml:"user_agent"`
	MetricsAddr       *string  `toml:"metrics_addr"`
	Verbose           *bool    `toml:"verbose"`
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.BaseURL, fc.BaseURL)
	setInt(&cfg.MaxPages, fc.MaxPages)
	setString(&cfg.Category, fc.Category)
	setString(&cfg.Filter, fc.Filter)
	setBool(&cfg.FetchSubmitters, fc.FetchSubmitters)
	setInt(&cfg.Workers, fc.Workers)
	setInt(&cfg.Parallelism, fc.Parallelism)
	if fc.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *fc.RequestsPerSecond
	}
	setInt(&cfg.MaxRetries, fc.MaxRetries)
	setString(&cfg.CacheDir, fc.CacheDir)
	setInt(&cfg.CacheMemEntries, fc.CacheMemEntries)
	setString(&cfg.FailedItemPolicy, fc.FailedItemPolicy)
	setString(&cfg.OutputFile, fc.OutputFile)
	setString(&cfg.OutputFormat, fc.OutputFormat)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setBool(&cfg.Verbose, fc.Verbose)

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"timeout", fc.Timeout, &cfg.Timeout},
		{"item_timeout", fc.ItemTimeout, &cfg.ItemTimeout},
		{"run_timeout", fc.RunTimeout, &cfg.RunTimeout},
		{"retry_backoff", fc.RetryBackoff, &cfg.RetryBackoff},
		{"retry_backoff_max", fc.RetryBackoffMax, &cfg.RetryBackoffMax},
		{"cache_ttl", fc.CacheTTL, &cfg.CacheTTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
