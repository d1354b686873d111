package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Failure policies for items whose detail page could not be processed.
const (
	PolicyExclude  = "exclude"
	PolicySentinel = "sentinel"
	PolicyTitle    = "title"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL           string
	MaxPages          int
	Category          string
	Filter            string
	FetchSubmitters   bool
	Workers           int
	Parallelism       int
	RequestsPerSecond float64
	Timeout           time.Duration
	ItemTimeout       time.Duration
	RunTimeout        time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RetryBackoffMax   time.Duration
	CacheDir          string
	CacheTTL          time.Duration
	CacheMemEntries   int
	FailedItemPolicy  string
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	UserAgent         string
	MetricsAddr       string
	Verbose           bool
}

// DefaultConfig returns polite defaults for nyaa.si.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://nyaa.si",
		MaxPages:          5,
		Category:          "anime_english",
		Filter:            "no_filter",
		FetchSubmitters:   true,
		Workers:           4,
		Parallelism:       4,
		RequestsPerSecond: 4,
		Timeout:           30 * time.Second,
		ItemTimeout:       45 * time.Second,
		RunTimeout:        10 * time.Minute,
		MaxRetries:        2,
		RetryBackoff:      200 * time.Millisecond,
		RetryBackoffMax:   2 * time.Second,
		CacheDir:          defaultCacheDir(),
		CacheTTL:          24 * time.Hour,
		CacheMemEntries:   512,
		FailedItemPolicy:  PolicyExclude,
		OutputFile:        "",
		OutputFormat:      "csv",
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:           false,
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "anime-scraper", "html_cache")
	}
	return filepath.Join(os.TempDir(), "anime-scraper", "html_cache")
}

// Load reads a TOML file on top of the defaults. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	if err := fc.apply(cfg); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ItemTimeout < 0 {
		return fmt.Errorf("item timeout cannot be negative")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache dir cannot be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.CacheMemEntries < 0 {
		return fmt.Errorf("cache mem entries cannot be negative")
	}
	switch c.FailedItemPolicy {
	case PolicyExclude, PolicySentinel, PolicyTitle:
	default:
		return fmt.Errorf("failed item policy must be exclude, sentinel, or title")
	}
	if _, ok := Categories[c.Category]; !ok {
		return fmt.Errorf("unknown category %q", c.Category)
	}
	if _, ok := Filters[c.Filter]; !ok {
		return fmt.Errorf("unknown filter %q", c.Filter)
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a Go duration when it is set.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides fields from ANIME_SCRAPER_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok, err := EnvInt("ANIME_SCRAPER_PAGES"); err != nil {
		return err
	} else if ok {
		c.MaxPages = v
	}
	if v, ok, err := EnvInt("ANIME_SCRAPER_WORKERS"); err != nil {
		return err
	} else if ok {
		c.Workers = v
	}
	if v, ok, err := EnvDuration("ANIME_SCRAPER_CACHE_TTL"); err != nil {
		return err
	} else if ok {
		c.CacheTTL = v
	}
	if v, ok := EnvString("ANIME_SCRAPER_CACHE_DIR"); ok {
		c.CacheDir = v
	}
	if v, ok := EnvString("ANIME_SCRAPER_BASE_URL"); ok {
		c.BaseURL = v
	}
	if v, ok := EnvString("ANIME_SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}
