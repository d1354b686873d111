// Package scraper orchestrates a search run: listing pages, per-item detail
// fetches on a worker pool, metadata extraction and grouping.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-anime/config"
	"github.com/aluiziolira/go-scrape-anime/fetch"
	"github.com/aluiziolira/go-scrape-anime/grouping"
	"github.com/aluiziolira/go-scrape-anime/metadata"
	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/aluiziolira/go-scrape-anime/parser"
	"github.com/aluiziolira/go-scrape-anime/pipeline"
	"github.com/google/uuid"
)

// ErrOriginUnreachable is returned when no search page could be fetched.
var ErrOriginUnreachable = errors.New("scraper: origin unreachable")

const (
	labelMalformed   = "malformed"
	progressInterval = 10 * time.Second
)

// Fetcher is the subset of fetch.Client the orchestrator needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (*fetch.Response, error)
	Requests() int
	Retries() int
}

// RunOptions describe one search.
type RunOptions struct {
	Query            string
	MaxPages         int    // 0 uses the configured value
	Category         string // category name; "" uses the configured value
	Filter           string // filter name; "" uses the configured value
	FetchSubmitters  bool
	DubOnly          bool
	AudioLanguage    models.Language
	SubtitleLanguage models.Language
}

// Scraper runs searches against the origin.
type Scraper struct {
	cfg       *config.Config
	client    Fetcher
	extractor *metadata.Extractor
	logger    *slog.Logger
	Metrics   *Metrics
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithExtractor replaces the default metadata extractor.
func WithExtractor(e *metadata.Extractor) Option {
	return func(s *Scraper) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithLogger sets the scraper logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics shares a metrics bundle, typically the one the fetch client
// records into.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) {
		if m != nil {
			s.Metrics = m
		}
	}
}

// NewScraper builds a scraper configured from cfg.
func NewScraper(cfg *config.Config, client Fetcher, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if client == nil {
		return nil, errors.New("nil fetcher")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Scraper{
		cfg:       cfg,
		client:    client,
		extractor: metadata.NewExtractor(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Metrics == nil {
		s.Metrics = NewMetrics()
	}
	return s, nil
}

// runState collects failures from concurrent tasks.
type runState struct {
	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
	cacheHits    atomic.Int64
}

func (st *runState) fail(target string, label string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failedURLs = append(st.failedURLs, target)
	st.errorsByType[label]++
}

// Run executes a search. Per-page and per-item failures are recorded in
// the result; the run only fails when no search page could be fetched.
// On cancellation it returns whatever completed.
func (s *Scraper) Run(ctx context.Context, opts RunOptions) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = s.withDefaults(opts)
	if _, ok := config.Categories[opts.Category]; !ok {
		return nil, fmt.Errorf("unknown category %q", opts.Category)
	}
	if _, ok := config.Filters[opts.Filter]; !ok {
		return nil, fmt.Errorf("unknown filter %q", opts.Filter)
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))
	st := &runState{errorsByType: make(map[string]int)}
	requestsBefore, retriesBefore := s.client.Requests(), s.client.Retries()

	query := strings.TrimSpace(opts.Query)
	if opts.DubOnly {
		query = metadata.DubQuery(query)
	}
	result := &models.RunResult{
		RunID:     runID,
		Query:     query,
		StartTime: time.Now(),
	}
	logger.Info("run started",
		slog.String("query", query),
		slog.Int("max_pages", opts.MaxPages),
		slog.String("category", opts.Category),
	)

	listings, lastErr := s.collectListings(ctx, query, opts, st, result, logger)

	defer func() {
		result.EndTime = time.Now()
		result.FailedURLs = st.failedURLs
		result.ErrorsByType = st.errorsByType
		result.ErrorCount = len(st.failedURLs)
		result.RequestCount = s.client.Requests() - requestsBefore
		result.RetryCount = s.client.Retries() - retriesBefore
		result.CacheHits = int(st.cacheHits.Load())
	}()

	if result.PageCount == 0 {
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		if lastErr == nil {
			lastErr = errors.New("no pages fetched")
		}
		logger.Error("no search page could be fetched", slog.Any("error", lastErr))
		return result, fmt.Errorf("%w: %w", ErrOriginUnreachable, lastErr)
	}

	listings = metadata.FilterByLanguage(listings, opts.AudioLanguage, opts.SubtitleLanguage)
	result.ListingCount = len(listings)

	enriched, done := s.enrichAll(ctx, listings, opts, st, logger)
	s.collect(result, listings, enriched, done)

	result.Groups = grouping.Group(result.Items)
	s.Metrics.SetGroups(len(result.Groups))

	logger.Info("run finished",
		slog.Int("pages", result.PageCount),
		slog.Int("pages_failed", result.PagesFailed),
		slog.Int("listings", result.ListingCount),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", len(result.Failed)),
		slog.Int("skipped", result.Skipped),
		slog.Int("groups", len(result.Groups)),
	)
	return result, nil
}

func (s *Scraper) withDefaults(opts RunOptions) RunOptions {
	if opts.MaxPages <= 0 {
		opts.MaxPages = s.cfg.MaxPages
	}
	if opts.Category == "" {
		opts.Category = s.cfg.Category
	}
	if opts.Filter == "" {
		opts.Filter = s.cfg.Filter
	}
	return opts
}

// SearchParams builds the origin's query parameters for one results page,
// sorted by seeders descending.
func SearchParams(query, category, filter string, page int) url.Values {
	params := url.Values{}
	params.Set("f", config.Filters[filter])
	params.Set("c", config.Categories[category])
	params.Set("q", query)
	params.Set("s", "seeders")
	params.Set("o", "desc")
	params.Set("p", strconv.Itoa(page))
	return params
}

// collectListings fetches pages sequentially, stopping early at the first
// page without rows. Failed pages are recorded and skipped.
func (s *Scraper) collectListings(ctx context.Context, query string, opts RunOptions, st *runState, result *models.RunResult, logger *slog.Logger) ([]models.Listing, error) {
	base := s.baseURL()
	seen := make(map[string]struct{})
	var (
		listings []models.Listing
		lastErr  error
	)

	for page := 1; page <= opts.MaxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		params := SearchParams(query, opts.Category, opts.Filter, page)
		pageURL := base + "/?" + params.Encode()

		rows, err := s.fetchPage(ctx, base+"/", params)
		if err != nil {
			lastErr = err
			result.PagesFailed++
			s.Metrics.IncPage("failed")
			st.fail(pageURL, errorLabel(err))
			logger.Error("search page failed",
				slog.Int("page", page),
				slog.String("category", errorLabel(err)),
				slog.Any("error", err),
			)
			continue
		}
		result.PageCount++
		s.Metrics.IncPage("ok")
		if len(rows) == 0 {
			logger.Debug("empty page, stopping", slog.Int("page", page))
			break
		}

		added := 0
		for _, l := range rows {
			if _, dup := seen[l.ID]; dup {
				continue
			}
			if opts.DubOnly && !metadata.ContainsDubKeywords(l.Title) {
				continue
			}
			seen[l.ID] = struct{}{}
			listings = append(listings, l)
			added++
		}
		logger.Debug("search page parsed",
			slog.Int("page", page),
			slog.Int("rows", len(rows)),
			slog.Int("added", added),
		)
	}
	return listings, lastErr
}

func (s *Scraper) fetchPage(ctx context.Context, target string, params url.Values) ([]models.Listing, error) {
	resp, err := s.client.Fetch(ctx, target, params)
	if err != nil {
		return nil, fmt.Errorf("fetch search page: %w", err)
	}
	if err := fetch.CheckStatus(resp); err != nil {
		s.Metrics.IncError(errorLabel(err))
		return nil, fmt.Errorf("search page: %w", err)
	}
	rows, err := parser.ParseSearchPage(resp.Body, s.cfg.BaseURL)
	if err != nil {
		s.Metrics.IncError(labelMalformed)
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	return rows, nil
}

// enrichAll runs one detail task per listing on the pool. done[i] reports
// whether listing i was processed before the run ended.
func (s *Scraper) enrichAll(ctx context.Context, listings []models.Listing, opts RunOptions, st *runState, logger *slog.Logger) ([]models.EnrichedTorrent, []bool) {
	enriched := make([]models.EnrichedTorrent, len(listings))
	done := make([]bool, len(listings))
	if len(listings) == 0 {
		return enriched, done
	}

	pool := pipeline.NewPool(ctx, s.cfg.Workers)
	pool.StartProgressReporting(progressInterval, logger)

	for i, l := range listings {
		err := pool.Submit(func(ctx context.Context) error {
			item := models.EnrichedTorrent{Listing: l}
			meta, target, err := s.enrich(ctx, l, opts, st)
			if err != nil {
				label := errorLabel(err)
				item.Err = err
				st.fail(target, label)
				logger.Warn("item failed",
					slog.String("id", l.ID),
					slog.String("category", label),
					slog.Any("error", err),
				)
			} else {
				item.Metadata = &meta
				s.Metrics.IncItems()
			}
			enriched[i] = item
			done[i] = true
			return nil
		})
		if err != nil {
			logger.Warn("dispatch stopped",
				slog.Int("dispatched", i),
				slog.Int("remaining", len(listings)-i),
				slog.Any("error", err),
			)
			break
		}
	}
	if err := pool.Wait(); err != nil {
		logger.Error("worker pool", slog.Any("error", err))
	}
	return enriched, done
}

// enrich fetches and parses one detail page under the item timeout.
func (s *Scraper) enrich(ctx context.Context, l models.Listing, opts RunOptions, st *runState) (models.TorrentMetadata, string, error) {
	if s.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ItemTimeout)
		defer cancel()
	}

	target := l.DetailURL
	if target == "" {
		target = s.baseURL() + "/view/" + l.ID
	}

	resp, err := s.client.Fetch(ctx, target, nil)
	if err != nil {
		return models.TorrentMetadata{}, target, fmt.Errorf("fetch detail %s: %w", l.ID, err)
	}
	if resp.FromCache {
		st.cacheHits.Add(1)
	}
	if err := fetch.CheckStatus(resp); err != nil {
		s.Metrics.IncError(errorLabel(err))
		return models.TorrentMetadata{}, target, fmt.Errorf("detail %s: %w", l.ID, err)
	}
	detail, err := parser.ParseDetailPage(resp.Body, target)
	if err != nil {
		s.Metrics.IncError(labelMalformed)
		return models.TorrentMetadata{}, target, fmt.Errorf("detail %s: %w", l.ID, err)
	}
	if !opts.FetchSubmitters {
		detail.Submitter = ""
	}
	if detail.Category == "" {
		detail.Category = l.CategoryName
	}
	return s.extractor.Extract(detail, ""), target, nil
}

// collect assembles the result in listing order and applies the failed
// item policy. Listings that never ran are counted as skipped, so
// ListingCount == Succeeded + len(Failed) + Skipped.
func (s *Scraper) collect(result *models.RunResult, listings []models.Listing, enriched []models.EnrichedTorrent, done []bool) {
	for i := range listings {
		if !done[i] {
			result.Skipped++
			continue
		}
		item := enriched[i]
		if item.Err == nil {
			result.Items = append(result.Items, item)
			result.Succeeded++
			continue
		}

		result.Failed = append(result.Failed, item)
		switch s.cfg.FailedItemPolicy {
		case config.PolicySentinel:
			result.Items = append(result.Items, item)
		case config.PolicyTitle:
			meta := s.extractor.ExtractListing(item.Listing)
			item.Metadata = &meta
			result.Items = append(result.Items, item)
		}
	}
}

func (s *Scraper) baseURL() string {
	return strings.TrimRight(s.cfg.BaseURL, "/")
}

func errorLabel(err error) string {
	if errors.Is(err, parser.ErrMalformedPage) {
		return labelMalformed
	}
	return fetch.ErrorTypeLabel(err)
}
