// Package fetch issues polite, cached, retrying GET requests against the
// origin.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-anime/cache"
	"github.com/aluiziolira/go-scrape-anime/config"
	"github.com/gocolly/colly/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const responseKey = "fetch.response"

// Response is the result of a fetch, from the network or the cache.
type Response = cache.Response

// Recorder receives request-level metrics. scraper.Metrics implements it.
type Recorder interface {
	IncRequest(phase string)
	ObserveDuration(d time.Duration)
	IncRetries()
	IncError(errorType string)
	IncCache(result string)
}

type nopRecorder struct{}

func (nopRecorder) IncRequest(string) {}
func (nopRecorder) ObserveDuration(time.Duration) {}
func (nopRecorder) IncRetries() {}
func (nopRecorder) IncError(string) {}
func (nopRecorder) IncCache(string) {}

// Client fetches pages through a colly collector. Safe for concurrent use.
type Client struct {
	collector *colly.Collector
	cache     *cache.Cache
	limiter   *rate.Limiter
	group     singleflight.Group
	metrics   Recorder
	logger    *slog.Logger

	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration

	requests atomic.Int64
	retries  atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithCache routes every fetch through c.
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) {
		cl.cache = c
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(cl *Client) {
		if r != nil {
			cl.metrics = r
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New builds a client configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Client{
		collector:       collector,
		metrics:         nopRecorder{},
		logger:          slog.Default(),
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffMax: cfg.RetryBackoffMax,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})
	collector.OnResponse(func(r *colly.Response) {
		var header http.Header
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		r.Ctx.Put(responseKey, &Response{
			StatusCode: r.StatusCode,
			Body:       r.Body,
			Header:     header,
		})
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.metrics.ObserveDuration(time.Since(start))
		}
		if r.StatusCode >= http.StatusBadRequest {
			c.logger.Warn("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
	})
	return c, nil
}

// WithTransport replaces the collector's HTTP transport.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Requests returns how many network requests were issued.
func (c *Client) Requests() int {
	return int(c.requests.Load())
}

// Retries returns how many retries were scheduled.
func (c *Client) Retries() int {
	return int(c.retries.Load())
}

// Fetch GETs rawURL with params merged into its query. Non-2xx responses
// are returned as responses; only transport failures are errors.
// Concurrent fetches of the same request share one load, and the load
// runs under the context of the first caller.
func (c *Client) Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	req := cache.Request{Method: http.MethodGet, URL: rawURL, Params: params}
	key, err := cache.Key(req)
	if err != nil {
		return nil, err
	}
	target, err := withParams(rawURL, params)
	if err != nil {
		return nil, err
	}

	ch := c.group.DoChan(key, func() (any, error) {
		loader := func(ctx context.Context) (*Response, error) {
			return c.fetchWithRetry(ctx, target)
		}
		if c.cache == nil {
			return loader(ctx)
		}
		resp, err := c.cache.GetOrFetch(ctx, req, loader)
		if err == nil {
			if resp.FromCache {
				c.metrics.IncCache("hit")
			} else {
				c.metrics.IncCache("miss")
			}
		}
		return resp, err
	})

	select {
	case <-ctx.Done():
		return nil, ClassifyError(ctx.Err(), 0)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := *res.Val.(*Response)
		return &resp, nil
	}
}

func (c *Client) fetchWithRetry(ctx context.Context, target string) (*Response, error) {
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ClassifyError(ctx.Err(), 0)
				}
				return nil, ErrTimeout{Err: err}
			}
		}

		resp, err := c.do(ctx, target)
		if err == nil {
			return resp, nil
		}

		classified := ClassifyError(err, 0)
		label := ErrorTypeLabel(classified)
		c.metrics.IncError(label)
		if !IsTransient(classified) || attempt >= c.maxRetries || ctx.Err() != nil {
			return nil, classified
		}

		c.retries.Add(1)
		c.metrics.IncRetries()
		delay := c.backoff(attempt + 1)
		c.logger.Debug("retrying request",
			slog.String("url", target),
			slog.String("category", label),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)
		if err := SleepWithContext(ctx, delay); err != nil {
			return nil, ClassifyError(err, 0)
		}
	}
}

type outcome struct {
	resp *Response
	err  error
}

// do issues one request. The collector has no request context, so a
// cancelled ctx abandons the request and lets it finish in the background.
func (c *Client) do(ctx context.Context, target string) (*Response, error) {
	c.requests.Add(1)
	c.metrics.IncRequest("started")

	done := make(chan outcome, 1)
	go func() {
		cctx := colly.NewContext()
		err := c.collector.Request(http.MethodGet, target, nil, cctx, nil)
		resp, _ := cctx.GetAny(responseKey).(*Response)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		c.metrics.IncRequest("abandoned")
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.resp == nil {
			return nil, errors.New("request produced no response")
		}
		c.metrics.IncRequest("completed")
		return out.resp, nil
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.retryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.retryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// SleepWithContext blocks for d, returning early if ctx is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withParams(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	query := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
