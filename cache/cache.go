// Package cache stores successful HTTP responses on disk, keyed by a
// normalized request, with a bounded in-memory layer in front.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	bodySuffix = ".body"
	metaSuffix = ".json"
	tempPrefix = "cache-"
)

// Request identifies a cacheable request.
type Request struct {
	Method string
	URL    string
	Params url.Values
}

// Response is a stored or freshly loaded HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	FromCache  bool
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Loader produces a response on a cache miss.
type Loader func(ctx context.Context) (*Response, error)

// Stats counts cache outcomes since the cache was created.
type Stats struct {
	Hits    int64
	Misses  int64
	Stores  int64
	Corrupt int64
}

type entryMeta struct {
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header,omitempty"`
	StoredAt   time.Time   `json:"stored_at"`
	BodySize   int         `json:"body_size"`
	Checksum   uint64      `json:"checksum"`
}

type memEntry struct {
	resp     *Response
	storedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	mem    *lru.Cache[string, memEntry]
	logger *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	stores  atomic.Int64
	corrupt atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for store and corruption events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMemoryEntries bounds the in-memory layer. Zero disables it.
func WithMemoryEntries(n int) Option {
	return func(c *Cache) {
		if n <= 0 {
			c.mem = nil
			return
		}
		mem, err := lru.New[string, memEntry](n)
		if err == nil {
			c.mem = mem
		}
	}
}

// New creates a cache rooted at dir. Entries older than ttl are misses.
func New(dir string, ttl time.Duration, opts ...Option) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{
		dir:    dir,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	WithMemoryEntries(256)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir exposes the backing directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the storage key for req. Scheme and host are lower-cased,
// the fragment is dropped and query parameters are sorted, so requests
// differing only in parameter order share a key.
func Key(req Request) (string, error) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", req.URL)
	}
	query := u.Query()
	for k, vs := range req.Params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	canonical := method + " " + strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
	if encoded := query.Encode(); encoded != "" {
		canonical += "?" + encoded
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// GetOrFetch returns the unexpired stored response for req, or calls
// loader and stores its result when it is a 2xx response. Loader errors
// are returned unmodified and nothing is stored for them.
func (c *Cache) GetOrFetch(ctx context.Context, req Request, loader Loader) (*Response, error) {
	key, err := Key(req)
	if err != nil {
		return nil, err
	}
	if resp, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return resp, nil
	}
	c.misses.Add(1)

	resp, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		if err := c.store(key, req, resp); err != nil {
			c.logger.Warn("cache store failed", slog.String("url", req.URL), slog.Any("error", err))
		}
	}
	return resp, nil
}

// Clear removes every entry from memory and disk.
func (c *Cache) Clear() error {
	if c.mem != nil {
		c.mem.Purge()
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(name, bodySuffix) && !strings.HasSuffix(name, metaSuffix) && !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stores:  c.stores.Load(),
		Corrupt: c.corrupt.Load(),
	}
}

func (c *Cache) expired(storedAt time.Time) bool {
	return c.now().Sub(storedAt) > c.ttl
}

func (c *Cache) lookup(key string) (*Response, bool) {
	if c.mem != nil {
		if entry, ok := c.mem.Get(key); ok {
			if !c.expired(entry.storedAt) {
				return cloneResponse(entry.resp, true), true
			}
			c.mem.Remove(key)
		}
	}

	meta, body, ok := c.readDisk(key)
	if !ok || c.expired(meta.StoredAt) {
		return nil, false
	}
	resp := &Response{
		StatusCode: meta.StatusCode,
		Body:       body,
		Header:     meta.Header,
	}
	if c.mem != nil {
		c.mem.Add(key, memEntry{resp: resp, storedAt: meta.StoredAt})
	}
	return cloneResponse(resp, true), true
}

func (c *Cache) readDisk(key string) (entryMeta, []byte, bool) {
	var meta entryMeta
	metaBytes, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.discard(key, err)
		}
		return meta, nil, false
	}
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		c.discard(key, fmt.Errorf("decode metadata: %w", err))
		return meta, nil, false
	}
	body, err := os.ReadFile(c.bodyPath(key))
	if err != nil {
		c.discard(key, fmt.Errorf("read body: %w", err))
		return meta, nil, false
	}
	// A body from one writer paired with metadata from another fails here.
	if len(body) != meta.BodySize || xxhash.Sum64(body) != meta.Checksum {
		c.discard(key, errors.New("body checksum mismatch"))
		return meta, nil, false
	}
	return meta, body, true
}

func (c *Cache) discard(key string, reason error) {
	c.corrupt.Add(1)
	c.logger.Warn("discarding corrupt cache entry", slog.String("key", key), slog.Any("error", reason))
	_ = os.Remove(c.metaPath(key))
	_ = os.Remove(c.bodyPath(key))
}

func (c *Cache) store(key string, req Request, resp *Response) error {
	storedAt := c.now().UTC()
	meta := entryMeta{
		Method:     strings.ToUpper(req.Method),
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		StoredAt:   storedAt,
		BodySize:   len(resp.Body),
		Checksum:   xxhash.Sum64(resp.Body),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}
	if err := writeFileAtomic(c.bodyPath(key), resp.Body, 0o644); err != nil {
		return err
	}
	if err := writeFileAtomic(c.metaPath(key), metaBytes, 0o644); err != nil {
		return err
	}
	if c.mem != nil {
		c.mem.Add(key, memEntry{resp: cloneResponse(resp, false), storedAt: storedAt})
	}
	c.stores.Add(1)
	c.logger.Debug("cache stored", slog.String("url", req.URL), slog.Int("bytes", len(resp.Body)))
	return nil
}

func (c *Cache) bodyPath(key string) string {
	return filepath.Join(c.dir, key+bodySuffix)
}

func (c *Cache) metaPath(key string) string {
	return filepath.Join(c.dir, key+metaSuffix)
}

func cloneResponse(r *Response, fromCache bool) *Response {
	return &Response{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Header:     r.Header.Clone(),
		FromCache:  fromCache,
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
