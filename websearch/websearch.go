// Package websearch is the client for the external web search collaborator
// used by the web_search tool and the direct search endpoint. Each search is
// a single bounded attempt; successful responses are cached for a short TTL.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/logging"
)

// Backend selects the search service protocol.
type Backend string

const (
	// BackendDuckDuckGo queries the DuckDuckGo instant answer API.
	BackendDuckDuckGo Backend = "duckduckgo"
	// BackendHTTP queries a JSON search service: GET <url>?q=..&top_k=..
	// answering {"results":[{"title","url","snippet"}]}.
	BackendHTTP Backend = "http"

	maxCacheSize = 1000
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher performs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// Options configure a Client.
type Options struct {
	Backend            Backend
	URL                string
	Timeout            time.Duration
	DefaultResultCount int
	CacheTTL           time.Duration
	HTTPClient         *http.Client
	Logger             logging.Logger
}

type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

// Client implements Searcher over HTTP.
type Client struct {
	opts    Options
	cache   map[string]*cacheEntry
	cacheMu sync.RWMutex
	now     func() time.Time
}

// NewClient creates a search client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		Backend:            BackendDuckDuckGo,
		URL:                "https://api.duckduckgo.com/",
		Timeout:            15 * time.Second,
		DefaultResultCount: 3,
		CacheTTL:           5 * time.Minute,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{opts: opts, cache: make(map[string]*cacheEntry), now: time.Now}
}

// Search runs query against the configured backend. It makes one attempt
// bounded by the configured timeout.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.Errorf("websearch.Search", core.ErrInvalidArgument, "query is empty")
	}
	if topK <= 0 {
		topK = c.opts.DefaultResultCount
	}

	key := fmt.Sprintf("%s:%d:%s", c.opts.Backend, topK, query)
	if cached, ok := c.getFromCache(key); ok {
		return cached, nil
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	var (
		results []Result
		err     error
	)
	switch c.opts.Backend {
	case BackendHTTP:
		results, err = c.searchHTTP(ctx, query, topK)
	default:
		results, err = c.searchDuckDuckGo(ctx, query, topK)
	}
	if err != nil {
		kind := core.ErrUpstreamUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = core.ErrTimeout
		}
		c.opts.Logger.Warn("websearch.search.failed", "backend", string(c.opts.Backend), "error", err.Error())
		return nil, core.E("websearch.Search", kind, err)
	}

	c.putInCache(key, results)
	return results, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chatreview/1.0")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 2<<20))
}

type ddgTopic struct {
	FirstURL string     `json:"FirstURL"`
	Text     string     `json:"Text"`
	Topics   []ddgTopic `json:"Topics"`
}

func (c *Client) searchDuckDuckGo(ctx context.Context, query string, topK int) ([]Result, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_redirect", "1")
	q.Set("no_html", "1")
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var ddg struct {
		AbstractText  string     `json:"AbstractText"`
		AbstractURL   string     `json:"AbstractURL"`
		Heading       string     `json:"Heading"`
		RelatedTopics []ddgTopic `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddg); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]Result, 0, topK)
	if ddg.AbstractText != "" && ddg.AbstractURL != "" {
		results = append(results, Result{Title: ddg.Heading, URL: ddg.AbstractURL, Snippet: ddg.AbstractText})
	}
	var walk func(topics []ddgTopic)
	walk = func(topics []ddgTopic) {
		for _, t := range topics {
			if len(results) >= topK {
				return
			}
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			if t.FirstURL != "" && t.Text != "" {
				results = append(results, Result{Title: clip(t.Text, 120), URL: t.FirstURL, Snippet: t.Text})
			}
		}
	}
	walk(ddg.RelatedTopics)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (c *Client) searchHTTP(ctx context.Context, query string, topK int) ([]Result, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("top_k", strconv.Itoa(topK))
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Results) > topK {
		resp.Results = resp.Results[:topK]
	}
	if resp.Results == nil {
		resp.Results = []Result{}
	}
	return resp.Results, nil
}

// getFromCache retrieves cached results if they exist and haven't expired.
func (c *Client) getFromCache(key string) ([]Result, bool) {
	if c.opts.CacheTTL <= 0 {
		return nil, false
	}
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	out := make([]Result, len(entry.results))
	copy(out, entry.results)
	return out, true
}

// putInCache stores results with TTL, evicting expired then oldest entries.
func (c *Client) putInCache(key string, results []Result) {
	if c.opts.CacheTTL <= 0 {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	now := c.now()
	for k, v := range c.cache {
		if now.After(v.expiresAt) {
			delete(c.cache, k)
		}
	}
	for len(c.cache) >= maxCacheSize {
		var oldestKey string
		var oldest time.Time
		for k, v := range c.cache {
			if oldestKey == "" || v.expiresAt.Before(oldest) {
				oldestKey, oldest = k, v.expiresAt
			}
		}
		delete(c.cache, oldestKey)
	}
	stored := make([]Result, len(results))
	copy(stored, results)
	c.cache[key] = &cacheEntry{results: stored, expiresAt: now.Add(c.opts.CacheTTL)}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
