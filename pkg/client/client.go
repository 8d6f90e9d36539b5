// Package client provides an HTTP implementation of fetch.Fetcher with
// request decoration, error classification, metrics and an optional Redis
// revalidation cache.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/clientrt/pkg/cache"
	"github.com/Sternrassler/clientrt/pkg/fetch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for HTTP requests.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_http_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clientrt_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientrt_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// Client issues single HTTP requests on behalf of the pagination and polling
// engines. It never retries.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL resolves relative request URLs. Optional.
	BaseURL string

	// User-Agent header (REQUIRED)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Headers are added to every request unless the request sets them.
	Headers map[string]string

	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration

	// MaxBodyBytes caps the response body size. Zero means no limit.
	MaxBodyBytes int64

	// Redis enables the revalidation cache for GET requests. Optional.
	Redis *redis.Client

	// CacheTTL is how long revalidation entries stay in Redis.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:    userAgent,
		Timeout:      30 * time.Second,
		MaxBodyBytes: 32 << 20,
		CacheTTL:     cache.DefaultTTL,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	if cfg.MaxBodyBytes < 0 {
		return nil, fmt.Errorf("max_body_bytes must be >= 0 (got %d)", cfg.MaxBodyBytes)
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
		}
		base = u
	}

	logger := log.With().Str("component", "http-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		base:   base,
		config: cfg,
		logger: logger,
	}

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return c, nil
}

// Fetch performs exactly one HTTP request. Transport failures are returned
// as *fetch.FetchError with class network. HTTP error statuses are returned
// as responses; the engines decide what they mean.
func (c *Client) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	target, err := c.resolve(req.URL)
	if err != nil {
		return nil, &fetch.FetchError{Class: fetch.ErrorClassClient, Method: req.Method, URL: req.URL, Err: err}
	}
	req.URL = target

	method := req.Method
	if method == "" {
		method = http.MethodGet
		req.Method = method
	}

	startTime := time.Now()
	defer func() {
		httpRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Look up a revalidation entry
	var cacheKey cache.Key
	var cached *cache.Entry
	if c.cache != nil && method == http.MethodGet {
		cacheKey = cache.RequestKey(req)
		cached, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", target).Msg("Cache get error")
		}
	}

	// Step 2: Build the HTTP request
	httpReq, err := c.newHTTPRequest(ctx, req, cached)
	if err != nil {
		return nil, &fetch.FetchError{Class: fetch.ErrorClassClient, Method: method, URL: target, Err: err}
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", target).
		Bool("conditional", cached != nil).
		Msg("Executing request")

	// Step 3: Execute
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.networkError(req, err)
	}
	defer httpResp.Body.Close()

	body, err := c.readBody(httpResp)
	if err != nil {
		return nil, c.networkError(req, err)
	}

	resp := &fetch.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Request:    req,
	}

	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: Serve 304 from the revalidated entry
	if resp.StatusCode == http.StatusNotModified && cached != nil {
		cache.Revalidated.Inc()
		if err := c.cache.Touch(ctx, cacheKey); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache TTL")
		}
		c.logger.Debug().Str("url", target).Msg("304 Not Modified - using cache")
		return cache.ToResponse(cached, req, resp.Header), nil
	}

	if class := fetch.ClassifyStatus(resp.StatusCode); class != "" {
		httpErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("method", method).
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")
		return resp, nil
	}

	// Step 5: Store revalidatable responses
	if c.cache != nil && method == http.MethodGet {
		if entry, ok := cache.FromResponse(resp); ok {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			}
		}
	}

	return resp, nil
}

func (c *Client) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if c.base == nil {
		return "", fmt.Errorf("relative url %q without base url", raw)
	}
	return c.base.ResolveReference(u).String(), nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req fetch.Request, cached *cache.Entry) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// Caller-supplied validators take precedence over the cache.
	if cached != nil && httpReq.Header.Get("If-None-Match") == "" && httpReq.Header.Get("If-Modified-Since") == "" {
		conditional := fetch.Request{Header: http.Header{}}
		cache.AddConditionalHeaders(&conditional, cached)
		for k, v := range conditional.Header {
			httpReq.Header[k] = v
		}
	}

	return httpReq, nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	if c.config.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if c.config.MaxBodyBytes > 0 && int64(len(body)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.config.MaxBodyBytes)
	}
	return body, nil
}

func (c *Client) networkError(req fetch.Request, err error) error {
	httpErrorsTotal.WithLabelValues(string(fetch.ErrorClassNetwork)).Inc()
	c.logger.Error().Err(err).Str("url", req.URL).Msg("HTTP request failed")
	return &fetch.FetchError{
		Class:  fetch.ErrorClassNetwork,
		Method: req.Method,
		URL:    req.URL,
		Err:    err,
	}
}

// Get performs a GET request to a URL, relative to BaseURL if set.
func (c *Client) Get(ctx context.Context, rawURL string) (*fetch.Response, error) {
	return c.Fetch(ctx, fetch.NewRequest(http.MethodGet, rawURL, nil))
}

// Close closes the client and releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, or nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
