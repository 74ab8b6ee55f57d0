// Package httpfetch performs the GET requests behind every remote collaborator
// of a verification: issuer profiles, revocation lists, explorer APIs and
// hashlinked resources.
package httpfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"certverify/internal/lookup/cache"
	"certverify/pkg/platform/sentinel"
	"certverify/pkg/platform/tracer"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetries       = 2
	defaultRetryInterval = 200 * time.Millisecond
	defaultMaxBody       = 5 << 20
	defaultUserAgent     = "certverify/1.0"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Unwrap maps the status onto the store sentinels so callers can tell a
// missing document from an unreachable host.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone:
		return sentinel.ErrNotFound
	case e.StatusCode >= 500:
		return sentinel.ErrUnavailable
	default:
		return nil
	}
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// Client is safe for concurrent use.
type Client struct {
	httpClient    *http.Client
	cache         cache.Cache
	cacheTTL      time.Duration
	retries       uint64
	retryInterval time.Duration
	maxBody       int64
	userAgent     string
	logger        *slog.Logger
	tracer        tracer.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCache serves repeated GETs from cache for ttl.
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cc
		c.cacheTTL = ttl
	}
}

// WithRetries sets how many times a 5xx or transport failure is retried.
func WithRetries(n uint64, interval time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultTimeout},
		retries:       defaultRetries,
		retryInterval: defaultRetryInterval,
		maxBody:       defaultMaxBody,
		userAgent:     defaultUserAgent,
		logger:        slog.Default(),
		tracer:        tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the body of url, from cache when possible.
func (c *Client) Get(ctx context.Context, url string) (body []byte, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanHTTPFetch, tracer.String(tracer.AttrURL, url))
	defer func() { span.End(err) }()

	if c.cache != nil {
		cached, ok, cacheErr := c.cache.Get(ctx, url)
		if cacheErr != nil {
			c.logger.WarnContext(ctx, "fetch cache read failed", "url", url, "error", cacheErr)
		} else if ok {
			span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
			return cached, nil
		}
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))

	body, err = c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if cacheErr := c.cache.Set(ctx, url, body, c.cacheTTL); cacheErr != nil {
			c.logger.WarnContext(ctx, "fetch cache write failed", "url", url, "error", cacheErr)
		}
	}
	return body, nil
}

// GetFresh returns the body of url without reading or writing the cache.
func (c *Client) GetFresh(ctx context.Context, url string) (body []byte, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanHTTPFetch, tracer.String(tracer.AttrURL, url))
	defer func() { span.End(err) }()
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))

	return c.fetch(ctx, url)
}

// GetJSON decodes the body of url into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	return decode(url, body, v)
}

// GetJSONFresh is GetJSON bypassing the cache.
func (c *Client) GetJSONFresh(ctx context.Context, url string, v any) error {
	body, err := c.GetFresh(ctx, url)
	if err != nil {
		return err
	}
	return decode(url, body, v)
}

func decode(url string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		b, err := c.do(ctx, url)
		if err == nil {
			body = b
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !retryable(se.StatusCode) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.logger.DebugContext(ctx, "fetch attempt failed", "url", url, "attempt", attempt, "error", err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json, application/ld+json;q=0.9, */*;q=0.5")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("GET %s: response exceeds %d bytes", url, c.maxBody)
	}
	return body, nil
}
