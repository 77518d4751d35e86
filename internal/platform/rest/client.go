// Package rest provides the resilient HTTP client shared by every external
// data provider: exponential-backoff retries, a TTL response cache, and an
// observer hook for usage accounting.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/avalens/avalens/internal/domain"
)

// Result describes one finished logical call (including all retry attempts)
// and is handed to the Observer for usage accounting.
type Result struct {
	Service    string
	Endpoint   string
	Method     string
	Status     int
	DurationMs int64
	Retries    int
	Err        string
}

// Observer receives a Result after every logical call, success or failure.
// Implementations must not block; the client invokes them synchronously.
type Observer func(Result)

// StatusError reports a non-2xx response that was not retried away. Callers
// inspect Code to distinguish 404 from other failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, truncate(e.Body, 200))
}

// Config tunes a Client instance for one provider.
type Config struct {
	// Service names the provider in cache keys and usage results.
	Service string
	// BaseURL is prepended to every endpoint path.
	BaseURL string
	// Header holds default headers applied to every request (auth, accept).
	Header http.Header

	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Client is a retrying HTTP client for one provider. The zero value is not
// usable; construct with New.
type Client struct {
	http     *http.Client
	cfg      Config
	cache    *Cache
	observer Observer
	log      *slog.Logger

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Client. cache and observer may be nil, which disables response
// caching and usage accounting respectively.
func New(cfg Config, cache *Cache, observer Observer, log *slog.Logger) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	return &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		cfg:      cfg,
		cache:    cache,
		observer: observer,
		log:      log.With(slog.String("component", "rest"), slog.String("service", cfg.Service)),
		sleep:    sleepCtx,
	}
}

// GetJSON performs a GET against endpoint with the given query, decoding the
// response body into out. When cacheTTL is positive a fresh cached body is
// returned without a network round trip, and a successful response body is
// cached for cacheTTL.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, out any, cacheTTL time.Duration) error {
	key := c.cacheKeyFor(endpoint, query)
	if c.cache != nil && cacheTTL > 0 {
		if body, ok := c.cache.Get(key); ok {
			return json.Unmarshal(body, out)
		}
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	if c.cache != nil && cacheTTL > 0 {
		c.cache.Set(key, body, cacheTTL)
	}
	return json.Unmarshal(body, out)
}

// PostJSON performs a POST with a JSON payload, decoding the response into
// out when out is non-nil. POST responses are never cached.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rest: marshal payload: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, endpoint, nil, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// InvalidateEndpoint drops cached responses for endpoint regardless of query
// parameters.
func (c *Client) InvalidateEndpoint(endpoint string) {
	if c.cache != nil {
		c.cache.Invalidate(CacheKey(c.cfg.Service, endpoint))
	}
}

// do runs the request with retries. Network errors, 429 and 5xx responses are
// retried with exponential backoff; any other non-2xx status is terminal.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload []byte) ([]byte, error) {
	fullURL := c.cfg.BaseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	start := time.Now()
	delay := c.cfg.InitialDelay

	var (
		body    []byte
		status  int
		lastErr error
	)

	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			delay = time.Duration(float64(delay) * c.cfg.Multiplier)
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
		}

		body, status, lastErr = c.attempt(ctx, method, fullURL, payload)
		if lastErr == nil {
			c.observe(endpoint, method, status, start, attempt, nil)
			return body, nil
		}
		if !retryable(status, lastErr) {
			c.observe(endpoint, method, status, start, attempt, lastErr)
			return nil, lastErr
		}

		c.log.Warn("request failed, retrying",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt+1),
			slog.Int("status", status),
			slog.String("error", lastErr.Error()))
	}

	err := fmt.Errorf("rest: %s %s: %w: %w", method, endpoint, domain.ErrRetryExhausted, lastErr)
	c.observe(endpoint, method, status, start, c.cfg.MaxRetries, err)
	return nil, err
}

func (c *Client) attempt(ctx context.Context, method, fullURL string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("rest: build request: %w", err)
	}
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("rest: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, resp.StatusCode, fmt.Errorf("%w: %s", domain.ErrRateLimited, truncate(string(body), 200))
		}
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, resp.StatusCode, nil
}

func (c *Client) observe(endpoint, method string, status int, start time.Time, retries int, err error) {
	if c.observer == nil {
		return
	}
	r := Result{
		Service:    c.cfg.Service,
		Endpoint:   endpoint,
		Method:     method,
		Status:     status,
		DurationMs: time.Since(start).Milliseconds(),
		Retries:    retries,
	}
	if err != nil {
		r.Err = err.Error()
	}
	c.observer(r)
}

func (c *Client) cacheKeyFor(endpoint string, query url.Values) string {
	if len(query) == 0 {
		return CacheKey(c.cfg.Service, endpoint)
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, k+"="+strings.Join(query[k], ","))
	}
	return CacheKey(c.cfg.Service, endpoint, params...)
}

// retryable reports whether a failed attempt is worth repeating: network
// errors, rate limiting (429) and server errors (5xx) are; other statuses are
// terminal.
func retryable(status int, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status == 0 {
		return true // transport-level failure, no response
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
