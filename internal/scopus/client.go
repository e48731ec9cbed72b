// Package scopus is a client for the Elsevier Scopus and SciVal APIs.
//
// Requests are paced by a rate limiter shared by every call, retried with
// exponential backoff, and sent with one of several API keys, advancing to
// the next key when the current one is throttled.
package scopus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/sethgrid/pester"

	rerrors "github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/common/validation"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit"
	"github.com/national-talent-atm/data-retrieval/pkg/ratelimit/bucket"
)

// DefaultBaseURL is the public Elsevier API host.
const DefaultBaseURL = "https://api.elsevier.com"

// DefaultRate is the request rate used when Config.Rate is zero.
const DefaultRate = 10

// Doer executes HTTP requests. *pester.Client and *http.Client satisfy it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// RateLimitNotify receives the quota headers of every response. Missing
// headers are passed as empty strings.
type RateLimitNotify func(limit, remaining, reset, status string)

type notifyKey struct{}

// WithNotify attaches a RateLimitNotify to requests made with ctx, in
// addition to Config.RateLimitNotify.
func WithNotify(ctx context.Context, fn RateLimitNotify) context.Context {
	return context.WithValue(ctx, notifyKey{}, fn)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("scopus: %s", e.Status)
	}
	return fmt.Sprintf("scopus: %s: %s", e.Status, body)
}

// Detail returns the status and the decoded body when it is JSON.
func (e *APIError) Detail() any {
	var body any = string(e.Body)
	if json.Valid(e.Body) {
		body = json.RawMessage(e.Body)
	}
	return map[string]any{"status": e.StatusCode, "body": body}
}

// Throttled reports whether the key used for the request is out of quota.
func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Unwrap maps throttling to ErrRateLimited and 404 to ErrNotFound.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return rerrors.ErrRateLimited
	case http.StatusNotFound:
		return rerrors.ErrNotFound
	}
	return nil
}

// Config configures a Client.
type Config struct {
	// Keys are used round-robin, one at a time.
	Keys    []string
	BaseURL string

	// Rate and Retries build the default limiter and HTTP client.
	Rate    float64
	Retries int
	Timeout time.Duration

	// Limiter overrides the fixed-interval pacer built from Rate.
	Limiter ratelimit.Waiter
	// HTTPClient overrides the pester client built from Retries and Timeout.
	HTTPClient Doer

	RateLimitNotify RateLimitNotify
	Logger          *zerolog.Logger
	Metrics         *metrics.Registry
}

// Client talks to the Elsevier APIs.
type Client struct {
	base    *url.URL
	keys    []string
	current atomic.Uint32
	limiter ratelimit.Waiter
	http    Doer
	notify  RateLimitNotify
	logger  zerolog.Logger
	metrics *metrics.Registry
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if err := validation.ValidateNotEmptySlice("scopus", "keys", config.Keys); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("scopus: base url: %w", err)
	}
	if config.Rate == 0 {
		config.Rate = DefaultRate
	}

	c := &Client{
		base:    base,
		keys:    config.Keys,
		limiter: config.Limiter,
		http:    config.HTTPClient,
		notify:  config.RateLimitNotify,
		logger:  log.Logger,
		metrics: config.Metrics,
	}
	if config.Logger != nil {
		c.logger = *config.Logger
	}
	c.logger = c.logger.With().Str("component", "scopus").Logger()

	if c.limiter == nil {
		if err := validation.ValidatePositiveFloat("scopus", "rate", config.Rate); err != nil {
			return nil, err
		}
		interval := time.Duration(float64(time.Second) / config.Rate)
		c.limiter, err = bucket.NewPacer(interval, "elsevier", config.Metrics)
		if err != nil {
			return nil, err
		}
	}
	if c.http == nil {
		p := pester.New()
		p.Backoff = pester.ExponentialBackoff
		p.MaxRetries = max(1, config.Retries)
		p.RetryOnHTTP429 = true
		p.Timeout = config.Timeout
		c.http = p
	}
	return c, nil
}

// get performs a paced GET of path with query and returns the body of a
// 2xx response. A throttled key is swapped for the next one and the
// request is repeated until every key has been tried once.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	var lastErr error
	for range c.keys {
		idx := c.current.Load()
		key := c.keys[int(idx)%len(c.keys)]

		body, err := c.do(ctx, endpoint, u.String(), key)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !rerrors.IsRetryable(err) || len(c.keys) == 1 {
			return nil, err
		}
		if c.current.CompareAndSwap(idx, idx+1) {
			c.logger.Warn().Str("endpoint", endpoint).Int("key", int(idx+1)%len(c.keys)).Msg("api key throttled, rotating")
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint, target, key string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-ELS-APIKey", key)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.APIRequest(endpoint, "error", time.Since(start))
		return nil, fmt.Errorf("scopus: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.APIRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	c.report(ctx, endpoint, resp.Header)
	if err != nil {
		return nil, fmt.Errorf("scopus: %s: read body: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}
	return body, nil
}

func (c *Client) report(ctx context.Context, endpoint string, h http.Header) {
	limit := h.Get("X-RateLimit-Limit")
	remaining := h.Get("X-RateLimit-Remaining")
	reset := h.Get("X-RateLimit-Reset")
	status := h.Get("X-ELS-Status")

	if remaining != "" {
		if n, err := strconv.ParseFloat(remaining, 64); err == nil {
			c.metrics.APIRemaining(endpoint, n)
		}
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("limit", limit).
			Str("remaining", remaining).
			Str("reset", reset).
			Str("status", status).
			Msg("rate limit")
	}

	if c.notify != nil {
		c.notify(limit, remaining, reset, status)
	}
	if fn, ok := ctx.Value(notifyKey{}).(RateLimitNotify); ok && fn != nil {
		fn(limit, remaining, reset, status)
	}
}
