package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "repo-analyzer/1.0"

	perPage = 100 // GitHub's maximum per page

	// DefaultRateLimitBuffer is added on top of the advertised reset time
	DefaultRateLimitBuffer = 10 * time.Second
	// DefaultThrottle spaces anonymous requests to stay under the anonymous ceiling
	DefaultThrottle = 100 * time.Millisecond

	resetFallback = 60 * time.Second
	commitWindow  = 365 * 24 * time.Hour
)

// Options configures a Client. A zero Throttle or RateLimitBuffer selects
// the default; a negative value disables it.
type Options struct {
	Token           string
	BaseURL         string
	Timeout         time.Duration
	Throttle        time.Duration
	RateLimitBuffer time.Duration
	Logger          *zerolog.Logger
}

// Client handles interactions with the GitHub API
type Client struct {
	httpClient    *http.Client
	baseURL       string
	authenticated bool
	throttle      time.Duration
	buffer        time.Duration
	log           zerolog.Logger

	requests atomic.Int64

	// Rate limiting
	rateLimitMu sync.RWMutex
	rateLimit   models.RateLimitInfo

	throttleMu  sync.Mutex
	nextRequest time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new GitHub API client. An empty token yields an
// anonymous client that self-throttles.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Throttle == 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.RateLimitBuffer == 0 {
		opts.RateLimitBuffer = DefaultRateLimitBuffer
	}
	opts.RateLimitBuffer = max(opts.RateLimitBuffer, 0)
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	httpClient := &http.Client{Timeout: opts.Timeout}
	if opts.Token != "" {
		httpClient.Transport = &oauth2.Transport{
			Base:   http.DefaultTransport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
		}
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		authenticated: opts.Token != "",
		throttle:      opts.Throttle,
		buffer:        opts.RateLimitBuffer,
		log:           logger,
		rateLimit: models.RateLimitInfo{
			Remaining: 60, // Default GitHub API limit
			Reset:     time.Now().Add(time.Hour),
			Limit:     60,
		},
		now:   time.Now,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// Stats returns the request counter and the last known rate limit
func (c *Client) Stats() models.ClientStats {
	return models.ClientStats{
		Requests:      c.requests.Load(),
		Authenticated: c.authenticated,
		RateLimit:     c.GetRateLimitInfo(),
	}
}

// GetRateLimitInfo returns the current rate limit information
func (c *Client) GetRateLimitInfo() models.RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

// updateRateLimit updates rate limit information from response headers
func (c *Client) updateRateLimit(resp *http.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.rateLimit.Reset = time.Unix(val, 0)
		}
	}

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
}

// rateLimitWait computes how long to sleep before retrying a rate-limited request
func (c *Client) rateLimitWait(h http.Header) time.Duration {
	now := c.now()
	reset := now.Add(resetFallback)
	if raw := h.Get("X-RateLimit-Reset"); raw != "" {
		if val, err := strconv.ParseInt(raw, 10, 64); err == nil {
			reset = time.Unix(val, 0)
		}
	}
	wait := reset.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait + c.buffer
}

// isRateLimited reports whether a 403 body carries the quota-exhausted marker
func isRateLimited(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}

// awaitTurn spaces anonymous requests by the throttle delay
func (c *Client) awaitTurn(ctx context.Context) error {
	if c.authenticated || c.throttle <= 0 {
		return nil
	}

	c.throttleMu.Lock()
	now := c.now()
	slot := c.nextRequest
	if slot.Before(now) {
		slot = now
	}
	c.nextRequest = slot.Add(c.throttle)
	c.throttleMu.Unlock()

	return c.sleep(ctx, slot.Sub(now))
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) decode(v interface{}) error {
	if r.status == http.StatusNoContent || len(r.body) == 0 {
		return nil
	}
	return json.Unmarshal(r.body, v)
}

// doRequest performs a single GET and buffers the body
func (c *Client) doRequest(ctx context.Context, endpoint string) (*response, error) {
	if err := c.awaitTurn(ctx); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	c.requests.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.updateRateLimit(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// get issues a GET against path, waiting out a rate limit and retrying once
func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.doRequest(ctx, endpoint)
		if err != nil {
			return nil, apperrors.NewGitHubError(op, path, err)
		}

		if resp.status == http.StatusForbidden && isRateLimited(resp.body) {
			if attempt > 0 {
				return nil, &apperrors.GitHubError{Op: op, Request: path, StatusCode: resp.status, Err: apperrors.ErrRateLimit}
			}
			wait := c.rateLimitWait(resp.header)
			c.log.Warn().
				Str("op", op).
				Str("path", path).
				Dur("wait", wait).
				Msg("Rate limit exceeded, waiting for reset")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, apperrors.NewGitHubError(op, path, fmt.Errorf("waiting for rate limit reset: %w", err))
			}
			continue
		}

		if resp.status < 200 || resp.status >= 300 {
			return nil, apperrors.NewGitHubStatusError(op, path, resp.status, apiMessage(resp.body))
		}
		return resp, nil
	}
}

// apiMessage extracts the "message" field of a GitHub error body
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// paginate walks page/per_page pages until a short or empty page
func paginate[T any](ctx context.Context, c *Client, op, path string, query url.Values, visit func([]T)) error {
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(perPage))

		resp, err := c.get(ctx, op, path, q)
		if err != nil {
			return err
		}

		var items []T
		if err := resp.decode(&items); err != nil {
			return apperrors.NewGitHubError(op, path, fmt.Errorf("decoding response: %w", err))
		}
		visit(items)

		// Check if we've reached the last page
		if len(items) < perPage {
			return nil
		}
	}
}

// setHeaders sets the required headers for GitHub API requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
}
