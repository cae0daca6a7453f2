// Package fetch performs authenticated HTTP GETs against the LMS portal.
//
// The portal has no API: every page is fetched as a logged-in browser would,
// with a fixed browser-like header profile carrying the session cookie.
// Transient failures are retried a capped number of times; everything past
// that is a terminal failure for the URL and the caller decides what that
// means for the crawl.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Defaults for client behavior.
const (
	// DefaultTimeout bounds a single request attempt. The portal is slow
	// under load at registration time, so this is generous.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the attempt cap per URL. Three attempts ride
	// out the portal's occasional 502s without stalling a large crawl on
	// a genuinely dead page.
	DefaultMaxRetries = 3

	// DefaultUserAgent mimics a desktop Chrome browser. The portal serves
	// a degraded mobile layout to unknown agents, which breaks the
	// selectors the extractor depends on.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
)

// ErrAllAttemptsFailed is returned when every fetch attempt for a URL failed.
// Callers treat this as a recoverable per-item failure, not a crawl abort.
var ErrAllAttemptsFailed = errors.New("all fetch attempts failed")

// Client fetches portal pages with a fixed header profile.
type Client struct {
	httpClient *http.Client
	baseHost   string
	referer    string
	cookie     string
	userAgent  string
	maxRetries int
	logger     *slog.Logger
}

// Options configures a Client. Zero values fall back to the package defaults.
type Options struct {
	// Cookie is the session credential sent with every request.
	Cookie string

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// MaxRetries is the attempt cap per URL.
	MaxRetries int

	// UserAgent overrides the default browser profile.
	UserAgent string
}

// NewClient creates a Client for the portal at baseURL.
// The base URL supplies the Host and Referer headers of the fixed profile.
func NewClient(baseURL string, opts Options, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseHost:   u.Host,
		referer:    u.Scheme + "://" + u.Host + "/",
		cookie:     opts.Cookie,
		userAgent:  userAgent,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

// Fetch performs one logical page fetch: up to maxRetries GET attempts,
// returning the body text of the first 2xx response. A network error or a
// non-2xx status both count as a failed attempt. There is no backoff beyond
// the retry loop itself; the worker pool already spaces requests out.
func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c.logger.Info("fetching page", "url", pageURL, "attempt", attempt, "max_attempts", c.maxRetries)

		body, err := c.get(ctx, pageURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		c.logger.Warn("fetch attempt failed",
			"url", pageURL,
			"attempt", attempt,
			"max_attempts", c.maxRetries,
			"error", err,
		)
	}

	c.logger.Error("page abandoned after retries", "url", pageURL, "attempts", c.maxRetries)
	return "", fmt.Errorf("%w: %s: %w", ErrAllAttemptsFailed, pageURL, lastErr)
}

// get performs a single GET attempt.
func (c *Client) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck // Read side already consumed

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused by the next attempt.
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// setHeaders applies the fixed browser-like header profile.
// The portal's session middleware rejects requests that look scripted, so
// the profile mirrors a real Chrome navigation including the client-hint
// headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	req.Header.Set("accept-language", "en-US,en;q=0.9")
	req.Header.Set("sec-ch-ua", `"Google Chrome";v="143", "Chromium";v="143", "Not A(Brand";v="24"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
	req.Header.Set("sec-fetch-dest", "document")
	req.Header.Set("sec-fetch-mode", "navigate")
	req.Header.Set("sec-fetch-site", "none")
	req.Header.Set("sec-fetch-user", "?1")
	req.Header.Set("upgrade-insecure-requests", "1")
	req.Header.Set("user-agent", c.userAgent)
	req.Header.Set("referer", c.referer)
	req.Header.Set("cookie", c.cookie)
	if c.baseHost != "" {
		req.Host = c.baseHost
	}
}
