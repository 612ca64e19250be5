package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// transientStatus reports whether a response status is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client performs authenticated GET requests against a FHIR server.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewClient creates a client for the server in cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     zap.NewNop(),
	}
}

// SetLogger sets the logger for retry and paging messages.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// SetBackOff replaces the retry policy factory.
func (c *Client) SetBackOff(f func() backoff.BackOff) {
	c.newBackOff = f
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON fetches u and parses the body as JSON. Transient statuses and
// network errors are retried with backoff; other non-2xx statuses return a
// *StatusError immediately.
func (c *Client) GetJSON(ctx context.Context, u string) (*gabs.Container, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/fhir+json")
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
			if transientStatus(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying request",
			zap.String("url", u),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}

	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("parse response from %s: %w", u, err)
	}
	return parsed, nil
}

// Pages fetches first and every following page linked with relation
// "next", calling fn for each. Paging stops at the first error, when there
// is no next link, or when a next link repeats a page already fetched.
func (c *Client) Pages(ctx context.Context, first string, fn func(page *gabs.Container) error) error {
	seen := make(map[string]bool)
	for u := first; u != ""; {
		if seen[u] {
			c.logger.Warn("pagination loop detected", zap.String("url", u))
			return nil
		}
		seen[u] = true

		page, err := c.GetJSON(ctx, u)
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
		u = ResolveNext(c.baseURL, nextLink(page))
	}
	return nil
}

// nextLink returns the URL of the "next" link of a search Bundle, or "".
func nextLink(page *gabs.Container) string {
	for _, l := range children(page, "link") {
		if str(l, "relation") == "next" {
			return str(l, "url")
		}
	}
	return ""
}

// ResolveNext turns a server-provided next link into a URL to fetch.
// Relative links are resolved against base. Links pointing at a different
// host (e.g. an internal address behind a proxy) are rewritten to an
// Observation search on base with the same query string.
func ResolveNext(base, next string) string {
	if next == "" {
		return ""
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}

	if !strings.HasPrefix(next, "http") {
		ref, err := url.Parse(next)
		if err != nil {
			return ""
		}
		return baseURL.ResolveReference(ref).String()
	}

	nextURL, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if nextURL.Host != baseURL.Host {
		return base + "/Observation?" + nextURL.RawQuery
	}
	return next
}

// entries returns the resources of a search Bundle's entries.
func entries(page *gabs.Container) []map[string]interface{} {
	var resources []map[string]interface{}
	for _, e := range children(page, "entry") {
		res := e.S("resource")
		if res == nil {
			continue
		}
		if r, ok := res.Data().(map[string]interface{}); ok {
			resources = append(resources, r)
		}
	}
	return resources
}

// children returns the elements of the array or object at key.
func children(c *gabs.Container, key string) []*gabs.Container {
	sub := c.S(key)
	if sub == nil {
		return nil
	}
	kids, err := sub.Children()
	if err != nil {
		return nil
	}
	return kids
}

// str returns the string at a dot-separated path, or "".
func str(c *gabs.Container, path string) string {
	sub := c.Path(path)
	if sub == nil {
		return ""
	}
	s, _ := sub.Data().(string)
	return s
}
