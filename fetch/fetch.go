// Package fetch is the small JSON-over-HTTP client shared by the
// acquisition packages. Every call carries a timeout and the configured
// User-Agent, and non-200 responses are returned as *StatusError.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/semtrip/metrics"
)

// Defaults applied when options leave them unset.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "semtrip/1.0"

	// maxResponseSize bounds upstream payloads (10MB).
	maxResponseSize = 10 * 1024 * 1024
)

// StatusError reports a non-200 upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client performs JSON requests against one upstream service.
type Client struct {
	httpClient *http.Client
	service    string
	userAgent  string
	timeout    time.Duration
	maxBody    int64
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client, typically one whose
// transport is an httpcache.Transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithMaxBodySize limits how many bytes of a response are read.
func WithMaxBodySize(n int64) Option {
	return func(cl *Client) {
		cl.maxBody = n
	}
}

// WithMetrics counts outbound requests under the client's service name.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// New creates a client for the named service.
func New(service string, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		service:    service,
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
		maxBody:    maxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service name the client was created with.
func (c *Client) Service() string {
	return c.service
}

// GetJSON issues a GET to rawURL with query appended and decodes the JSON
// response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return c.do(ctx, http.MethodGet, u.String(), nil, "", out)
}

// PostFormJSON posts form as application/x-www-form-urlencoded and decodes
// the JSON response into out.
func (c *Client) PostFormJSON(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", out)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamCall(c.service, "error")
		return fmt.Errorf("%s request: %w", c.service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		c.metrics.UpstreamCall(c.service, "error")
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		c.metrics.UpstreamCall(c.service, "error")
		return fmt.Errorf("%s response too large (exceeds %d bytes)", c.service, c.maxBody)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamCall(c.service, "error")
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.metrics.UpstreamCall(c.service, "error")
		return fmt.Errorf("decode %s response: %w", c.service, err)
	}
	c.metrics.UpstreamCall(c.service, "ok")
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
