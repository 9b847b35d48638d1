// Package httpcache is a transparent response cache for outbound HTTP
// calls. Transport wraps another http.RoundTripper and serves repeated
// GET and HEAD requests from a Store until the entry expires. Only 200
// responses are stored.
package httpcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/c360studio/semtrip/metrics"
)

// DefaultExpire matches the daily refresh cadence of the upstream
// directories.
const DefaultExpire = 24 * time.Hour

// HeaderFromCache is set on responses served from the store.
const HeaderFromCache = "X-From-Cache"

const cacheName = "http"

// ErrNotFound is returned by stores for unknown keys.
var ErrNotFound = errors.New("cache entry not found")

// Entry is a stored response.
type Entry struct {
	StatusCode int         `msgpack:"status"`
	Header     http.Header `msgpack:"header"`
	Body       []byte      `msgpack:"body"`
	StoredAt   time.Time   `msgpack:"stored_at"`
}

// Store persists entries by key.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Transport is an http.RoundTripper that caches successful responses.
type Transport struct {
	next    http.RoundTripper
	store   Store
	expire  time.Duration
	maxBody int64
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Transport.
type Option func(*Transport)

// WithNext sets the transport used on a miss. Defaults to
// http.DefaultTransport.
func WithNext(rt http.RoundTripper) Option {
	return func(t *Transport) {
		t.next = rt
	}
}

// WithExpire sets how long stored responses are served.
func WithExpire(d time.Duration) Option {
	return func(t *Transport) {
		t.expire = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics records hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// NewTransport creates a caching transport over store.
func NewTransport(store Store, opts ...Option) *Transport {
	t := &Transport{
		next:    http.DefaultTransport,
		store:   store,
		expire:  DefaultExpire,
		maxBody: 10 * 1024 * 1024,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Client returns an *http.Client using the transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !cacheable(req) {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	key := Key(req)

	if e, err := t.store.Get(ctx, key); err == nil {
		if t.now().Sub(e.StoredAt) < t.expire {
			t.metrics.CacheHit(cacheName)
			return e.response(req), nil
		}
		if err := t.store.Delete(ctx, key); err != nil {
			t.logger.Warn("Failed to delete expired response", "key", key, "error", err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		t.logger.Warn("Response cache lookup failed", "key", key, "error", err)
	}
	t.metrics.CacheMiss(cacheName)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if int64(len(body)) > t.maxBody {
		return resp, nil
	}

	e := &Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   t.now(),
	}
	if err := t.store.Set(ctx, key, e); err != nil {
		t.logger.Warn("Failed to store response", "key", key, "error", err)
	}
	return resp, nil
}

// credentialParams are query parameters that carry API credentials. They do
// not change the response and must not reach the store.
var credentialParams = []string{"apikey", "api_key", "access_token"}

// Key derives the store key for a request: method plus URL with the query
// string in canonical (sorted) order. Credentials are left out.
func Key(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	for _, p := range credentialParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	u.User = nil
	u.Fragment = ""
	return req.Method + " " + u.String()
}

func cacheable(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return req.Header.Get("Cache-Control") != "no-cache"
}

func (e *Entry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(HeaderFromCache, "1")
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	body := e.Body
	if req.Method == http.MethodHead {
		body = nil
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
