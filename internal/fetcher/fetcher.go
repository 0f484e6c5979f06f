// Package fetcher implements plain HTTP retrieval: the resource fetcher used
// by the mirror writer, and an HTTP-only document source for pages that
// render without JavaScript.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/dommirror/internal/safe"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: %s: http %d", e.URL, e.StatusCode)
}

// Fetcher performs HTTP GETs and returns raw response bytes.
type Fetcher struct {
	client   *http.Client
	ua       string
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the client timeout. Ignored with WithClient.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.ua = ua
		}
	}
}

// WithMaxBytes caps response bodies. Larger bodies fail the fetch.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// DefaultUserAgent is sent unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (compatible; DOMMirror/1.0)"

// DefaultMaxBytes caps a single resource at 64MB.
const DefaultMaxBytes int64 = 64 << 20

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       DefaultUserAgent,
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs rawURL and returns the body verbatim.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.get(ctx, rawURL, "*/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := safe.LimitedReadAll(resp.Body, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read %s: %w", rawURL, err)
	}

	f.logger.Debug("fetcher: fetched", "url", rawURL, "status", resp.StatusCode, "size", len(body))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	return resp, nil
}
