package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/dommirror/internal/safe"
	"github.com/hazyhaar/dommirror/manifest"
)

// ErrNoScript is returned by Source.Evaluate: there is no page runtime.
var ErrNoScript = errors.New("fetcher: no script runtime for HTTP documents")

// Source is a document source that takes the server's HTML as the rendered
// document. Waiting and scrolling are no-ops.
type Source struct {
	f       *Fetcher
	content string
	// Sufficient is true when the last document looked fully rendered.
	Sufficient bool
}

// NewSource wraps f as a document source.
func NewSource(f *Fetcher) *Source {
	return &Source{f: f}
}

// Navigate GETs address and keeps the body as the current document. Non-2xx
// statuses are returned in the Navigation, not as errors.
func (s *Source) Navigate(ctx context.Context, address string) (*manifest.Navigation, error) {
	resp, err := s.f.get(ctx, address, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := safe.LimitedReadAll(resp.Body, s.f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetcher: read document: %w", err)
	}
	s.content = string(body)
	s.Sufficient = IsSufficient(body)

	s.f.logger.Debug("fetcher: document loaded",
		"url", address, "status", resp.StatusCode,
		"size", len(body), "sufficient", s.Sufficient)

	return &manifest.Navigation{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode}, nil
}

func (s *Source) WaitNetworkIdle(context.Context, time.Duration) error { return nil }

func (s *Source) ScrollTo(context.Context, int) error { return nil }

func (s *Source) Evaluate(context.Context, string, ...any) (json.RawMessage, error) {
	return nil, ErrNoScript
}

// Content returns the last loaded document.
func (s *Source) Content(context.Context) (string, error) {
	return s.content, nil
}

func (s *Source) Close() error { return nil }
